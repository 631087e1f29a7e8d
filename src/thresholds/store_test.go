package thresholds

import (
	"context"
	"errors"
	"myndis-engine/src/logger"
	"myndis-engine/src/models"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), NewMemoryRepository(), logger.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func TestNewStore_SeedsDefaults(t *testing.T) {
	s := newTestStore(t)
	snap := s.Current()

	assert.Equal(t, int64(1), snap.Version())
	assert.Equal(t, Defaults(), snap.Pairs())

	budget := snap.Budget()
	require.Len(t, budget, 3)
	assert.Equal(t, "budget_warning_75", budget[0].Name)
	assert.Equal(t, "budget_warning_90", budget[1].Name)
	assert.Equal(t, "budget_critical", budget[2].Name)
	assert.True(t, budget[2].Critical)
	assert.InDelta(t, 0.70, snap.AnomalySensitivity(), 1e-9)
	assert.Empty(t, snap.Issues())
}

func TestNewStore_ResumesLatestVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	first, err := NewStore(ctx, repo, logger.NewNop(), nil)
	require.NoError(t, err)
	_, err = first.Update(ctx, []models.ThresholdPair{{Name: "budget_warning_80", Value: 0.8}})
	require.NoError(t, err)

	second, err := NewStore(ctx, repo, logger.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Current().Version())
	v, ok := second.Current().Value("budget_warning_80")
	assert.True(t, ok)
	assert.InDelta(t, 0.8, v, 1e-9)
}

func TestNewStore_RejectsBadSeed(t *testing.T) {
	_, err := NewStore(context.Background(), NewMemoryRepository(), logger.NewNop(),
		[]models.ThresholdPair{{Name: "budget_critical", Value: 1.2}})
	assert.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestStore_Update(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []models.ThresholdPair
		wantErr error
	}{
		{name: "empty set", pairs: nil, wantErr: ErrEmptyConfiguration},
		{name: "value above one", pairs: []models.ThresholdPair{{Name: "budget_warning_75", Value: 1.5}}, wantErr: ErrValueOutOfRange},
		{name: "negative value", pairs: []models.ThresholdPair{{Name: "budget_warning_75", Value: -0.1}}, wantErr: ErrValueOutOfRange},
		{name: "bad name", pairs: []models.ThresholdPair{{Name: "Budget Warning", Value: 0.5}}, wantErr: ErrInvalidName},
		{
			name: "duplicate",
			pairs: []models.ThresholdPair{
				{Name: "budget_warning_75", Value: 0.7},
				{Name: "budget_warning_75", Value: 0.8},
			},
			wantErr: ErrDuplicateName,
		},
		{name: "valid", pairs: []models.ThresholdPair{{Name: "budget_warning_60", Value: 0.6}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			before := s.Current()

			snap, err := s.Update(context.Background(), tt.pairs)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Same(t, before, s.Current(), "configuration must be unchanged")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(2), snap.Version())
			assert.Same(t, snap, s.Current())
		})
	}
}

func TestStore_PreviousVersionRetrievable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Update(ctx, []models.ThresholdPair{{Name: "budget_critical", Value: 0.95}})
	require.NoError(t, err)

	v1, err := s.Version(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), v1.Thresholds)

	v2, err := s.Version(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []models.ThresholdPair{{Name: "budget_critical", Value: 0.95}}, v2.Thresholds)

	_, err = s.Version(ctx, 3)
	assert.True(t, errors.Is(err, ErrVersionNotFound))
}

func TestSnapshot_NormalizesMalformedConfiguration(t *testing.T) {
	snap := newSnapshot(models.ThresholdVersion{
		Version: 7,
		Thresholds: []models.ThresholdPair{
			{Name: "budget_warning_90", Value: 0.9},
			{Name: "budget_warning_75", Value: 0.75},
			{Name: "budget_critical", Value: 1.4},
		},
	})

	budget := snap.Budget()
	require.Len(t, budget, 3)
	assert.Equal(t, []string{"budget_warning_75", "budget_warning_90", "budget_critical"},
		[]string{budget[0].Name, budget[1].Name, budget[2].Name})
	assert.InDelta(t, 1.0, budget[2].Value, 1e-9)
	assert.Len(t, snap.Issues(), 2)
}

func TestSnapshot_CriticalBelowWarningIsReported(t *testing.T) {
	snap := newSnapshot(models.ThresholdVersion{
		Thresholds: []models.ThresholdPair{
			{Name: "budget_critical", Value: 0.5},
			{Name: "budget_warning_75", Value: 0.75},
		},
	})
	crit, ok := snap.HighestCritical()
	require.True(t, ok)
	assert.Equal(t, "budget_critical", crit.Name)
	assert.NotEmpty(t, snap.Issues())
}

func TestStore_ConcurrentReadersNeverSeeTornConfiguration(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := []models.ThresholdPair{{Name: "budget_warning_a", Value: 0.1}, {Name: "budget_warning_b", Value: 0.1}}
	b := []models.ThresholdPair{{Name: "budget_warning_a", Value: 0.9}, {Name: "budget_warning_b", Value: 0.9}}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Current()
				va, oka := snap.Value("budget_warning_a")
				vb, okb := snap.Value("budget_warning_b")
				if oka != okb || va != vb {
					t.Errorf("torn read: a=%v(%v) b=%v(%v)", va, oka, vb, okb)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		pairs := a
		if i%2 == 1 {
			pairs = b
		}
		_, err := s.Update(ctx, pairs)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}
