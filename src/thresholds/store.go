package thresholds

import (
	"context"
	"errors"
	"fmt"
	"math"
	"myndis-engine/src/logger"
	"myndis-engine/src/models"
	"myndis-engine/src/util"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrEmptyConfiguration = errors.New("threshold configuration is empty")
	ErrValueOutOfRange    = errors.New("threshold value must be within [0,1]")
	ErrInvalidName        = errors.New("invalid threshold name")
	ErrDuplicateName      = errors.New("duplicate threshold name")
	ErrVersionNotFound    = errors.New("threshold version not found")
)

// VersionRepository persists every published configuration for audit.
type VersionRepository interface {
	SaveThresholdVersion(ctx context.Context, v models.ThresholdVersion) error
	// LatestThresholdVersion returns nil, nil when nothing was saved yet.
	LatestThresholdVersion(ctx context.Context) (*models.ThresholdVersion, error)
	ThresholdVersion(ctx context.Context, version int64) (*models.ThresholdVersion, error)
}

type Store struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes writers only
	repo    VersionRepository
	log     *logger.Logger
	now     func() time.Time
}

// NewStore publishes the latest persisted configuration, or seeds version 1
// from seed (Defaults() when empty) on first boot.
func NewStore(ctx context.Context, repo VersionRepository, log *logger.Logger, seed []models.ThresholdPair) (*Store, error) {
	s := &Store{repo: repo, log: log, now: time.Now}

	latest, err := repo.LatestThresholdVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading threshold configuration: %w", err)
	}
	if latest != nil {
		s.publish(newSnapshot(*latest))
		return s, nil
	}

	if len(seed) == 0 {
		seed = Defaults()
	}
	if err := Validate(seed); err != nil {
		return nil, fmt.Errorf("seed thresholds: %w", err)
	}
	v := models.ThresholdVersion{
		Version:    1,
		Thresholds: append([]models.ThresholdPair(nil), seed...),
		CreatedAt:  s.now().UTC(),
	}
	if err := repo.SaveThresholdVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("saving initial threshold configuration: %w", err)
	}
	s.publish(newSnapshot(v))
	return s, nil
}

// Current returns the active snapshot. Callers hold on to it for the whole
// operation.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Update replaces the whole configuration. On any error the active
// configuration is left untouched.
func (s *Store) Update(ctx context.Context, pairs []models.ThresholdPair) (*Snapshot, error) {
	if err := Validate(pairs); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := models.ThresholdVersion{
		Version:    s.current.Load().Version() + 1,
		Thresholds: append([]models.ThresholdPair(nil), pairs...),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.SaveThresholdVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("saving threshold version %d: %w", v.Version, err)
	}
	snap := newSnapshot(v)
	s.publish(snap)
	s.log.Info("Threshold configuration updated", "version", v.Version, "count", len(pairs))
	return snap, nil
}

// Version returns a published configuration, including superseded ones.
func (s *Store) Version(ctx context.Context, version int64) (*models.ThresholdVersion, error) {
	cur := s.current.Load()
	if version == cur.Version() {
		v := cur.ToVersion()
		return &v, nil
	}
	if version < 1 || version > cur.Version() {
		return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
	}
	return s.repo.ThresholdVersion(ctx, version)
}

func (s *Store) publish(snap *Snapshot) {
	for _, issue := range snap.issues {
		s.log.Warn("Threshold configuration integrity", "version", snap.version, "issue", issue)
	}
	s.current.Store(snap)
}

// Validate applies the update rules: a non-empty set of uniquely named
// values within [0,1].
func Validate(pairs []models.ThresholdPair) error {
	if len(pairs) == 0 {
		return ErrEmptyConfiguration
	}
	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if !util.ValidateThresholdName(p.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidName, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
		}
		seen[p.Name] = struct{}{}
		if math.IsNaN(p.Value) || p.Value < 0 || p.Value > 1 {
			return fmt.Errorf("%w: %s=%v", ErrValueOutOfRange, p.Name, p.Value)
		}
	}
	return nil
}

// MemoryRepository keeps versions in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	versions []models.ThresholdVersion
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) SaveThresholdVersion(ctx context.Context, v models.ThresholdVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.Thresholds = append([]models.ThresholdPair(nil), v.Thresholds...)
	r.versions = append(r.versions, v)
	return nil
}

func (r *MemoryRepository) LatestThresholdVersion(ctx context.Context) (*models.ThresholdVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.versions) == 0 {
		return nil, nil
	}
	v := r.versions[len(r.versions)-1]
	v.Thresholds = append([]models.ThresholdPair(nil), v.Thresholds...)
	return &v, nil
}

func (r *MemoryRepository) ThresholdVersion(ctx context.Context, version int64) (*models.ThresholdVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions {
		if v.Version == version {
			v.Thresholds = append([]models.ThresholdPair(nil), v.Thresholds...)
			return &v, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
}
