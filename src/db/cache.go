package db

import (
	"myndis-engine/src/models"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Storing cache keys in concurrent data structures to allow for clearing all
// caches of a certain type. Each key maps to its expiry.
var (
	Cache            *ristretto.Cache
	HistoryCacheKeys = struct {
		sync.RWMutex
		m   map[string]time.Time
		gen uint64
	}{m: make(map[string]time.Time)}
)

func InitCache() error {
	var err error
	Cache, err = ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	return err
}

func HistoryCacheKey(accountID string) string {
	return "history:" + accountID
}

// HistoryGeneration changes on every history invalidation. Take it before
// reading history from the database and hand it to SetHistoryCache.
func HistoryGeneration() uint64 {
	HistoryCacheKeys.RLock()
	defer HistoryCacheKeys.RUnlock()
	return HistoryCacheKeys.gen
}

// History Cache Functions

// SetHistoryCache stores value unless a history write happened since gen was
// taken, in which case value may be stale and is dropped.
func SetHistoryCache(cacheKey string, value []models.Transaction, ttl time.Duration, gen uint64) bool {
	if Cache == nil {
		return false
	}
	HistoryCacheKeys.Lock()
	defer HistoryCacheKeys.Unlock()
	if HistoryCacheKeys.gen != gen {
		return false
	}
	HistoryCacheKeys.m[cacheKey] = time.Now().Add(ttl)
	return Cache.SetWithTTL(cacheKey, value, 1, ttl)
}

func GetHistoryCache(cacheKey string) ([]models.Transaction, bool) {
	if Cache == nil {
		return nil, false
	}
	v, ok := Cache.Get(cacheKey)
	if !ok {
		forgetExpiredKey(cacheKey)
		return nil, false
	}
	txns, ok := v.([]models.Transaction)
	return txns, ok
}

func forgetExpiredKey(cacheKey string) {
	HistoryCacheKeys.Lock()
	defer HistoryCacheKeys.Unlock()
	if expiry, ok := HistoryCacheKeys.m[cacheKey]; ok && !time.Now().Before(expiry) {
		delete(HistoryCacheKeys.m, cacheKey)
	}
}

// DelHistoryCache invalidates a key after its history changed.
func DelHistoryCache(cacheKey string) {
	HistoryCacheKeys.Lock()
	defer HistoryCacheKeys.Unlock()
	HistoryCacheKeys.gen++
	delete(HistoryCacheKeys.m, cacheKey)
	if Cache != nil {
		Cache.Del(cacheKey)
	}
}

func ClearAllHistoryCaches() int {
	if Cache == nil {
		return 0
	}
	HistoryCacheKeys.Lock()
	n := len(HistoryCacheKeys.m)
	for key := range HistoryCacheKeys.m {
		Cache.Del(key)
	}
	HistoryCacheKeys.m = make(map[string]time.Time)
	HistoryCacheKeys.Unlock()
	return n
}
