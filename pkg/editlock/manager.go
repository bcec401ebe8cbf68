// Package editlock implements the EditLockManager: a pessimistic,
// heartbeat-renewed lock over a development cycle's workspace, backed by
// Redis so ownership survives a process restart.
package editlock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	internalerrors "github.com/broadcomms/chronosops/internal/errors"
	"github.com/broadcomms/chronosops/internal/logging"
	"github.com/broadcomms/chronosops/pkg/contracts"
)

// Config bundles the manager's tunables: an initial Timeout, a bounded
// per-heartbeat ExtendOnActivity grant capped at MaxExtensions, and the
// cadence of the manager's own automatic heartbeat loop.
type Config struct {
	Timeout           time.Duration
	ExtendOnActivity  time.Duration
	MaxExtensions     int
	HeartbeatInterval time.Duration
	KeyPrefix         string
}

// DefaultConfig returns the standard lock policy: 30 minute initial timeout, 5
// minute extensions capped at 6 (a 60 minute hard ceiling on total
// lifetime), and a 30 second heartbeat cadence — strictly less than half of
// ExtendOnActivity so an extension is always considered in time.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Minute,
		ExtendOnActivity:  5 * time.Minute,
		MaxExtensions:     6,
		HeartbeatInterval: 30 * time.Second,
		KeyPrefix:         "chronosops:editlock:",
	}
}

// Manager acquires, extends, and releases EditLocks against a Redis store.
type Manager struct {
	cfg    Config
	client redis.Cmdable
	logger *logrus.Logger

	cycleLocks sync.Map // developmentCycleID -> *sync.Mutex, serializes acquire/heartbeat per cycle

	mu             sync.Mutex
	heartbeatLoops map[string]context.CancelFunc
	localBackup    map[string]map[string]string
}

// New constructs a Manager. client may be a *redis.Client or, in tests, a
// client pointed at a miniredis instance.
func New(cfg Config, client redis.Cmdable, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		cfg:            cfg,
		client:         client,
		logger:         logger,
		heartbeatLoops: map[string]context.CancelFunc{},
		localBackup:    map[string]map[string]string{},
	}
}

func (m *Manager) key(developmentCycleID string) string {
	return m.cfg.KeyPrefix + developmentCycleID
}

// mutexFor returns the per-cycle mutex guarding check-then-insert on
// developmentCycleID's lock record. Acquire and heartbeat are serialized
// per cycle, never globally.
func (m *Manager) mutexFor(developmentCycleID string) *sync.Mutex {
	v, _ := m.cycleLocks.LoadOrStore(developmentCycleID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Acquire takes an EditLock over developmentCycleID's workspace. If an
// active lock already held by userID exists, its heartbeat is refreshed and
// the SAME lock is returned rather than a new one. If held by someone else,
// Acquire fails with a LockConflictError carrying the existing lock's
// identity.
func (m *Manager) Acquire(ctx context.Context, developmentCycleID, userID string, lockType contracts.LockType, scope contracts.LockScope, files []string) (*contracts.EditLock, error) {
	mu := m.mutexFor(developmentCycleID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()
	existing, err := m.loadLocked(ctx, developmentCycleID)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.Usable(now) {
		if existing.LockedBy != userID {
			return nil, &internalerrors.LockConflictError{ExistingLockID: existing.ID, LockedBy: existing.LockedBy}
		}
		existing.LastHeartbeat = now
		if err := m.persistLocked(ctx, developmentCycleID, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	lock := &contracts.EditLock{
		ID:                 uuid.NewString(),
		DevelopmentCycleID: developmentCycleID,
		LockedBy:           userID,
		Type:               lockType,
		Scope:              scope,
		Files:              files,
		ExpiresAt:          now.Add(m.cfg.Timeout),
		LastHeartbeat:      now,
		ExtensionCount:     0,
		Status:             contracts.LockActive,
	}
	if err := m.persistLocked(ctx, developmentCycleID, lock); err != nil {
		return nil, err
	}

	m.logger.WithFields(logging.NewFields().Component("editlock").Operation("acquire").
		Custom("development_cycle_id", developmentCycleID).Custom("lock_id", lock.ID).ToLogrus()).
		Info("lockAcquired")

	return lock, nil
}

// staleGrace keeps a lock's Redis record alive past its logical ExpiresAt so
// ExpireStale has a window to observe and transition it instead of Redis's
// own TTL silently deleting the evidence first.
const staleGrace = time.Hour

func (m *Manager) persistLocked(ctx context.Context, developmentCycleID string, lock *contracts.EditLock) error {
	payload, err := json.Marshal(lock)
	if err != nil {
		return internalerrors.Wrapf(err, "marshal edit lock for %s", developmentCycleID)
	}
	ttl := time.Until(lock.ExpiresAt.Add(staleGrace))
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := m.client.Set(ctx, m.key(developmentCycleID), payload, ttl).Err(); err != nil {
		return internalerrors.NetworkError("persist edit lock", "redis", err)
	}
	return nil
}

func (m *Manager) loadLocked(ctx context.Context, developmentCycleID string) (*contracts.EditLock, error) {
	raw, err := m.client.Get(ctx, m.key(developmentCycleID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, internalerrors.NetworkError("load edit lock", "redis", err)
	}
	var lock contracts.EditLock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return nil, internalerrors.Wrapf(err, "unmarshal edit lock for %s", developmentCycleID)
	}
	return &lock, nil
}

// Get returns the current lock for a development cycle, or nil if unlocked.
func (m *Manager) Get(ctx context.Context, developmentCycleID string) (*contracts.EditLock, error) {
	return m.loadLocked(ctx, developmentCycleID)
}

// Heartbeat stamps a held lock's LastHeartbeat and, if the remaining time
// before expiry has dropped below half of ExtendOnActivity and the
// extension ceiling has not been reached, extends ExpiresAt by
// ExtendOnActivity and reports extended=true. When the remaining time is
// still at least half of ExtendOnActivity, it only stamps the heartbeat.
// When an extension is due but the ceiling has been reached, it stamps the
// heartbeat, leaves ExpiresAt untouched and returns an error naming the
// extension ceiling — repeated heartbeating does not grant unbounded
// extensions.
func (m *Manager) Heartbeat(ctx context.Context, developmentCycleID, lockID, userID string) (extended bool, err error) {
	mu := m.mutexFor(developmentCycleID)
	mu.Lock()
	defer mu.Unlock()

	lock, err := m.loadLocked(ctx, developmentCycleID)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	if lock == nil || lock.ID != lockID || lock.LockedBy != userID || !lock.Usable(now) {
		return false, &internalerrors.LockConflictError{ExistingLockID: lockIDOrEmpty(lock), LockedBy: lockOwnerOrEmpty(lock)}
	}

	lock.LastHeartbeat = now
	remaining := lock.ExpiresAt.Sub(now)
	if remaining < m.cfg.ExtendOnActivity/2 {
		if lock.ExtensionCount >= m.cfg.MaxExtensions {
			if err := m.persistLocked(ctx, developmentCycleID, lock); err != nil {
				return false, err
			}
			return false, fmt.Errorf("edit lock %s reached its extension ceiling (%d)", lockID, m.cfg.MaxExtensions)
		}
		lock.ExpiresAt = lock.ExpiresAt.Add(m.cfg.ExtendOnActivity)
		lock.ExtensionCount++
		extended = true
	}

	if err := m.persistLocked(ctx, developmentCycleID, lock); err != nil {
		return false, err
	}
	return extended, nil
}

func lockIDOrEmpty(l *contracts.EditLock) string {
	if l == nil {
		return ""
	}
	return l.ID
}

func lockOwnerOrEmpty(l *contracts.EditLock) string {
	if l == nil {
		return ""
	}
	return l.LockedBy
}

// Release clears a held lock. Releasing someone else's lock is rejected; use
// ForceRelease for an administrative override. Idempotent: releasing an
// already-unlocked cycle succeeds.
func (m *Manager) Release(ctx context.Context, developmentCycleID, lockID, releasedBy string) error {
	mu := m.mutexFor(developmentCycleID)
	mu.Lock()
	defer mu.Unlock()

	lock, err := m.loadLocked(ctx, developmentCycleID)
	if err != nil {
		return err
	}
	if lock == nil {
		return nil
	}
	if lock.ID != lockID {
		return &internalerrors.LockConflictError{ExistingLockID: lock.ID, LockedBy: lock.LockedBy}
	}
	if lock.LockedBy != releasedBy {
		return &internalerrors.LockConflictError{ExistingLockID: lock.ID, LockedBy: lock.LockedBy}
	}
	return m.deleteLocked(ctx, developmentCycleID)
}

// ForceRelease removes a lock regardless of ownership, for administrative
// recovery of a stuck workspace, and stops its automatic heartbeat loop.
func (m *Manager) ForceRelease(ctx context.Context, developmentCycleID string) error {
	mu := m.mutexFor(developmentCycleID)
	mu.Lock()
	defer mu.Unlock()
	return m.deleteLocked(ctx, developmentCycleID)
}

func (m *Manager) deleteLocked(ctx context.Context, developmentCycleID string) error {
	if err := m.client.Del(ctx, m.key(developmentCycleID)).Err(); err != nil {
		return internalerrors.NetworkError("release edit lock", "redis", err)
	}
	m.mu.Lock()
	if cancel, ok := m.heartbeatLoops[developmentCycleID]; ok {
		cancel()
		delete(m.heartbeatLoops, developmentCycleID)
	}
	delete(m.localBackup, developmentCycleID)
	m.mu.Unlock()
	return nil
}

// StartHeartbeatLoop runs an automatic heartbeat for a held lock until ctx is
// cancelled, Release/ForceRelease is called, or the first heartbeat call
// fails (e.g. the lock expired out from under it).
func (m *Manager) StartHeartbeatLoop(ctx context.Context, developmentCycleID, lockID, userID string) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.heartbeatLoops[developmentCycleID] = cancel
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := m.Heartbeat(loopCtx, developmentCycleID, lockID, userID); err != nil {
					m.logger.WithFields(logging.NewFields().Component("editlock").Operation("heartbeat").
						Error(err).ToLogrus()).Warn("heartbeatFailed")
					return
				}
			}
		}
	}()
}

// SaveLocalBackup records an in-memory, crash-safe snapshot of edited file
// contents against a development cycle's lock, independent of the
// Redis-backed lock record itself, so a crashed edit session can recover
// unsaved work after the lock expires.
func (m *Manager) SaveLocalBackup(developmentCycleID string, files map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]string, len(files))
	for k, v := range files {
		cp[k] = v
	}
	m.localBackup[developmentCycleID] = cp
}

// LocalBackup returns the most recently saved backup for a development
// cycle, if any.
func (m *Manager) LocalBackup(developmentCycleID string) (map[string]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.localBackup[developmentCycleID]
	return files, ok
}

// ExpireStale scans every lock this manager's KeyPrefix owns and transitions
// every active-but-past-expiry lock to Expired, returning the count
// transitioned. Idempotent: a second call immediately after convergence
// returns 0.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	var count int
	now := time.Now().UTC()
	iter := m.client.Scan(ctx, 0, m.cfg.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		raw, err := m.client.Get(ctx, redisKey).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return count, internalerrors.NetworkError("scan edit locks", "redis", err)
		}
		var lock contracts.EditLock
		if err := json.Unmarshal(raw, &lock); err != nil {
			continue
		}
		if lock.Status != contracts.LockActive || lock.ExpiresAt.After(now) {
			continue
		}
		lock.Status = contracts.LockExpired
		payload, err := json.Marshal(lock)
		if err != nil {
			continue
		}
		ttl := time.Until(lock.ExpiresAt.Add(staleGrace))
		if ttl <= 0 {
			ttl = time.Second
		}
		if err := m.client.Set(ctx, redisKey, payload, ttl).Err(); err != nil {
			return count, internalerrors.NetworkError("expire edit lock", "redis", err)
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return count, internalerrors.NetworkError("scan edit locks", "redis", err)
	}
	return count, nil
}
