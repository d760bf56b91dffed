// Package lock implements the cooperative single-writer lock that
// serializes write access to the shared database file across machines. The
// lock is a single row in the same store as the data; there is no separate
// coordination service. Correctness rests on the stored heartbeat
// timestamp: a holder that stops heartbeating for more than two minutes is
// treated as crashed and its lock may be reclaimed.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wareflow/ems/internal/employee/db"
	e "github.com/wareflow/ems/internal/employee/errors"
	"github.com/wareflow/ems/internal/employee/models"
	"go.uber.org/zap"
)

// HeartbeatInterval is how often a holder renews its lock. Four missed
// intervals fit inside models.LockStaleTimeout, which tolerates transient
// network-share hiccups without letting a crashed holder block everyone.
const HeartbeatInterval = 30 * time.Second

// Identity names a lock holder. Hostname and PID are what ownership checks
// match on; Username and AppVersion are informational.
type Identity struct {
	Hostname   string
	Username   string
	PID        int
	AppVersion string
}

// Repository is the slice of the store the lock manager needs.
type Repository interface {
	GetAppLock(ctx context.Context) (*models.AppLock, error)
	CreateAppLock(ctx context.Context, lock *models.AppLock) error
	TouchAppLock(ctx context.Context, hostname string, pid int, at time.Time) (bool, error)
	DeleteAppLock(ctx context.Context, hostname string, pid int) (bool, error)
	ClearAppLock(ctx context.Context) error
	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
}

// AcquireResult reports the outcome of an acquisition attempt. When the
// lock is denied, Holder identifies who has it so the caller can present a
// meaningful message.
type AcquireResult struct {
	Acquired bool
	Holder   *models.AppLock
}

// Manager drives the acquire/heartbeat/release protocol over the stored
// lock row. Denied acquisitions and ownership mismatches are results, not
// errors; only storage faults come back as errors.
type Manager struct {
	repo   Repository
	logger *zap.Logger
}

func NewManager(repo Repository, logger *zap.Logger) *Manager {
	return &Manager{
		repo:   repo,
		logger: logger.Named("lock_manager"),
	}
}

// Acquire attempts to take the write lock for id. A missing or stale row is
// replaced with a fresh one stamped now; an active row from someone else is
// a denial carrying the holder. Acquire never retries on its own.
func (m *Manager) Acquire(ctx context.Context, id Identity) (*AcquireResult, error) {
	result := &AcquireResult{}
	err := m.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		current, err := tx.GetAppLock(ctx)
		if err != nil && !errors.Is(err, e.ErrNotFound) {
			return err
		}

		now := time.Now()
		if current != nil {
			if !current.IsStale(now) {
				result.Holder = current
				return nil
			}
			m.logger.Info("reclaiming stale lock",
				zap.String("hostname", current.Hostname),
				zap.Int("pid", current.PID),
				zap.Time("last_heartbeat", current.LastHeartbeat),
			)
			if err := tx.ClearAppLock(ctx); err != nil {
				return err
			}
		}

		fresh := &models.AppLock{
			Hostname:      id.Hostname,
			Username:      id.Username,
			PID:           id.PID,
			LockedAt:      now,
			LastHeartbeat: now,
			AppVersion:    id.AppVersion,
		}
		if err := tx.CreateAppLock(ctx, fresh); err != nil {
			return err
		}
		result.Acquired = true
		result.Holder = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Heartbeat renews the lock for id, updating only the heartbeat timestamp.
// A false return means the stored lock no longer belongs to id (it was
// reclaimed while this process stalled) and the caller has lost write
// authority and must stop mutating the store.
func (m *Manager) Heartbeat(ctx context.Context, id Identity) (bool, error) {
	renewed, err := m.repo.TouchAppLock(ctx, id.Hostname, id.PID, time.Now())
	if err != nil {
		return false, err
	}
	if !renewed {
		m.logger.Warn("heartbeat rejected, lock no longer held",
			zap.String("hostname", id.Hostname),
			zap.Int("pid", id.PID),
		)
	}
	return renewed, nil
}

// Release drops the lock held by id. Releasing a lock that was already
// reclaimed is a no-op failure, reported as false, never a crash.
func (m *Manager) Release(ctx context.Context, id Identity) (bool, error) {
	released, err := m.repo.DeleteAppLock(ctx, id.Hostname, id.PID)
	if err != nil {
		return false, err
	}
	if !released {
		m.logger.Warn("release skipped, lock not owned",
			zap.String("hostname", id.Hostname),
			zap.Int("pid", id.PID),
		)
	}
	return released, nil
}

// ActiveLock returns the current holder, or nil when no lock exists or the
// existing one is stale. A stale lock is indistinguishable from no lock
// from the caller's point of view: either way the store is up for grabs.
func (m *Manager) ActiveLock(ctx context.Context) (*models.AppLock, error) {
	current, err := m.repo.GetAppLock(ctx)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if current.IsStale(time.Now()) {
		return nil, nil
	}
	return current, nil
}

// Wait retries Acquire with exponential backoff until it succeeds or ctx is
// done. This is the caller-side wait policy; the protocol itself never
// retries.
func (m *Manager) Wait(ctx context.Context, id Identity) (*AcquireResult, error) {
	var result *AcquireResult
	operation := func() error {
		r, err := m.Acquire(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !r.Acquired {
			return errors.New("lock held")
		}
		result = r
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return result, nil
}
