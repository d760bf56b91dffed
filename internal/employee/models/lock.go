package models

import "time"

// LockStaleTimeout is how long a lock may go without a heartbeat before any
// other process may reclaim it. Roughly four missed heartbeats.
const LockStaleTimeout = 2 * time.Minute

// AppLock is the singleton row arbitrating write access to the shared
// database file. Whoever holds a non-stale row is the only process allowed
// to mutate the store.
type AppLock struct {
	ID uint `gorm:"primaryKey"`
	// Hostname and PID together identify the holder; Heartbeat and Release
	// only succeed when both match.
	Hostname string `gorm:"size:255;not null"`
	Username string `gorm:"size:255"`
	PID      int    `gorm:"column:pid;not null"`
	// LockedAt is set once at acquisition and never touched afterwards.
	LockedAt time.Time `gorm:"not null"`
	// LastHeartbeat is refreshed by the holder roughly every 30 seconds.
	LastHeartbeat time.Time `gorm:"not null"`
	AppVersion    string    `gorm:"size:50"`
}

// TableName keeps the table name stable across GORM pluralization rules.
func (AppLock) TableName() string {
	return "app_locks"
}

// IsStale reports whether the lock has gone without a heartbeat for longer
// than LockStaleTimeout and is therefore eligible for reclaiming. The
// timeout is deliberately not configurable.
func (l *AppLock) IsStale(now time.Time) bool {
	return now.Sub(l.LastHeartbeat) > LockStaleTimeout
}
