package lock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Keeper renews a held lock in the background for as long as write access
// lasts. It must be stopped when the holder releases or the application
// exits; a renewal firing after release is a safe no-op because the
// ownership check in Heartbeat no longer matches.
type Keeper struct {
	manager  *Manager
	id       Identity
	interval time.Duration
	logger   *zap.Logger
	// onLost is invoked once if a heartbeat reports the lock was reclaimed.
	// The holder must stop mutating the store when this fires.
	onLost    func()
	closeChan chan struct{}
	doneChan  chan struct{}
	stopOnce  sync.Once
}

// NewKeeper builds a Keeper renewing the lock for id every
// HeartbeatInterval. onLost may be nil.
func (m *Manager) NewKeeper(id Identity, onLost func()) *Keeper {
	return &Keeper{
		manager:   m,
		id:        id,
		interval:  HeartbeatInterval,
		logger:    m.logger.Named("keeper"),
		onLost:    onLost,
		closeChan: make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start launches the renewal loop. Call Stop to end it.
func (k *Keeper) Start() {
	go k.renewLoop()
}

// Stop ends the renewal loop and waits for it to exit. Safe to call more
// than once.
func (k *Keeper) Stop() {
	k.stopOnce.Do(func() {
		close(k.closeChan)
	})
	<-k.doneChan
}

func (k *Keeper) renewLoop() {
	defer close(k.doneChan)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !k.renew() {
				return
			}
		case <-k.closeChan:
			return
		}
	}
}

// renew sends one heartbeat. Returns false when the lock is lost and the
// loop should end.
func (k *Keeper) renew() bool {
	renewed, err := k.manager.Heartbeat(context.Background(), k.id)
	if err != nil {
		// Storage hiccups on a network share are expected now and then;
		// the stale timeout leaves room for a few failed renewals.
		k.logger.Warn("heartbeat failed", zap.Error(err))
		return true
	}
	if !renewed {
		k.logger.Error("lock lost, stopping renewals",
			zap.String("hostname", k.id.Hostname),
			zap.Int("pid", k.id.PID),
		)
		if k.onLost != nil {
			k.onLost()
		}
		return false
	}
	return true
}
