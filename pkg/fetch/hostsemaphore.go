package fetch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// hostSlot is a host's semaphore plus the number of holders and waiters referencing it.
type hostSlot struct {
	sem  *semaphore.Weighted
	refs int
}

// HostSemaphorePool caps concurrent attachment downloads per host.
// A slot is dropped as soon as its last holder releases it, so the map only tracks hosts in use.
type HostSemaphorePool struct {
	slots map[string]*hostSlot
	mu    sync.Mutex
	limit int64
	log   *logrus.Entry
}

// NewHostSemaphorePool creates a pool with the given per-host limit (defaults to 2 when <= 0).
func NewHostSemaphorePool(maxPerHost int, log *logrus.Entry) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 2
		log.Warnf("max_downloads_per_host invalid or zero, defaulting to %d", limit)
	}
	return &HostSemaphorePool{
		slots: make(map[string]*hostSlot),
		limit: limit,
		log:   log,
	}
}

// Acquire blocks until a permit for host is available or ctx is done.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) error {
	p.mu.Lock()
	slot, ok := p.slots[host]
	if !ok {
		slot = &hostSlot{sem: semaphore.NewWeighted(p.limit)}
		p.slots[host] = slot
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Created host semaphore")
	}
	slot.refs++
	p.mu.Unlock()

	if err := slot.sem.Acquire(ctx, 1); err != nil {
		p.unref(host, slot)
		return err
	}
	return nil
}

// Release returns a permit previously obtained with Acquire.
func (p *HostSemaphorePool) Release(host string) {
	p.mu.Lock()
	slot, ok := p.slots[host]
	p.mu.Unlock()
	if !ok {
		p.log.Errorf("hostsemaphore: Release called for unknown host: %s", host)
		return
	}
	slot.sem.Release(1)
	p.unref(host, slot)
}

func (p *HostSemaphorePool) unref(host string, slot *hostSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot.refs--
	if slot.refs <= 0 && p.slots[host] == slot {
		delete(p.slots, host)
	}
}

// Len returns the number of hosts currently holding or waiting for permits.
func (p *HostSemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
