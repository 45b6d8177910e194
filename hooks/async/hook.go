// Package asynchook decouples hook callbacks from the cache's hot paths:
// events are handed to a bounded worker queue and dropped when it is full.
//
//	raw := myMetricsHooks{}
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := tiercache.New(ctx, tiercache.Options{
//	    Name:  "svc",
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/tiercache"
)

type Hooks struct {
	inner tiercache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(inner tiercache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SyncApplied(k, a string) { h.try(func() { h.inner.SyncApplied(k, a) }) }
func (h *Hooks) SyncIgnored(k, a string) { h.try(func() { h.inner.SyncIgnored(k, a) }) }
func (h *Hooks) LocalExpired(k string)   { h.try(func() { h.inner.LocalExpired(k) }) }
func (h *Hooks) PatternDeleted(p string, l, r int) {
	h.try(func() { h.inner.PatternDeleted(p, l, r) })
}
func (h *Hooks) SyncFetchError(k string, err error) {
	h.try(func() { h.inner.SyncFetchError(k, err) })
}
