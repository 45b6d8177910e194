package tiercache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/remote"
)

// keyspaceChannelPrefix is the channel namespace Redis publishes keyspace
// notifications on (database 0).
const keyspaceChannelPrefix = "__keyspace@0__:"

// syncFetchTimeout bounds the remote read performed while applying an event.
const syncFetchTimeout = 5 * time.Second

// syncBridge keeps the local tier current for registered keys: it subscribes
// to keyspace events on the remote backend and replays set/hset/del onto the
// local store. Work for one key is serialized through the lock queue; events
// for different keys may apply concurrently.
type syncBridge struct {
	remote *remote.Client
	local  *localStore
	locks  *lockQueue
	log    Logger
	hooks  Hooks

	mu         sync.Mutex
	started    bool
	registered map[string]struct{}

	wg sync.WaitGroup
}

func newSyncBridge(rc *remote.Client, local *localStore, locks *lockQueue, log Logger, hooks Hooks) *syncBridge {
	return &syncBridge{
		remote:     rc,
		local:      local,
		locks:      locks,
		log:        log,
		hooks:      hooks,
		registered: make(map[string]struct{}),
	}
}

// register subscribes to change notifications for the storage key. At most
// one registration exists per key; re-registering is a no-op. The first
// registration starts the bridge: it requests server-side keyspace events
// and begins draining the notification stream.
func (b *syncBridge) register(ctx context.Context, key string) error {
	b.mu.Lock()
	if _, ok := b.registered[key]; ok {
		b.mu.Unlock()
		return nil
	}
	b.registered[key] = struct{}{}
	start := !b.started
	b.started = true
	b.mu.Unlock()

	if start {
		// CONFIG may be restricted on managed servers; the event source can
		// also be enabled out-of-band, so a rejection is not fatal.
		if err := b.remote.EnableKeyspaceEvents(ctx); err != nil {
			b.log.Warn("keyspace event config rejected", Fields{"err": err})
		}
		events := b.remote.Events(ctx)
		b.wg.Add(1)
		go b.run(events)
	}

	if err := b.remote.Subscribe(ctx, keyspaceChannelPrefix+key); err != nil {
		b.mu.Lock()
		delete(b.registered, key)
		b.mu.Unlock()
		return err
	}
	b.log.Debug("sync registered", Fields{"key": key})
	return nil
}

// deregister drops the subscription for the storage key.
func (b *syncBridge) deregister(ctx context.Context, key string) error {
	b.mu.Lock()
	_, ok := b.registered[key]
	delete(b.registered, key)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return b.remote.Unsubscribe(ctx, keyspaceChannelPrefix+key)
}

// wait blocks until the event stream has drained and all in-flight event
// handlers finished. Call after closing the remote client.
func (b *syncBridge) wait() { b.wg.Wait() }

func (b *syncBridge) run(events <-chan remote.Event) {
	defer b.wg.Done()
	for ev := range events {
		b.wg.Add(1)
		go func(ev remote.Event) {
			defer b.wg.Done()
			b.apply(ev)
		}(ev)
	}
}

// apply replays one keyspace event onto the local tier, holding the key's
// lock so event work for the same key never interleaves.
func (b *syncBridge) apply(ev remote.Event) {
	key := strings.TrimPrefix(ev.Channel, keyspaceChannelPrefix)
	b.locks.acquire(key)
	defer b.locks.release(key)

	ctx, cancel := context.WithTimeout(context.Background(), syncFetchTimeout)
	defer cancel()

	switch ev.Action {
	case "set":
		s, ok, err := b.remote.Get(ctx, key)
		if err != nil {
			b.dropFetch(key, ev.Action, err)
			return
		}
		if !ok {
			b.hooks.SyncIgnored(key, ev.Action)
			return
		}
		b.local.put(key, codec.DecodePrimitive(s, true), 0)
		b.hooks.SyncApplied(key, ev.Action)
	case "hset":
		m, err := b.remote.HGetAll(ctx, key)
		if err != nil {
			b.dropFetch(key, ev.Action, err)
			return
		}
		if len(m) == 0 {
			b.hooks.SyncIgnored(key, ev.Action)
			return
		}
		b.local.put(key, codec.DecodeObject(m, true), 0)
		b.hooks.SyncApplied(key, ev.Action)
	case "del":
		b.local.delete(key)
		b.hooks.SyncApplied(key, ev.Action)
	default:
		b.hooks.SyncIgnored(key, ev.Action)
	}
}

func (b *syncBridge) dropFetch(key, action string, err error) {
	b.log.Warn("sync fetch failed", Fields{"key": key, "action": action, "err": err})
	b.hooks.SyncFetchError(key, err)
}
