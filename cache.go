package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/keys"
	"github.com/unkn0wn-root/tiercache/remote"
)

// scanCount is the per-step batch size for pattern deletes on the remote
// tier.
const scanCount = 10

type cache struct {
	name  string
	names keys.Namer
	log   Logger
	hooks Hooks

	local  *localStore
	locks  *lockQueue
	remote *remote.Client // nil in local-only mode
	bridge *syncBridge    // nil in local-only mode

	mu       sync.Mutex
	disposed bool
}

func newCache(ctx context.Context, opts Options) (*cache, error) {
	if opts.Name == "" {
		return nil, errors.New("tiercache: name is required")
	}

	c := &cache{
		name:  opts.Name,
		names: keys.NewNamer(opts.Name),
		locks: newLockQueue(),
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.local = newLocalStore(func(k string) {
		c.hooks.LocalExpired(k)
		c.log.Debug("local entry expired", Fields{"key": k})
	})

	if len(opts.Cluster) > 0 || opts.Single != nil {
		rc, err := remote.Dial(ctx, remote.Config{Single: opts.Single, Cluster: opts.Cluster})
		if err != nil {
			return nil, err
		}
		c.remote = rc
		c.bridge = newSyncBridge(rc, c.local, c.locks, c.log, c.hooks)
	}
	return c, nil
}

func (c *cache) open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	return nil
}

// level resolves the default rule: an unset level targets the remote tier
// when a remote client exists, the local tier otherwise. This lets the same
// caller code run in "no remote configured" environments.
func (c *cache) level(requested Level) Level {
	if l := requested & LevelBoth; l != 0 {
		return l
	}
	if c.remote != nil {
		return LevelRemote
	}
	return LevelLocal
}

func (c *cache) checkSet(key string, value any) error {
	if err := c.open(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		return ErrNilValue
	}
	return nil
}

// SetPrimitive stores a scalar. Local tier keeps the native value; remote
// tier keeps its textual form. The local write happens first, so a backend
// failure leaves the local tier populated (read-your-writes in-process).
func (c *cache) SetPrimitive(ctx context.Context, key string, value any, opts SetOptions) error {
	if err := c.checkSet(key, value); err != nil {
		return err
	}
	storage := c.names.Key(key, opts.Global)
	level := c.level(opts.Level)

	if level.Has(LevelLocal) {
		c.local.put(storage, value, opts.TTL)
	}
	if level.Has(LevelRemote) && c.remote != nil {
		if err := c.remote.WriteString(ctx, storage, codec.EncodePrimitive(value), opts.TTL); err != nil {
			return backendErr("set", storage, err)
		}
	}
	return c.maybeRegister(ctx, storage, level)
}

// SetArray stores a sequence as the JSON text of the array, delegating to
// SetPrimitive; GetArray restores the sequence on read.
func (c *cache) SetArray(ctx context.Context, key string, values []any, opts SetOptions) error {
	if err := c.open(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	if values == nil {
		return ErrNilValue
	}
	text, err := codec.EncodeArray(values)
	if err != nil {
		return fmt.Errorf("tiercache: encode array %q: %w", key, err)
	}
	return c.SetPrimitive(ctx, key, text, opts)
}

// SetObject stores a flat mapping. Local tier keeps the native map; remote
// tier keeps a field->string hash with nested values flattened to text.
func (c *cache) SetObject(ctx context.Context, key string, fields map[string]any, opts SetOptions) error {
	if err := c.open(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	if fields == nil {
		return ErrNilValue
	}
	storage := c.names.Key(key, opts.Global)
	level := c.level(opts.Level)

	if level.Has(LevelLocal) {
		c.local.put(storage, fields, opts.TTL)
	}
	if level.Has(LevelRemote) && c.remote != nil {
		if err := c.remote.WriteHash(ctx, storage, codec.EncodeObject(fields), opts.TTL); err != nil {
			return backendErr("hmset", storage, err)
		}
	}
	return c.maybeRegister(ctx, storage, level)
}

func (c *cache) maybeRegister(ctx context.Context, storage string, level Level) error {
	if !level.Has(LevelBoth) || c.bridge == nil {
		return nil
	}
	if err := c.bridge.register(ctx, storage); err != nil {
		return backendErr("subscribe", storage, err)
	}
	return nil
}

// GetPrimitive reads a scalar. Lookup order: remote when forced, local hit,
// then remote when available.
func (c *cache) GetPrimitive(ctx context.Context, key string, opts GetOptions) (Optional[any], error) {
	storage, err := c.checkGet(key, opts)
	if err != nil {
		return Absent[any](), err
	}
	if opts.ForceRemote && c.remote != nil {
		return c.remotePrimitive(ctx, storage, opts)
	}
	if v, ok := c.local.get(storage); ok {
		return Present(v), nil
	}
	if c.remote != nil {
		return c.remotePrimitive(ctx, storage, opts)
	}
	return Absent[any](), nil
}

// GetArray reads a sequence. A local hit may hold either the JSON text (the
// SetArray path) or a native slice (applied by the sync bridge); both
// normalize to []any. Undecodable payloads are a miss, not an error.
func (c *cache) GetArray(ctx context.Context, key string, opts GetOptions) (Optional[[]any], error) {
	storage, err := c.checkGet(key, opts)
	if err != nil {
		return Absent[[]any](), err
	}
	if opts.ForceRemote && c.remote != nil {
		return c.remoteArray(ctx, storage)
	}
	if v, ok := c.local.get(storage); ok {
		return normalizeArray(v), nil
	}
	if c.remote != nil {
		return c.remoteArray(ctx, storage)
	}
	return Absent[[]any](), nil
}

// GetObject reads a flat mapping. An empty remote hash means the key does
// not exist; a local value of another shape is a miss.
func (c *cache) GetObject(ctx context.Context, key string, opts GetOptions) (Optional[map[string]any], error) {
	storage, err := c.checkGet(key, opts)
	if err != nil {
		return Absent[map[string]any](), err
	}
	if opts.ForceRemote && c.remote != nil {
		return c.remoteObject(ctx, storage, opts)
	}
	if v, ok := c.local.get(storage); ok {
		if m, ok := v.(map[string]any); ok {
			return Present(m), nil
		}
		return Absent[map[string]any](), nil
	}
	if c.remote != nil {
		return c.remoteObject(ctx, storage, opts)
	}
	return Absent[map[string]any](), nil
}

func (c *cache) checkGet(key string, opts GetOptions) (string, error) {
	if err := c.open(); err != nil {
		return "", err
	}
	if key == "" {
		return "", ErrEmptyKey
	}
	return c.names.Key(key, opts.Global), nil
}

func (c *cache) remotePrimitive(ctx context.Context, storage string, opts GetOptions) (Optional[any], error) {
	s, ok, err := c.remote.Get(ctx, storage)
	if err != nil {
		return Absent[any](), backendErr("get", storage, err)
	}
	if !ok {
		return Absent[any](), nil
	}
	return Present(codec.DecodePrimitive(s, !opts.Raw)), nil
}

func (c *cache) remoteArray(ctx context.Context, storage string) (Optional[[]any], error) {
	s, ok, err := c.remote.Get(ctx, storage)
	if err != nil {
		return Absent[[]any](), backendErr("get", storage, err)
	}
	if !ok {
		return Absent[[]any](), nil
	}
	vs, err := codec.DecodeArray(s)
	if err != nil {
		return Absent[[]any](), nil
	}
	return Present(vs), nil
}

func (c *cache) remoteObject(ctx context.Context, storage string, opts GetOptions) (Optional[map[string]any], error) {
	m, err := c.remote.HGetAll(ctx, storage)
	if err != nil {
		return Absent[map[string]any](), backendErr("hgetall", storage, err)
	}
	if len(m) == 0 {
		return Absent[map[string]any](), nil
	}
	return Present(codec.DecodeObject(m, !opts.Raw)), nil
}

func normalizeArray(v any) Optional[[]any] {
	switch t := v.(type) {
	case []any:
		return Present(t)
	case string:
		vs, err := codec.DecodeArray(t)
		if err != nil {
			return Absent[[]any]()
		}
		return Present(vs)
	}
	return Absent[[]any]()
}

// Delete removes a single key from both tiers and drops its sync
// registration, or fans out over a glob in pattern mode.
func (c *cache) Delete(ctx context.Context, key string, opts DeleteOptions) error {
	if err := c.open(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	if opts.Pattern {
		return c.deletePattern(ctx, key)
	}

	storage := c.names.Key(key, opts.Global)
	c.local.delete(storage)
	if c.bridge != nil {
		if err := c.bridge.deregister(ctx, storage); err != nil {
			return backendErr("unsubscribe", storage, err)
		}
	}
	if c.remote != nil {
		if err := c.remote.Del(ctx, storage); err != nil {
			return backendErr("del", storage, err)
		}
	}
	return nil
}

// deletePattern removes matching keys on both tiers. The remote side walks
// SCAN until the cursor wraps to 0; batches may repeat keys, so hits
// accumulate in a set before one DEL.
func (c *cache) deletePattern(ctx context.Context, pattern string) error {
	re, err := keys.CompilePattern(pattern)
	if err != nil {
		return fmt.Errorf("tiercache: bad pattern %q: %w", pattern, err)
	}

	localHits := c.local.deleteByPattern(re)

	remoteHits := 0
	if c.remote != nil {
		seen := make(map[string]struct{})
		var cursor uint64
		for {
			batch, next, err := c.remote.Scan(ctx, cursor, pattern, scanCount)
			if err != nil {
				return backendErr("scan", pattern, err)
			}
			for _, k := range batch {
				seen[k] = struct{}{}
			}
			if next == 0 {
				break
			}
			cursor = next
		}
		if len(seen) > 0 {
			ks := make([]string, 0, len(seen))
			for k := range seen {
				ks = append(ks, k)
			}
			if err := c.remote.Del(ctx, ks...); err != nil {
				return backendErr("del", pattern, err)
			}
			remoteHits = len(ks)
		}
	}

	c.hooks.PatternDeleted(pattern, localHits, remoteHits)
	c.log.Debug("pattern delete", Fields{"pattern": pattern, "local": localHits, "remote": remoteHits})
	return nil
}

// Dispose closes the remote connections, waits for in-flight sync work,
// cancels every expiry timer, and clears all state.
func (c *cache) Dispose(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	c.mu.Unlock()

	var err error
	if c.remote != nil {
		err = c.remote.Close()
	}
	if c.bridge != nil {
		c.bridge.wait()
	}
	c.local.clear()
	return err
}
