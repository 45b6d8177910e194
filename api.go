package tiercache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tiercache/remote"
)

// Cache is the two-tier provider surface. Getters return an Optional: a
// cache miss and a cached zero value are different answers. Setters and
// Delete complete with no value; failures propagate unretried.
type Cache interface {
	GetPrimitive(ctx context.Context, key string, opts GetOptions) (Optional[any], error)
	GetArray(ctx context.Context, key string, opts GetOptions) (Optional[[]any], error)
	GetObject(ctx context.Context, key string, opts GetOptions) (Optional[map[string]any], error)

	SetPrimitive(ctx context.Context, key string, value any, opts SetOptions) error
	SetArray(ctx context.Context, key string, values []any, opts SetOptions) error
	SetObject(ctx context.Context, key string, fields map[string]any, opts SetOptions) error

	// Delete removes a key from every tier, or every matching key when
	// opts.Pattern is set.
	Delete(ctx context.Context, key string, opts DeleteOptions) error

	// Dispose closes remote connections, cancels expiry timers, and clears
	// all state. The instance is unusable afterwards; repeat calls are
	// no-ops.
	Dispose(ctx context.Context) error
}

// Options configure a cache instance.
// Only Name is required; without Single or Cluster the instance runs
// local-only.
type Options struct {
	// Name namespaces every non-global key as "<Name>::<key>".
	Name string

	// Single connects one Redis node. Ignored when Cluster is set.
	Single *remote.Endpoint
	// Cluster connects a Redis cluster.
	Cluster []remote.Endpoint

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// SetOptions tune one write.
type SetOptions struct {
	// TTL expires the entry on both tiers. Non-positive means no expiry.
	// The remote tier keeps whole seconds: longer TTLs are truncated and a
	// positive sub-second TTL becomes one second.
	TTL time.Duration

	// Level selects the target tier(s). Zero applies the default rule:
	// LevelRemote when a remote client exists, LevelLocal otherwise.
	Level Level

	// Global skips the instance prefix so other instances see the key.
	Global bool
}

// GetOptions tune one read.
type GetOptions struct {
	// ForceRemote skips the local tier even on a hit.
	ForceRemote bool

	// Raw disables best-effort type parsing of remote scalars: "123" stays
	// the string "123" instead of becoming a number. Only meaningful when
	// the value is fetched remotely.
	Raw bool

	// Global skips the instance prefix.
	Global bool
}

// DeleteOptions tune one delete.
type DeleteOptions struct {
	// Pattern treats the key as a glob ('*' and '?') applied to both
	// tiers. The caller owns prefix handling in pattern mode; Global is
	// ignored.
	Pattern bool

	// Global skips the instance prefix.
	Global bool
}

// New builds a cache instance. Dial errors against the configured backend
// surface immediately.
func New(ctx context.Context, opts Options) (Cache, error) {
	return newCache(ctx, opts)
}
