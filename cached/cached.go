// Package cached memoizes function results through a tiercache provider.
//
//	user, err := cached.Do(ctx, cc, "user:"+id, tiercache.SetOptions{TTL: time.Minute},
//	    func(ctx context.Context) (User, error) {
//	        return repo.GetByID(ctx, id)
//	    })
//
// Values round-trip through the primitive shape as JSON text, so T must be
// JSON-serializable.
package cached

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/unkn0wn-root/tiercache"
)

// LoaderFn produces the value on a cache miss.
type LoaderFn[T any] func(ctx context.Context) (T, error)

// Do returns the cached value under key, or runs loader and stores its
// result. Loader errors are never cached. Store failures surface to the
// caller after the loader already ran; the value is still returned alongside
// the error by Try for callers that prefer to keep it.
func Do[T any](ctx context.Context, c tiercache.Cache, key string, opts tiercache.SetOptions, loader LoaderFn[T]) (T, error) {
	v, _, err := Try(ctx, c, key, opts, loader)
	return v, err
}

// Try is Do with an extra flag reporting whether the value came from the
// cache.
func Try[T any](ctx context.Context, c tiercache.Cache, key string, opts tiercache.SetOptions, loader LoaderFn[T]) (T, bool, error) {
	var zero T

	hit, err := c.GetPrimitive(ctx, key, tiercache.GetOptions{Raw: true, Global: opts.Global})
	if err != nil {
		return zero, false, err
	}
	if raw, ok := hit.Get(); ok {
		if text, ok := raw.(string); ok {
			var v T
			if err := json.Unmarshal([]byte(text), &v); err == nil {
				return v, true, nil
			}
			// undecodable entry: fall through and overwrite via the loader
		}
	}

	v, err := loader(ctx)
	if err != nil {
		return zero, false, err
	}
	text, err := json.Marshal(v)
	if err != nil {
		return zero, false, fmt.Errorf("cached: encode %q: %w", key, err)
	}
	if err := c.SetPrimitive(ctx, key, string(text), opts); err != nil {
		return v, false, err
	}
	return v, false, nil
}

// Invalidate drops a memoized entry.
func Invalidate(ctx context.Context, c tiercache.Cache, key string, global bool) error {
	return c.Delete(ctx, key, tiercache.DeleteOptions{Global: global})
}
