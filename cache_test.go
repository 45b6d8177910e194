package tiercache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newLocalCache(t *testing.T, name string) Cache {
	t.Helper()
	cc, err := New(context.Background(), Options{Name: name})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Dispose(context.Background()) })
	return cc
}

func mustImpl(t *testing.T, c Cache) *cache {
	t.Helper()
	impl, ok := c.(*cache)
	if !ok {
		t.Fatalf("unexpected concrete type for Cache")
	}
	return impl
}

func TestNewRequiresName(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatalf("New without a name should fail")
	}
}

// Local-only primitive round-trip: set, read back, delete, miss.
func TestLocalPrimitiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")

	if err := cc.SetPrimitive(ctx, "K", "hello", SetOptions{}); err != nil {
		t.Fatalf("SetPrimitive: %v", err)
	}
	got, err := cc.GetPrimitive(ctx, "K", GetOptions{})
	if err != nil {
		t.Fatalf("GetPrimitive: %v", err)
	}
	if v, ok := got.Get(); !ok || v != "hello" {
		t.Fatalf("expected Present(hello), got ok=%v v=%v", ok, v)
	}

	if err := cc.Delete(ctx, "K", DeleteOptions{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = cc.GetPrimitive(ctx, "K", GetOptions{})
	if err != nil {
		t.Fatalf("GetPrimitive after delete: %v", err)
	}
	if got.IsPresent() {
		t.Fatalf("expected Absent after delete")
	}
}

func TestSetGuards(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")

	if err := cc.SetPrimitive(ctx, "", "v", SetOptions{}); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("empty key: got %v", err)
	}
	if err := cc.SetPrimitive(ctx, "k", nil, SetOptions{}); !errors.Is(err, ErrNilValue) {
		t.Fatalf("nil value: got %v", err)
	}
	if err := cc.SetArray(ctx, "k", nil, SetOptions{}); !errors.Is(err, ErrNilValue) {
		t.Fatalf("nil array: got %v", err)
	}
	if err := cc.SetObject(ctx, "k", nil, SetOptions{}); !errors.Is(err, ErrNilValue) {
		t.Fatalf("nil object: got %v", err)
	}
	if _, err := cc.GetPrimitive(ctx, "", GetOptions{}); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("get empty key: got %v", err)
	}
	if err := cc.Delete(ctx, "", DeleteOptions{}); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("delete empty key: got %v", err)
	}
}

// Without a remote client the default level resolves to the local tier and
// keys land under the instance prefix.
func TestLevelDefaultsToLocalWithoutRemote(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")
	impl := mustImpl(t, cc)

	if err := cc.SetPrimitive(ctx, "K", 1, SetOptions{}); err != nil {
		t.Fatalf("SetPrimitive: %v", err)
	}
	if _, ok := impl.local.get("svc::K"); !ok {
		t.Fatalf("value not stored under the prefixed key")
	}
}

func TestGlobalKeySkipsPrefix(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")
	impl := mustImpl(t, cc)

	if err := cc.SetPrimitive(ctx, "G", "x", SetOptions{Global: true, Level: LevelLocal}); err != nil {
		t.Fatalf("SetPrimitive: %v", err)
	}
	if _, ok := impl.local.get("G"); !ok {
		t.Fatalf("global key was prefixed")
	}
	got, err := cc.GetPrimitive(ctx, "G", GetOptions{Global: true})
	if err != nil || !got.IsPresent() {
		t.Fatalf("global read: ok=%v err=%v", got.IsPresent(), err)
	}
	// a namespaced read must not see the global key
	got, err = cc.GetPrimitive(ctx, "G", GetOptions{})
	if err != nil || got.IsPresent() {
		t.Fatalf("namespaced read leaked a global key")
	}
}

func TestArrayRoundTripLocal(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")

	in := []any{"a", float64(1), true}
	if err := cc.SetArray(ctx, "A", in, SetOptions{}); err != nil {
		t.Fatalf("SetArray: %v", err)
	}
	got, err := cc.GetArray(ctx, "A", GetOptions{})
	if err != nil {
		t.Fatalf("GetArray: %v", err)
	}
	vs, ok := got.Get()
	if !ok || len(vs) != 3 || vs[0] != "a" || vs[1] != float64(1) || vs[2] != true {
		t.Fatalf("GetArray: ok=%v vs=%#v", ok, vs)
	}

	// the local tier holds the JSON text; a primitive read exposes it
	raw, err := cc.GetPrimitive(ctx, "A", GetOptions{})
	if err != nil {
		t.Fatalf("GetPrimitive: %v", err)
	}
	if v, _ := raw.Get(); v != `["a",1,true]` {
		t.Fatalf("local array text: got %#v", v)
	}
}

func TestObjectRoundTripLocal(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")

	in := map[string]any{"name": "n", "age": 55}
	if err := cc.SetObject(ctx, "O", in, SetOptions{}); err != nil {
		t.Fatalf("SetObject: %v", err)
	}
	got, err := cc.GetObject(ctx, "O", GetOptions{})
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	m, ok := got.Get()
	if !ok || m["name"] != "n" || m["age"] != 55 {
		t.Fatalf("GetObject: ok=%v m=%#v", ok, m)
	}
}

// Shape is not tracked across writes: the last writer wins and a read of a
// mismatched shape is a miss, not an error.
func TestShapeOverwriteAndMismatch(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")

	if err := cc.SetPrimitive(ctx, "K", "scalar", SetOptions{}); err != nil {
		t.Fatalf("SetPrimitive: %v", err)
	}
	if err := cc.SetObject(ctx, "K", map[string]any{"a": 1}, SetOptions{}); err != nil {
		t.Fatalf("SetObject over primitive: %v", err)
	}

	obj, err := cc.GetObject(ctx, "K", GetOptions{})
	if err != nil || !obj.IsPresent() {
		t.Fatalf("object read after overwrite: ok=%v err=%v", obj.IsPresent(), err)
	}
	arr, err := cc.GetArray(ctx, "K", GetOptions{})
	if err != nil {
		t.Fatalf("GetArray: %v", err)
	}
	if arr.IsPresent() {
		t.Fatalf("array read of an object should be Absent")
	}
}

func TestLocalTTL(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")

	if err := cc.SetPrimitive(ctx, "T", "v", SetOptions{TTL: 30 * time.Millisecond}); err != nil {
		t.Fatalf("SetPrimitive: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for {
		got, err := cc.GetPrimitive(ctx, "T", GetOptions{})
		if err != nil {
			t.Fatalf("GetPrimitive: %v", err)
		}
		if !got.IsPresent() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entry never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")

	if err := cc.SetPrimitive(ctx, "K", "v", SetOptions{}); err != nil {
		t.Fatalf("SetPrimitive: %v", err)
	}
	if err := cc.Delete(ctx, "K", DeleteOptions{}); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := cc.Delete(ctx, "K", DeleteOptions{}); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

// Pattern delete fan-out across the local tier.
func TestPatternDeleteLocal(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")
	impl := mustImpl(t, cc)

	for i := 0; i < 10; i++ {
		k := fmt.Sprintf("DEL-%d::unittest-ME", i)
		if err := cc.SetPrimitive(ctx, k, fmt.Sprintf("v%d", i), SetOptions{Level: LevelLocal}); err != nil {
			t.Fatalf("seed %q: %v", k, err)
		}
	}
	for i := 0; i < 10; i++ {
		k := fmt.Sprintf("REMOVE-%d-ME-%d", i, i)
		if err := cc.SetPrimitive(ctx, k, fmt.Sprintf("v%d", i), SetOptions{Level: LevelLocal}); err != nil {
			t.Fatalf("seed %q: %v", k, err)
		}
	}

	if err := cc.Delete(ctx, "*::unittest*", DeleteOptions{Pattern: true}); err != nil {
		t.Fatalf("pattern delete: %v", err)
	}
	if got := impl.local.size(); got != 10 {
		t.Fatalf("after first pattern delete: %d keys, want 10", got)
	}

	if err := cc.Delete(ctx, "*REMOVE-?-ME-?", DeleteOptions{Pattern: true}); err != nil {
		t.Fatalf("pattern delete: %v", err)
	}
	if got := impl.local.size(); got != 0 {
		t.Fatalf("after second pattern delete: %d keys, want 0", got)
	}
}

func TestPatternDeleteRejectsBadPattern(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")
	if err := cc.Delete(ctx, "broken[", DeleteOptions{Pattern: true}); err == nil {
		t.Fatalf("expected error for an uncompilable pattern")
	}
}

func TestDisposedInstanceRejectsOps(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")

	if err := cc.Dispose(ctx); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := cc.Dispose(ctx); err != nil {
		t.Fatalf("repeated Dispose should be a no-op: %v", err)
	}

	if err := cc.SetPrimitive(ctx, "K", "v", SetOptions{}); !errors.Is(err, ErrDisposed) {
		t.Fatalf("set on disposed: got %v", err)
	}
	if _, err := cc.GetPrimitive(ctx, "K", GetOptions{}); !errors.Is(err, ErrDisposed) {
		t.Fatalf("get on disposed: got %v", err)
	}
	if err := cc.Delete(ctx, "K", DeleteOptions{}); !errors.Is(err, ErrDisposed) {
		t.Fatalf("delete on disposed: got %v", err)
	}
}

// Re-setting the same value leaves state equivalent to a single set.
func TestSetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cc := newLocalCache(t, "svc")

	for i := 0; i < 2; i++ {
		if err := cc.SetPrimitive(ctx, "K", "v", SetOptions{}); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	got, err := cc.GetPrimitive(ctx, "K", GetOptions{})
	if err != nil {
		t.Fatalf("GetPrimitive: %v", err)
	}
	if v, ok := got.Get(); !ok || v != "v" {
		t.Fatalf("expected Present(v), got ok=%v v=%v", ok, v)
	}
}

type countingHooks struct {
	NopHooks
	expired chan string
}

func (h *countingHooks) LocalExpired(k string) { h.expired <- k }

func TestLocalExpiryHook(t *testing.T) {
	ctx := context.Background()
	h := &countingHooks{expired: make(chan string, 1)}
	cc, err := New(ctx, Options{Name: "svc", Hooks: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cc.Dispose(ctx)

	if err := cc.SetPrimitive(ctx, "T", "v", SetOptions{TTL: 20 * time.Millisecond}); err != nil {
		t.Fatalf("SetPrimitive: %v", err)
	}
	select {
	case k := <-h.expired:
		if k != "svc::T" {
			t.Fatalf("expiry hook got %q", k)
		}
	case <-time.After(time.Second):
		t.Fatalf("expiry hook never fired")
	}
}
