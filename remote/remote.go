// Package remote wraps a go-redis client (single node or cluster) behind the
// small command surface the cache engine needs: atomic multi-step writes,
// key scanning, keyspace-event subscription, and server configuration.
//
// The facade hides the connection topology. Commands always run on the
// primary client; the subscription stream lives on a dedicated pub/sub
// connection that is opened lazily on the first Subscribe or Events call and
// torn down by Close. A subscribed Redis connection rejects regular commands, which is
// why the two never share.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoEndpoints is returned by Dial when neither a single node nor a
// cluster endpoint list is configured.
var ErrNoEndpoints = errors.New("remote: no endpoints configured")

const (
	// DefaultPort is assumed when an endpoint omits the port.
	DefaultPort = 6379

	eventBuffer = 128
)

// Endpoint addresses one Redis node.
type Endpoint struct {
	Host string
	Port int
}

// Addr renders host:port, padding a missing port with DefaultPort.
func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return e.Host + ":" + strconv.Itoa(port)
}

// Config selects the topology. Cluster wins when both are set.
type Config struct {
	Single  *Endpoint
	Cluster []Endpoint
}

// Event is one inbound keyspace notification: the channel it arrived on and
// the action payload ("set", "hset", "del", ...).
type Event struct {
	Channel string
	Action  string
}

// Client is the engine-facing connection. Safe for concurrent use.
type Client struct {
	rdb redis.UniversalClient

	mu     sync.Mutex
	sub    *redis.PubSub
	events chan Event
}

// Dial connects and verifies the backend with a ping.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	var rdb redis.UniversalClient
	switch {
	case len(cfg.Cluster) > 0:
		addrs := make([]string, len(cfg.Cluster))
		for i, e := range cfg.Cluster {
			addrs[i] = e.Addr()
		}
		rdb = redis.NewClusterClient(&redis.ClusterOptions{Addrs: addrs})
	case cfg.Single != nil:
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Single.Addr()})
	default:
		return nil, ErrNoEndpoints
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("remote: ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Get fetches a scalar. A missing key is (_, false, nil).
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// HGetAll fetches a hash. Redis reports a missing hash as an empty map.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

// WriteString atomically replaces key with value via MULTI/DEL/SET[/EXPIRE].
// A non-positive ttl skips the expire step.
func (c *Client) WriteString(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.Set(ctx, key, value, 0)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// WriteHash atomically replaces key with the given hash fields via
// MULTI/DEL/HSET[/EXPIRE]. An empty field map degrades to a bare delete;
// Redis has no representation for an empty hash.
func (c *Client) WriteHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		if len(fields) > 0 {
			p.HSet(ctx, key, fields)
			if ttl > 0 {
				p.Expire(ctx, key, ttl)
			}
		}
		return nil
	})
	return err
}

// Del removes the given keys. No-op without keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Expire sets a ttl on key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// Scan runs one SCAN step. A returned cursor of 0 ends the iteration; the
// same key may appear in more than one batch.
func (c *Client) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return c.rdb.Scan(ctx, cursor, match, count).Result()
}

// EnableKeyspaceEvents asks the server to publish keyspace notifications
// for all event classes.
func (c *Client) EnableKeyspaceEvents(ctx context.Context) error {
	return c.rdb.ConfigSet(ctx, "notify-keyspace-events", "KEA").Err()
}

// Subscribe adds channels to the subscription stream, opening the dedicated
// pub/sub connection on first use.
func (c *Client) Subscribe(ctx context.Context, channels ...string) error {
	c.mu.Lock()
	c.ensureSubscriberLocked(ctx)
	sub := c.sub
	c.mu.Unlock()
	return sub.Subscribe(ctx, channels...)
}

// Unsubscribe removes channels from the stream. No-op before the first
// Subscribe.
func (c *Client) Unsubscribe(ctx context.Context, channels ...string) error {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe(ctx, channels...)
}

// Events returns the inbound notification stream, opening the subscription
// connection if needed. The channel closes when the client closes.
func (c *Client) Events(ctx context.Context) <-chan Event {
	c.mu.Lock()
	c.ensureSubscriberLocked(ctx)
	ch := c.events
	c.mu.Unlock()
	return ch
}

func (c *Client) ensureSubscriberLocked(ctx context.Context) {
	if c.sub != nil {
		return
	}
	c.sub = c.rdb.Subscribe(ctx)
	c.events = make(chan Event, eventBuffer)
	go pump(c.sub, c.events)
}

func pump(sub *redis.PubSub, out chan<- Event) {
	defer close(out)
	for msg := range sub.Channel() {
		out <- Event{Channel: msg.Channel, Action: msg.Payload}
	}
}

// Close quits the subscription connection first, then the primary client.
// Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	var subErr error
	if sub != nil {
		subErr = sub.Close()
	}
	if err := c.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return subErr
}
