// Package hotcache implements the optional hot-value cache: a publisher
// connection that SETs the current value per identity, and a subscriber
// connection that follows Redis keyspace notifications and drains
// accumulated updates onto the eventbus on a fixed interval.
package hotcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/joyautomation/mantle/internal/eventbus"
	"github.com/joyautomation/mantle/internal/topology"
)

const keyPrefix = "mantle:value:"

// entry is the JSON document stored at mantle:value:<identity key>.
type entry struct {
	TS    int64          `json:"ts"`
	Value topology.Value `json:"value"`
}

// Cache wraps the publisher/subscriber Redis connections and the drain
// loop. A nil *Cache (RedisURL unset) is never
// constructed — callers check for that at the ingress wiring layer and
// skip hot-cache writes entirely, falling back to eventbus-only delivery.
type Cache struct {
	pub *goredis.Client
	sub *goredis.Client
	bus *eventbus.Bus
	log zerolog.Logger

	drainEvery time.Duration

	mu      sync.Mutex
	pending map[string]entry // identity key -> latest value seen since last drain

	stop chan struct{}
	done chan struct{}
}

// Options configures Connect.
type Options struct {
	RedisURL   string
	MaxRetries int
	RetryDelay time.Duration
	DrainEvery time.Duration
	Bus        *eventbus.Bus
	Log        zerolog.Logger
}

// Connect opens the publisher and subscriber connections, retrying
// connection establishment up to MaxRetries times with a fixed delay.
// All other Redis failures are logged, never retried.
func Connect(ctx context.Context, opts Options) (*Cache, error) {
	popts, err := goredis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	pub := goredis.NewClient(popts)
	sub := goredis.NewClient(popts)

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			opts.Log.Warn().Int("attempt", attempt).Err(lastErr).Msg("hot cache connect retry")
			time.Sleep(opts.RetryDelay)
		}
		if err := pub.Ping(ctx).Err(); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		pub.Close()
		sub.Close()
		return nil, fmt.Errorf("hot cache connect: %w", lastErr)
	}

	if err := sub.ConfigSet(ctx, "notify-keyspace-events", "KEA").Err(); err != nil {
		opts.Log.Warn().Err(err).Msg("could not enable keyspace notifications, hot cache will not receive updates")
	}

	drainEvery := opts.DrainEvery
	if drainEvery <= 0 {
		drainEvery = time.Second
	}

	c := &Cache{
		pub:        pub,
		sub:        sub,
		bus:        opts.Bus,
		log:        opts.Log,
		drainEvery: drainEvery,
		pending:    make(map[string]entry),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	go c.listen(ctx)
	go c.drainLoop()

	return c, nil
}

// Set writes the current value for identity into the publisher
// connection.
func (c *Cache) Set(ctx context.Context, id topology.Identity, ts int64, value topology.Value) error {
	data, err := json.Marshal(entry{TS: ts, Value: value})
	if err != nil {
		return err
	}
	return c.pub.Set(ctx, keyPrefix+id.Key(), data, 0).Err()
}

// Delete removes the cached value for identity, used by the delete
// cascade.
func (c *Cache) Delete(ctx context.Context, id topology.Identity) error {
	return c.pub.Del(ctx, keyPrefix+id.Key()).Err()
}

func (c *Cache) listen(ctx context.Context) {
	psub := c.sub.PSubscribe(ctx, "__keyevent@0__:*")
	defer psub.Close()

	ch := psub.Channel()
	for {
		select {
		case <-c.stop:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.handleNotification(ctx, msg)
		}
	}
}

func (c *Cache) handleNotification(ctx context.Context, msg *goredis.Message) {
	key := msg.Payload
	if !strings.HasPrefix(key, keyPrefix) {
		return
	}
	raw, err := c.sub.Get(ctx, key).Result()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn().Err(err).Str("key", key).Msg("hot cache: failed to fetch notified key")
		}
		return
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("hot cache: malformed entry, skipping")
		return
	}

	idKey := strings.TrimPrefix(key, keyPrefix)
	c.mu.Lock()
	c.pending[idKey] = e
	c.mu.Unlock()
}

func (c *Cache) drainLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.drainEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			c.drain()
			return
		case <-ticker.C:
			c.drain()
		}
	}
}

func (c *Cache) drain() {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.pending
	c.pending = make(map[string]entry)
	c.mu.Unlock()

	for idKey, e := range batch {
		c.bus.Publish(eventbus.TopicMetricUpdate, idKey, e)
	}
}

// RebuildHierarchy reads every cached key and folds it into a fresh
// topology.Host projection. Entries that
// fail to parse are logged and skipped, never fatal to the rebuild.
func (c *Cache) RebuildHierarchy(ctx context.Context) (*topology.Host, error) {
	host := topology.NewHost()

	iter := c.pub.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		idKey := strings.TrimPrefix(key, keyPrefix)
		id, ok := topology.ParseKey(idKey)
		if !ok {
			c.log.Warn().Str("key", key).Msg("hot cache rebuild: unparseable identity key, skipping")
			continue
		}

		raw, err := c.pub.Get(ctx, key).Result()
		if err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("hot cache rebuild: failed to fetch, skipping")
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("hot cache rebuild: malformed entry, skipping")
			continue
		}

		host.UpsertMetric(id, topology.Metric{Value: e.Value, TS: e.TS})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("hot cache rebuild scan: %w", err)
	}

	return host, nil
}

// Close stops the drain loop and closes both connections.
func (c *Cache) Close() error {
	close(c.stop)
	<-c.done
	if err := c.pub.Close(); err != nil {
		return err
	}
	return c.sub.Close()
}
