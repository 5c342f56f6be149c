// Package redis provides a usage.Store backed by Redis. Each (org, metric)
// counter is one hash, changed only by Lua scripts so every operation,
// rollover included, runs atomically on the server.
//
// Plans, organizations and subscriptions stay in the main store; pass this
// store to tollgate.WithUsageStore.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/usage"
)

// compile-time interface check
var _ usage.Store = (*Store)(nil)

const (
	// DefaultPrefix namespaces every key this store writes.
	DefaultPrefix = "tollgate:usage"

	// DefaultRetention is how long a counter outlives its window before
	// Redis drops it.
	DefaultRetention = 90 * 24 * time.Hour
)

// usageScript rolls a stale counter into the current window, then applies
// the operation. It returns the hash, or nil when a decrement's guard does
// not match.
//
// KEYS[1] counter hash
// ARGV: delta, period_start, period_end, now (unix ms), new id, op, retention (ms)
var usageScript = goredis.NewScript(`
local key = KEYS[1]
local delta = tonumber(ARGV[1])
local now = ARGV[4]

if redis.call('EXISTS', key) == 0 then
  redis.call('HSET', key, 'id', ARGV[5], 'count', 0,
    'period_start', ARGV[2], 'period_end', ARGV[3],
    'created_at', now, 'updated_at', now)
elseif tonumber(redis.call('HGET', key, 'period_start')) < tonumber(ARGV[2]) then
  redis.call('HSET', key, 'count', 0,
    'period_start', ARGV[2], 'period_end', ARGV[3],
    'last_reset_at', now, 'updated_at', now)
end

if ARGV[6] == 'dec' then
  if tonumber(redis.call('HGET', key, 'count')) < delta then
    return nil
  end
  redis.call('HINCRBY', key, 'count', -delta)
  redis.call('HSET', key, 'updated_at', now)
elseif delta ~= 0 then
  redis.call('HINCRBY', key, 'count', delta)
  redis.call('HSET', key, 'updated_at', now)
end

redis.call('PEXPIRE', key, tonumber(ARGV[3]) + tonumber(ARGV[7]) - tonumber(now))
return redis.call('HGETALL', key)
`)

// Store implements usage.Store on Redis.
type Store struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithRetention sets how long a counter is kept after its window ends.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// New creates a Redis usage store.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    DefaultPrefix,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromURL creates a store from a redis:// URL.
func NewFromURL(url string, opts ...Option) (*Store, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("tollgate/redis: parse url: %w", err)
	}
	return New(goredis.NewClient(o), opts...), nil
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) GetOrCreateUsage(ctx context.Context, orgID id.OrgID, metric string, w period.Window, now time.Time) (*usage.Record, error) {
	return s.run(ctx, "inc", orgID, metric, 0, w, now)
}

func (s *Store) IncrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	return s.run(ctx, "inc", orgID, metric, delta, w, now)
}

func (s *Store) DecrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	rec, err := s.run(ctx, "dec", orgID, metric, delta, w, now)
	if errors.Is(err, goredis.Nil) {
		return nil, nil //nolint:nilnil // guard did not match
	}
	return rec, err
}

func (s *Store) key(orgID id.OrgID, metric string) string {
	return s.prefix + ":" + orgID.String() + ":" + metric
}

func (s *Store) run(ctx context.Context, op string, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	res, err := usageScript.Run(ctx, s.client,
		[]string{s.key(orgID, metric)},
		delta,
		w.Start.UnixMilli(),
		w.End.UnixMilli(),
		now.UnixMilli(),
		id.NewUsageID().String(),
		op,
		s.retention.Milliseconds(),
	).StringSlice()
	if err != nil {
		return nil, err
	}
	return parseRecord(orgID, metric, res)
}

// parseRecord decodes a flat HGETALL reply.
func parseRecord(orgID id.OrgID, metric string, pairs []string) (*usage.Record, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("tollgate/redis: malformed counter reply (%d fields)", len(pairs))
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields[pairs[i]] = pairs[i+1]
	}

	usageID, err := id.ParseUsageID(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("tollgate/redis: counter id: %w", err)
	}
	count, err := strconv.ParseInt(fields["count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("tollgate/redis: counter value: %w", err)
	}

	rec := &usage.Record{
		Entity: types.Entity{
			CreatedAt: millis(fields["created_at"]),
			UpdatedAt: millis(fields["updated_at"]),
		},
		ID:          usageID,
		OrgID:       orgID,
		Metric:      metric,
		Count:       count,
		PeriodStart: millis(fields["period_start"]),
		PeriodEnd:   millis(fields["period_end"]),
	}
	if v, ok := fields["last_reset_at"]; ok {
		t := millis(v)
		rec.LastResetAt = &t
	}
	return rec, nil
}

func millis(v string) time.Time {
	ms, _ := strconv.ParseInt(v, 10, 64) //nolint:errcheck // written by usageScript
	return time.UnixMilli(ms).UTC()
}
