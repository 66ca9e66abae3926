// Package ratelimit implements the login, registration and admin throttles on
// top of Redis hashes with TTL.
//
// Three scopes share the same shape. Per-email and per-admin-IP scopes count
// failures and ban after a threshold; the per-IP scope counts every attempt.
// Checks are pure reads. Each record call is a single Lua script, so one
// record is atomic, but a check followed by a record is not.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rejection reasons surfaced to clients.
const (
	ReasonAccountBanned = "ACCOUNT_BANNED"
	ReasonTooFrequent   = "TOO_FREQUENT"
	ReasonIPRateLimit   = "IP_RATE_LIMIT"
	ReasonAdminBanned   = "ADMIN_BANNED"
)

// Decision is the result of a check. WaitSeconds is set only when the
// attempt is rejected and is always at least 1.
type Decision struct {
	Allowed     bool
	Reason      string
	WaitSeconds int
}

func allow() Decision { return Decision{Allowed: true} }

func reject(reason string, wait time.Duration) Decision {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return Decision{Reason: reason, WaitSeconds: secs}
}

// Policy configures a failure-counting scope.
type Policy struct {
	Window      time.Duration
	MaxFailures int
	BanDuration time.Duration
	Cooldown    time.Duration
}

// IPPolicy configures the raw attempt counter.
type IPPolicy struct {
	Window      time.Duration
	MaxAttempts int
}

var (
	DefaultEmailPolicy = Policy{Window: time.Hour, MaxFailures: 5, BanDuration: 2 * time.Hour, Cooldown: 5 * time.Second}
	DefaultAdminPolicy = Policy{Window: time.Hour, MaxFailures: 5, BanDuration: 2 * time.Hour}
	DefaultIPPolicy    = IPPolicy{Window: time.Hour, MaxAttempts: 10}
)

// ttlBuffer keeps state around a little longer than it can matter.
const ttlBuffer = 10 * time.Minute

const (
	emailPrefix = "rl:email:"
	ipPrefix    = "rl:ip:"
	adminPrefix = "rl:admin:"
)

// emailKey names the per-email hash by a digest of the address, so arbitrary
// client input never ends up in the key itself.
func emailKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return emailPrefix + hex.EncodeToString(sum[:])
}

type Limiter struct {
	rdb   redis.UniversalClient
	email Policy
	admin Policy
	ip    IPPolicy
	now   func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithEmailPolicy(p Policy) Option {
	return func(l *Limiter) { l.email = p }
}

func WithAdminPolicy(p Policy) Option {
	return func(l *Limiter) { l.admin = p }
}

func WithIPPolicy(p IPPolicy) Option {
	return func(l *Limiter) { l.ip = p }
}

func New(rdb redis.UniversalClient, opts ...Option) *Limiter {
	l := &Limiter{
		rdb:   rdb,
		email: DefaultEmailPolicy,
		admin: DefaultAdminPolicy,
		ip:    DefaultIPPolicy,
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Ping reports whether the backing store is reachable.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// CheckRateLimit evaluates the per-email login scope.
func (l *Limiter) CheckRateLimit(ctx context.Context, email string) (Decision, error) {
	return l.checkFailures(ctx, emailKey(email), l.email, ReasonAccountBanned)
}

// CheckAdminRateLimit evaluates the per-admin-IP scope.
func (l *Limiter) CheckAdminRateLimit(ctx context.Context, ip string) (Decision, error) {
	return l.checkFailures(ctx, adminPrefix+ip, l.admin, ReasonAdminBanned)
}

// CheckIPRateLimit evaluates the raw per-IP attempt counter.
func (l *Limiter) CheckIPRateLimit(ctx context.Context, ip string) (Decision, error) {
	vals, err := l.rdb.HMGet(ctx, ipPrefix+ip, "count", "first").Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit read: %w", err)
	}

	now := l.now().UnixMilli()
	count, first := toInt(vals[0]), toInt(vals[1])
	window := l.ip.Window.Milliseconds()

	if first == 0 || now-first > window {
		return allow(), nil
	}
	if count >= int64(l.ip.MaxAttempts) {
		return reject(ReasonIPRateLimit, time.Duration(first+window-now)*time.Millisecond), nil
	}
	return allow(), nil
}

func (l *Limiter) checkFailures(ctx context.Context, key string, p Policy, banReason string) (Decision, error) {
	vals, err := l.rdb.HMGet(ctx, key, "count", "first", "last", "ban").Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit read: %w", err)
	}

	now := l.now().UnixMilli()
	last, ban := toInt(vals[2]), toInt(vals[3])

	if ban > now {
		return reject(banReason, time.Duration(ban-now)*time.Millisecond), nil
	}
	if p.Cooldown > 0 && last > 0 && now-last < p.Cooldown.Milliseconds() {
		return reject(ReasonTooFrequent, time.Duration(last+p.Cooldown.Milliseconds()-now)*time.Millisecond), nil
	}
	return allow(), nil
}

// recordFailureScript bumps the failure counter, restarting the window when
// it has elapsed (unless a ban is still running) and setting the ban once
// the threshold is reached.
var recordFailureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local ban = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local first = tonumber(redis.call('HGET', KEYS[1], 'first'))
local count = tonumber(redis.call('HGET', KEYS[1], 'count')) or 0
local banUntil = tonumber(redis.call('HGET', KEYS[1], 'ban')) or 0

if first == nil or (now - first > window and banUntil <= now) then
	first = now
	count = 0
	redis.call('HDEL', KEYS[1], 'ban')
end

count = count + 1
redis.call('HSET', KEYS[1], 'count', count, 'first', first, 'last', now)
if count >= max then
	redis.call('HSET', KEYS[1], 'ban', now + ban)
end
redis.call('PEXPIRE', KEYS[1], ttl)
return count
`)

// recordAttemptScript counts an attempt inside the current window.
var recordAttemptScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local first = tonumber(redis.call('HGET', KEYS[1], 'first'))
local count = tonumber(redis.call('HGET', KEYS[1], 'count')) or 0

if first == nil or now - first > window then
	first = now
	count = 0
end

count = count + 1
redis.call('HSET', KEYS[1], 'count', count, 'first', first)
redis.call('PEXPIRE', KEYS[1], ttl)
return count
`)

// RecordFailure counts a failed login for email.
func (l *Limiter) RecordFailure(ctx context.Context, email string) error {
	return l.recordFailure(ctx, emailKey(email), l.email)
}

// RecordAdminFailure counts a failed admin password check for ip.
func (l *Limiter) RecordAdminFailure(ctx context.Context, ip string) error {
	return l.recordFailure(ctx, adminPrefix+ip, l.admin)
}

func (l *Limiter) recordFailure(ctx context.Context, key string, p Policy) error {
	ttl := p.BanDuration + ttlBuffer
	err := recordFailureScript.Run(ctx, l.rdb, []string{key},
		l.now().UnixMilli(), p.Window.Milliseconds(), p.MaxFailures, p.BanDuration.Milliseconds(), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("rate limit record: %w", err)
	}
	return nil
}

// RecordIPAttempt counts an attempt from ip regardless of its outcome.
func (l *Limiter) RecordIPAttempt(ctx context.Context, ip string) error {
	ttl := l.ip.Window + ttlBuffer
	err := recordAttemptScript.Run(ctx, l.rdb, []string{ipPrefix + ip},
		l.now().UnixMilli(), l.ip.Window.Milliseconds(), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("rate limit record: %w", err)
	}
	return nil
}

// RecordSuccess forgets all login failures for email.
func (l *Limiter) RecordSuccess(ctx context.Context, email string) error {
	return l.clear(ctx, emailKey(email))
}

// RecordAdminSuccess forgets all admin failures for ip.
func (l *Limiter) RecordAdminSuccess(ctx context.Context, ip string) error {
	return l.clear(ctx, adminPrefix+ip)
}

func (l *Limiter) clear(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("rate limit clear: %w", err)
	}
	return nil
}

// toInt reads an HMGET slot; missing fields come back as nil. Lua may have
// stored whole numbers in float notation, so fall back to ParseFloat.
func toInt(v any) int64 {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}
