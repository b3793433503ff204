package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "forgeflow:ticket:"

// Entries outlive their TTL by this much so a late redemption can be told
// apart from an unknown token.
const redisRetention = 24 * time.Hour

type redisEntry struct {
	SubjectID string `json:"subject_id"`
	Secret    string `json:"secret,omitempty"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	Used      bool   `json:"used"`
}

// redeemScript performs check-and-mark in one round trip so concurrent
// redemptions of the same token cannot both see the secret.
var redeemScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return redis.error_reply('not_found')
end
local data = cjson.decode(raw)
if data.used then
  return redis.error_reply('already_used')
end
if tonumber(ARGV[1]) > data.expires_at then
  return redis.error_reply('expired')
end
local secret = data.secret
data.secret = nil
data.used = true
redis.call('SET', KEYS[1], cjson.encode(data), 'KEEPTTL')
return secret
`)

// RedisStore shares tickets across server instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Issue(ctx context.Context, subjectID, secret string) (*Ticket, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entry := redisEntry{
		SubjectID: subjectID,
		Secret:    secret,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, redisKeyPrefix+token, payload, s.ttl+redisRetention).Err(); err != nil {
		return nil, fmt.Errorf("failed to store ticket: %w", err)
	}

	return &Ticket{
		Token:     token,
		SubjectID: subjectID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

func (s *RedisStore) Redeem(ctx context.Context, token string) (string, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	result, err := redeemScript.Run(ctx, s.client, []string{redisKeyPrefix + token}, now).Text()
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "not_found"):
			return "", ErrNotFound
		case strings.Contains(err.Error(), "already_used"):
			return "", ErrAlreadyUsed
		case strings.Contains(err.Error(), "expired"):
			return "", ErrExpired
		}
		return "", fmt.Errorf("failed to redeem ticket: %w", err)
	}
	return result, nil
}
