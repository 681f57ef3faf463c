package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix     = "w3deploy:user:"
	referralKeyPrefix = "w3deploy:referral:"
)

// RedisStore keeps each record as a hash with one JSON-encoded field per
// top-level record field, so HSET gives merge-on-write for free.
type RedisStore struct {
	rdb *redis.Client
}

// OpenRedis connects to addr and checks the connection.
func OpenRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Client exposes the connection so the price cache can share it.
func (s *RedisStore) Client() *redis.Client { return s.rdb }

func (s *RedisStore) Get(ctx context.Context, wallet string) (*records.UserRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, userKeyPrefix+records.NormalizeWallet(wallet)).Result()
	if err != nil {
		return nil, err
	}
	return records.FromFields(fields)
}

func (s *RedisStore) Merge(ctx context.Context, wallet string, p records.Patch) error {
	fields := p.Fields()
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for name, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding field %s: %w", name, err)
		}
		values[name] = string(b)
	}
	return s.rdb.HSet(ctx, userKeyPrefix+records.NormalizeWallet(wallet), values).Err()
}

func (s *RedisStore) All(ctx context.Context) (map[string]*records.UserRecord, error) {
	out := make(map[string]*records.UserRecord)
	iter := s.rdb.Scan(ctx, 0, userKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		rec, err := records.FromFields(fields)
		if err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(key, userKeyPrefix)] = rec
	}
	return out, iter.Err()
}

func (s *RedisStore) GetReferral(ctx context.Context, fid string) (*records.ReferralRecord, error) {
	raw, err := s.rdb.Get(ctx, referralKeyPrefix+fid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec records.ReferralRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding referral: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) PutReferral(ctx context.Context, rec *records.ReferralRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, referralKeyPrefix+rec.FID, raw, 0).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
