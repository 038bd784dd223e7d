package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brandguard/brandguard/core/fault"
	"github.com/brandguard/brandguard/core/infra/redisutil"
	"github.com/brandguard/brandguard/core/rules"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisURL = "redis://localhost:6379"
	keyPrefix       = "brandguard:"
)

// RedisStore implements Store on Redis. Records are JSON values; per-brand
// and per-evaluation indexes are sorted sets scored by creation time.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore constructs a Redis-backed store from a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	if url == "" {
		url = defaultRedisURL
	}
	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fault.Database("ping", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func ruleKey(id string) string            { return keyPrefix + "rule:" + id }
func brandRulesKey(brandID string) string { return keyPrefix + "brand:" + brandID + ":rules" }
func evaluationKey(id string) string      { return keyPrefix + "evaluation:" + id }
func fixKey(id string) string             { return keyPrefix + "fix:" + id }
func evaluationFixesKey(id string) string { return keyPrefix + "evaluation:" + id + ":fixes" }

func score(t time.Time) float64 { return float64(t.UnixNano()) }

func (s *RedisStore) Save(ctx context.Context, brandID string, rs *rules.RuleSet) (*RuleRecord, error) {
	now := s.now()
	rec := &RuleRecord{ID: uuid.NewString(), BrandID: brandID, Rules: *rs, CreatedAt: now, UpdatedAt: now}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fault.Database("encode rule set", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, ruleKey(rec.ID), data, 0)
	pipe.ZAdd(ctx, brandRulesKey(brandID), redis.Z{Score: score(now), Member: rec.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fault.Database("save rule set", err)
	}
	return rec, nil
}

func (s *RedisStore) Replace(ctx context.Context, id string, rs *rules.RuleSet) (*RuleRecord, error) {
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fault.NotFound("rule set", id)
	}
	existing.Rules = *rs
	existing.UpdatedAt = s.now()
	data, err := json.Marshal(existing)
	if err != nil {
		return nil, fault.Database("encode rule set", err)
	}
	// SET XX so a concurrent delete is not undone.
	ok, err := s.client.SetXX(ctx, ruleKey(id), data, 0).Result()
	if err != nil {
		return nil, fault.Database("replace rule set", err)
	}
	if !ok {
		return nil, fault.NotFound("rule set", id)
	}
	return existing, nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*RuleRecord, error) {
	var rec RuleRecord
	found, err := s.getJSON(ctx, ruleKey(id), &rec)
	if err != nil {
		return nil, fault.Database("find rule set", err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

func (s *RedisStore) DeleteByID(ctx context.Context, id string) error {
	rec, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fault.NotFound("rule set", id)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, ruleKey(id))
	pipe.ZRem(ctx, brandRulesKey(rec.BrandID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fault.Database("delete rule set", err)
	}
	return nil
}

func (s *RedisStore) ListByBrand(ctx context.Context, brandID string) ([]RuleRecord, error) {
	ids, err := s.client.ZRevRange(ctx, brandRulesKey(brandID), 0, -1).Result()
	if err != nil {
		return nil, fault.Database("list rule sets", err)
	}
	out := []RuleRecord{}
	err = s.mgetJSON(ctx, ids, ruleKey, func(data []byte) error {
		var rec RuleRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fault.Database("list rule sets", err)
	}
	return out, nil
}

func (s *RedisStore) CreateEvaluation(ctx context.Context, in EvaluationInput, raw json.RawMessage) (*Evaluation, error) {
	ev := &Evaluation{
		ID:        uuid.NewString(),
		BrandID:   in.BrandID,
		RuleID:    in.RuleID,
		AssetURL:  in.AssetURL,
		Context:   in.Context,
		Result:    raw,
		CreatedAt: s.now(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fault.Database("encode evaluation", err)
	}
	if err := s.client.Set(ctx, evaluationKey(ev.ID), data, 0).Err(); err != nil {
		return nil, fault.Database("create evaluation", err)
	}
	return ev, nil
}

func (s *RedisStore) FindEvaluationByID(ctx context.Context, id string) (*Evaluation, error) {
	var ev Evaluation
	found, err := s.getJSON(ctx, evaluationKey(id), &ev)
	if err != nil {
		return nil, fault.Database("find evaluation", err)
	}
	if !found {
		return nil, nil
	}
	return &ev, nil
}

func (s *RedisStore) CreateResult(ctx context.Context, evaluationID, url string, payload json.RawMessage) (*FixResult, error) {
	res := &FixResult{
		ID:           uuid.NewString(),
		EvaluationID: evaluationID,
		URL:          url,
		Payload:      payload,
		CreatedAt:    s.now(),
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fault.Database("encode fix result", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fixKey(res.ID), data, 0)
	pipe.ZAdd(ctx, evaluationFixesKey(evaluationID), redis.Z{Score: score(res.CreatedAt), Member: res.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fault.Database("create fix result", err)
	}
	return res, nil
}

func (s *RedisStore) ListByEvaluationID(ctx context.Context, evaluationID string) ([]FixResult, error) {
	ids, err := s.client.ZRange(ctx, evaluationFixesKey(evaluationID), 0, -1).Result()
	if err != nil {
		return nil, fault.Database("list fix results", err)
	}
	out := []FixResult{}
	err = s.mgetJSON(ctx, ids, fixKey, func(data []byte) error {
		var res FixResult
		if err := json.Unmarshal(data, &res); err != nil {
			return err
		}
		out = append(out, res)
		return nil
	})
	if err != nil {
		return nil, fault.Database("list fix results", err)
	}
	return out, nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// mgetJSON loads ids in index order, skipping entries whose value is gone.
func (s *RedisStore) mgetJSON(ctx context.Context, ids []string, key func(string) string, fn func([]byte) error) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, key(id))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return err
	}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if err := fn([]byte(str)); err != nil {
			return err
		}
	}
	return nil
}
