package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brandguard/brandguard/core/fault"
	"github.com/brandguard/brandguard/core/rules"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var postgresSchema string

const (
	selectRuleColumns       = "SELECT id, brand_id, rules, created_at, updated_at FROM brand_rules"
	selectEvaluationColumns = "SELECT id, brand_id, rule_id, asset_url, context, result, created_at FROM evaluations"
	selectFixColumns        = "SELECT id, evaluation_id, url, payload, created_at FROM fix_results"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres connects to a PostgreSQL database URL and verifies it.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fault.Database("ensure schema", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fault.Database("ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) Save(ctx context.Context, brandID string, rs *rules.RuleSet) (*RuleRecord, error) {
	data, err := rules.Canonical(rs)
	if err != nil {
		return nil, fault.Database("encode rule set", err)
	}
	now := s.now()
	rec := &RuleRecord{ID: uuid.NewString(), BrandID: brandID, Rules: *rs, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO brand_rules (id, brand_id, rules, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		rec.ID, rec.BrandID, string(data), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, fault.Database("save rule set", err)
	}
	return rec, nil
}

func (s *PostgresStore) Replace(ctx context.Context, id string, rs *rules.RuleSet) (*RuleRecord, error) {
	data, err := rules.Canonical(rs)
	if err != nil {
		return nil, fault.Database("encode rule set", err)
	}
	rec := &RuleRecord{ID: id, Rules: *rs, UpdatedAt: s.now()}
	row := s.db.QueryRowContext(ctx,
		"UPDATE brand_rules SET rules = $2, updated_at = $3 WHERE id = $1 RETURNING brand_id, created_at",
		id, string(data), rec.UpdatedAt)
	if err := row.Scan(&rec.BrandID, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("rule set", id)
		}
		return nil, fault.Database("replace rule set", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*RuleRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRuleColumns+" WHERE id = $1", id)
	rec, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Database("find rule set", err)
	}
	return rec, nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM brand_rules WHERE id = $1", id)
	if err != nil {
		return fault.Database("delete rule set", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault.Database("delete rule set", err)
	}
	if n == 0 {
		return fault.NotFound("rule set", id)
	}
	return nil
}

func (s *PostgresStore) ListByBrand(ctx context.Context, brandID string) ([]RuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRuleColumns+" WHERE brand_id = $1 ORDER BY created_at DESC", brandID)
	if err != nil {
		return nil, fault.Database("list rule sets", err)
	}
	defer rows.Close()
	out := []RuleRecord{}
	for rows.Next() {
		rec, err := scanRule(rows)
		if err != nil {
			return nil, fault.Database("list rule sets", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Database("list rule sets", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateEvaluation(ctx context.Context, in EvaluationInput, raw json.RawMessage) (*Evaluation, error) {
	ev := &Evaluation{
		ID:        uuid.NewString(),
		BrandID:   in.BrandID,
		RuleID:    in.RuleID,
		AssetURL:  in.AssetURL,
		Context:   in.Context,
		Result:    raw,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO evaluations (id, brand_id, rule_id, asset_url, context, result, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		ev.ID, ev.BrandID, ev.RuleID, ev.AssetURL, nullableJSON(ev.Context), string(raw), ev.CreatedAt)
	if err != nil {
		return nil, fault.Database("create evaluation", err)
	}
	return ev, nil
}

func (s *PostgresStore) FindEvaluationByID(ctx context.Context, id string) (*Evaluation, error) {
	var (
		ev      Evaluation
		evalCtx []byte
		result  []byte
	)
	err := s.db.QueryRowContext(ctx, selectEvaluationColumns+" WHERE id = $1", id).
		Scan(&ev.ID, &ev.BrandID, &ev.RuleID, &ev.AssetURL, &evalCtx, &result, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Database("find evaluation", err)
	}
	if len(evalCtx) > 0 {
		ev.Context = json.RawMessage(evalCtx)
	}
	ev.Result = json.RawMessage(result)
	return &ev, nil
}

func (s *PostgresStore) CreateResult(ctx context.Context, evaluationID, url string, payload json.RawMessage) (*FixResult, error) {
	res := &FixResult{
		ID:           uuid.NewString(),
		EvaluationID: evaluationID,
		URL:          url,
		Payload:      payload,
		CreatedAt:    s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO fix_results (id, evaluation_id, url, payload, created_at) VALUES ($1, $2, $3, $4, $5)",
		res.ID, res.EvaluationID, res.URL, string(payload), res.CreatedAt)
	if err != nil {
		return nil, fault.Database("create fix result", err)
	}
	return res, nil
}

func (s *PostgresStore) ListByEvaluationID(ctx context.Context, evaluationID string) ([]FixResult, error) {
	rows, err := s.db.QueryContext(ctx, selectFixColumns+" WHERE evaluation_id = $1 ORDER BY created_at ASC", evaluationID)
	if err != nil {
		return nil, fault.Database("list fix results", err)
	}
	defer rows.Close()
	out := []FixResult{}
	for rows.Next() {
		var (
			res     FixResult
			payload []byte
		)
		if err := rows.Scan(&res.ID, &res.EvaluationID, &res.URL, &payload, &res.CreatedAt); err != nil {
			return nil, fault.Database("list fix results", err)
		}
		res.Payload = json.RawMessage(payload)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Database("list fix results", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*RuleRecord, error) {
	var (
		rec  RuleRecord
		data []byte
	)
	if err := row.Scan(&rec.ID, &rec.BrandID, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &rec.Rules); err != nil {
		return nil, fmt.Errorf("decode rule set %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
