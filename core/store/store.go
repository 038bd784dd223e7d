// Package store persists rule sets, evaluations and fix results. Every
// infrastructure failure is reported as a fault.KindDatabase error.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/brandguard/brandguard/core/rules"
)

// RuleRecord is a stored rule set owned by a brand.
type RuleRecord struct {
	ID        string        `json:"id"`
	BrandID   string        `json:"brandId"`
	Rules     rules.RuleSet `json:"rules"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// EvaluationInput is the normalized evaluate request that was sent upstream.
type EvaluationInput struct {
	BrandID  string          `json:"brandId"`
	RuleID   string          `json:"ruleId"`
	AssetURL string          `json:"assetUrl,omitempty"`
	Context  json.RawMessage `json:"context,omitempty"`
}

// Evaluation associates an evaluate request with the raw upstream result.
type Evaluation struct {
	ID        string          `json:"id"`
	BrandID   string          `json:"brandId"`
	RuleID    string          `json:"ruleId"`
	AssetURL  string          `json:"assetUrl,omitempty"`
	Context   json.RawMessage `json:"context,omitempty"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FixResult is the outcome of a fix workflow for an evaluation.
type FixResult struct {
	ID           string          `json:"id"`
	EvaluationID string          `json:"evaluationId"`
	URL          string          `json:"url"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// RuleStore persists validated rule sets.
type RuleStore interface {
	Save(ctx context.Context, brandID string, rs *rules.RuleSet) (*RuleRecord, error)
	// Replace swaps the whole rule set of an existing record.
	Replace(ctx context.Context, id string, rs *rules.RuleSet) (*RuleRecord, error)
	// FindByID returns nil, nil when the record does not exist.
	FindByID(ctx context.Context, id string) (*RuleRecord, error)
	DeleteByID(ctx context.Context, id string) error
	// ListByBrand returns records newest first.
	ListByBrand(ctx context.Context, brandID string) ([]RuleRecord, error)
}

// EvaluationStore persists evaluations.
type EvaluationStore interface {
	CreateEvaluation(ctx context.Context, in EvaluationInput, raw json.RawMessage) (*Evaluation, error)
	// FindEvaluationByID returns nil, nil when the evaluation does not exist.
	FindEvaluationByID(ctx context.Context, id string) (*Evaluation, error)
}

// FixResultStore persists fix results.
type FixResultStore interface {
	CreateResult(ctx context.Context, evaluationID, url string, payload json.RawMessage) (*FixResult, error)
	// ListByEvaluationID returns results oldest first.
	ListByEvaluationID(ctx context.Context, evaluationID string) ([]FixResult, error)
}

// Store bundles the three collaborators behind one backend.
type Store interface {
	RuleStore
	EvaluationStore
	FixResultStore
	Ping(ctx context.Context) error
	Close() error
}
