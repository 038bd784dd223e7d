// Package upstream calls the external evaluate and fix services and turns
// every outcome into either a persisted record or a classified fault.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/brandguard/brandguard/core/fault"
	"github.com/brandguard/brandguard/core/infra/bus"
	"github.com/brandguard/brandguard/core/infra/config"
	"github.com/brandguard/brandguard/core/infra/logging"
	"github.com/brandguard/brandguard/core/infra/metrics"
	"github.com/brandguard/brandguard/core/store"
)

const (
	OpEvaluate = "evaluate"
	OpFix      = "fix"

	outcomeOK = "ok"

	maxErrorBody   = 1 << 20
	maxSuccessBody = 8 << 20

	component = "upstream"
)

// EvaluateRequest is the caller input for Evaluate. The asset reference is
// AssetURL or Context; at least one must be non-empty.
type EvaluateRequest struct {
	BrandID  string          `json:"brandId"`
	RuleID   string          `json:"ruleId"`
	AssetURL string          `json:"assetUrl,omitempty"`
	Context  json.RawMessage `json:"context,omitempty"`
}

type fixRequest struct {
	EvaluationID string          `json:"evaluationId"`
	BrandID      string          `json:"brandId"`
	RuleID       string          `json:"ruleId"`
	AssetURL     string          `json:"assetUrl,omitempty"`
	Evaluation   json.RawMessage `json:"evaluation"`
}

// Orchestrator is safe for concurrent use; calls share no mutable state.
type Orchestrator struct {
	cfg         config.UpstreamConfig
	client      *http.Client
	evaluations store.EvaluationStore
	results     store.FixResultStore
	metrics     metrics.UpstreamMetrics
	publisher   bus.Publisher
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithHTTPClient replaces the default client. Its Timeout should be zero or
// larger than the configured upstream timeouts.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.client = c
		}
	}
}

func WithEvaluations(s store.EvaluationStore) Option {
	return func(o *Orchestrator) { o.evaluations = s }
}

func WithResults(s store.FixResultStore) Option {
	return func(o *Orchestrator) { o.results = s }
}

func WithMetrics(m metrics.UpstreamMetrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithPublisher(p bus.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// New builds an orchestrator. Stores are required for Evaluate and Fix to
// persist; a missing store surfaces as a database fault at call time.
func New(cfg config.UpstreamConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		client:    &http.Client{},
		metrics:   metrics.Noop{},
		publisher: bus.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Evaluate validates the request, posts it to EVALUATE_URL and persists the
// raw upstream payload. The returned evaluation's Result is the payload
// exactly as received.
func (o *Orchestrator) Evaluate(ctx context.Context, req EvaluateRequest) (ev *store.Evaluation, err error) {
	start := time.Now()
	defer func() { o.observe(OpEvaluate, start, err) }()

	in, err := normalizeEvaluate(req)
	if err != nil {
		return nil, err
	}
	if o.cfg.EvaluateURL == "" {
		return nil, fault.Config("EVALUATE_URL")
	}
	if o.evaluations == nil {
		return nil, fault.Database("evaluation store not configured", nil)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fault.Validation("context", "request is not encodable as JSON")
	}
	raw, err := o.post(ctx, OpEvaluate, o.cfg.EvaluateURL, o.cfg.EvaluateTimeout(), body)
	if err != nil {
		return nil, err
	}

	ev, err = o.evaluations.CreateEvaluation(ctx, in, raw)
	if err != nil {
		return nil, asDatabase(err, "persist evaluation")
	}
	o.publish(bus.SubjectEvaluationCreated, map[string]string{
		"evaluationId": ev.ID,
		"brandId":      ev.BrandID,
		"ruleId":       ev.RuleID,
	})
	return ev, nil
}

// Fix looks up the evaluation, posts it to FIX_URL and stores the returned
// result URL with the full payload.
func (o *Orchestrator) Fix(ctx context.Context, evaluationID string) (res *store.FixResult, err error) {
	start := time.Now()
	defer func() { o.observe(OpFix, start, err) }()

	evaluationID = strings.TrimSpace(evaluationID)
	if evaluationID == "" {
		return nil, fault.Validation("evaluationId", "must be a non-empty string")
	}
	if o.evaluations == nil || o.results == nil {
		return nil, fault.Database("fix stores not configured", nil)
	}
	ev, err := o.evaluations.FindEvaluationByID(ctx, evaluationID)
	if err != nil {
		return nil, asDatabase(err, "load evaluation")
	}
	if ev == nil {
		return nil, fault.NotFound("evaluation", evaluationID)
	}
	if o.cfg.FixURL == "" {
		return nil, fault.Config("FIX_URL")
	}

	body, err := json.Marshal(fixRequest{
		EvaluationID: ev.ID,
		BrandID:      ev.BrandID,
		RuleID:       ev.RuleID,
		AssetURL:     ev.AssetURL,
		Evaluation:   nonNullRaw(ev.Result),
	})
	if err != nil {
		return nil, fault.Database("stored evaluation is not valid JSON", err)
	}
	raw, err := o.post(ctx, OpFix, o.cfg.FixURL, o.cfg.FixTimeout(), body)
	if err != nil {
		return nil, err
	}

	url, ok := ResultURL(raw)
	if !ok {
		return nil, fault.Database("fix response has no resultUrl or url", nil)
	}
	res, err = o.results.CreateResult(ctx, ev.ID, url, raw)
	if err != nil {
		return nil, asDatabase(err, "persist fix result")
	}
	o.publish(bus.SubjectFixCreated, map[string]string{
		"fixId":        res.ID,
		"evaluationId": res.EvaluationID,
		"url":          res.URL,
	})
	return res, nil
}

// ResultURL extracts the fix output location, preferring resultUrl over url.
// Empty or non-string values do not count.
func ResultURL(payload json.RawMessage) (string, bool) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", false
	}
	for _, key := range []string{"resultUrl", "url"} {
		if s, ok := doc[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

// post sends one bounded request. The deadline's cancel runs on every path.
func (o *Orchestrator) post(ctx context.Context, op, url string, timeout time.Duration, body []byte) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		fe := fault.Config(configKey(op))
		fe.Message = "upstream endpoint is not a valid URL"
		fe.Err = err
		return nil, fe
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, classifyTransport(callCtx, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil && callCtx.Err() != nil {
			return nil, fault.Timeout(op, readErr)
		}
		return nil, fault.Upstream(resp.StatusCode, string(data), op+" rejected by upstream")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSuccessBody+1))
	if err != nil {
		return nil, classifyTransport(callCtx, op, err)
	}
	if len(data) > maxSuccessBody {
		return nil, fault.Upstream(resp.StatusCode, "", op+" response too large")
	}
	if !json.Valid(data) {
		return nil, fault.Upstream(resp.StatusCode, truncate(data, maxErrorBody), op+" response is not JSON")
	}
	return json.RawMessage(data), nil
}

func classifyTransport(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fault.Timeout(op, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fault.Timeout(op, err)
	}
	fe := fault.Upstream(0, "", op+" request failed")
	fe.Err = err
	return fe
}

func (o *Orchestrator) observe(op string, start time.Time, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = string(fault.KindOf(err))
		if outcome == "" {
			outcome = "UNKNOWN"
		}
		if fault.Is(err, fault.KindUpstreamConfig) {
			logging.Error(component, "endpoint not configured", "operation", op, "err", err)
		} else {
			logging.Warn(component, "call failed", "operation", op, "kind", outcome, "err", err)
		}
	}
	o.metrics.ObserveCall(op, outcome, time.Since(start).Seconds())
}

func (o *Orchestrator) publish(subject string, data any) {
	if err := o.publisher.Publish(subject, data); err != nil {
		logging.Warn(component, "event publish failed", "subject", subject, "err", err)
	}
}

func normalizeEvaluate(req EvaluateRequest) (store.EvaluationInput, error) {
	in := store.EvaluationInput{
		BrandID:  strings.TrimSpace(req.BrandID),
		RuleID:   strings.TrimSpace(req.RuleID),
		AssetURL: strings.TrimSpace(req.AssetURL),
	}
	if in.BrandID == "" {
		return in, fault.Validation("brandId", "must be a non-empty string")
	}
	if in.RuleID == "" {
		return in, fault.Validation("ruleId", "must be a non-empty string")
	}
	if !emptyContext(req.Context) {
		if !json.Valid(req.Context) {
			return in, fault.Validation("context", "must be valid JSON")
		}
		in.Context = append(json.RawMessage(nil), bytes.TrimSpace(req.Context)...)
	}
	if in.AssetURL == "" && in.Context == nil {
		return in, fault.Validation("assetUrl", "assetUrl or context is required")
	}
	return in, nil
}

func emptyContext(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "{}", "[]":
		return true
	}
	return false
}

func asDatabase(err error, msg string) error {
	if _, ok := fault.As(err); ok {
		return err
	}
	return fault.Database(msg, err)
}

func nonNullRaw(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func configKey(op string) string {
	if op == OpFix {
		return "FIX_URL"
	}
	return "EVALUATE_URL"
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		data = data[:n]
	}
	return string(data)
}
