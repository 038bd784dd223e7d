package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brandguard/brandguard/core/fault"
	"github.com/brandguard/brandguard/core/infra/config"
	"github.com/brandguard/brandguard/core/rules"
	"github.com/brandguard/brandguard/core/store"
	"gopkg.in/yaml.v3"
)

func TestHealth(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})

	rec := g.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health: %d %s", rec.Code, rec.Body.String())
	}

	g.redis.Close()
	rec = g.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected degraded health, got %d", rec.Code)
	}
}

func TestValidateRulesDryRun(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	doc := validRuleDoc(t)
	lexicon := doc["voice"].(map[string]any)["lexicon"].(map[string]any)
	delete(lexicon, "bannedPatterns")
	lexicon["bannedPhrases"] = []any{"act now"}

	rec := g.do(t, http.MethodPost, "/api/v1/rules/validate", "application/json", mustJSON(t, doc))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var rs rules.RuleSet
	if err := json.Unmarshal(rec.Body.Bytes(), &rs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rs.Voice.Lexicon.BannedPatterns) != 1 || rs.Voice.Lexicon.BannedPatterns[0] != "act now" {
		t.Fatalf("alias not folded: %+v", rs.Voice.Lexicon)
	}
	if strings.Contains(rec.Body.String(), "bannedPhrases") {
		t.Fatalf("canonical output must not carry the alias")
	}
}

func TestValidateRulesYAML(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	body, err := yaml.Marshal(validRuleDoc(t))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	rec := g.do(t, http.MethodPost, "/api/v1/rules/validate", "application/x-yaml", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for yaml body, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("responses are always json")
	}
}

func TestValidateRulesReportsEveryIssue(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	doc := validRuleDoc(t)
	doc["voice"].(map[string]any)["traits"].(map[string]any)["humor"] = []any{0, 6}
	doc["logoUsage"].(map[string]any)["background"].(map[string]any)["minContrastRatio"] = 22

	rec := g.do(t, http.MethodPost, "/api/v1/rules/validate", "application/json", mustJSON(t, doc))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeError(t, rec)
	if body.Code != string(fault.KindUnprocessable) {
		t.Fatalf("unexpected code %q", body.Code)
	}
	var humor, contrast bool
	for _, is := range body.Issues {
		humor = humor || strings.HasPrefix(is.Path, "voice.traits.humor")
		contrast = contrast || strings.HasPrefix(is.Path, "logoUsage.background.minContrastRatio")
	}
	if !humor || !contrast {
		t.Fatalf("expected both violations reported, got %+v", body.Issues)
	}
	parts := make([]string, 0, len(body.Issues))
	for _, is := range body.Issues {
		parts = append(parts, is.Path+": "+is.Reason)
	}
	if body.Message != strings.Join(parts, "; ") {
		t.Fatalf("message should list every issue, got %q", body.Message)
	}
}

func TestValidateRulesParseError(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	for _, tc := range []struct {
		contentType string
		body        string
	}{
		{contentType: "application/json", body: `{"voice":`},
		{contentType: "text/yaml", body: "voice: [unclosed"},
		{contentType: "application/json", body: "   "},
	} {
		rec := g.do(t, http.MethodPost, "/api/v1/rules/validate", tc.contentType, []byte(tc.body))
		if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != string(fault.KindValidation) {
			t.Fatalf("%s %q: expected 400 VALIDATION, got %d %s", tc.contentType, tc.body, rec.Code, rec.Body.String())
		}
	}
}

func TestBodyTooLarge(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	big := make([]byte, maxBodyBytes+10)
	for i := range big {
		big[i] = ' '
	}
	rec := g.do(t, http.MethodPost, "/api/v1/rules/validate", "application/json", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestMigrateRulesDryRun(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	body := `{"tone":{"allowed":["formal"]},"prohibitedClaims":["cures acne"],"requiredDisclaimers":["Results vary."]}`

	rec := g.do(t, http.MethodPost, "/api/v1/rules/migrate", "application/json", []byte(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var rs rules.RuleSet
	if err := json.Unmarshal(rec.Body.Bytes(), &rs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rs.Claims.BannedPatterns) != 1 || rs.Claims.BannedPatterns[0] != "cures acne" {
		t.Fatalf("unexpected claims: %+v", rs.Claims)
	}
	if len(rs.Claims.Disclaimers) != 1 || rs.Claims.Disclaimers[0].Template != "Results vary." {
		t.Fatalf("unexpected disclaimers: %+v", rs.Claims.Disclaimers)
	}
	if !rs.Voice.Traits.Formality.Contains(rules.TonePresets["formal"].Formality) {
		t.Fatalf("formal preset not covered: %v", rs.Voice.Traits.Formality)
	}

	rec = g.do(t, http.MethodPost, "/api/v1/rules/migrate", "application/json", []byte(`{"tone":{"allowed":"formal"}}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mistyped v1 body, got %d", rec.Code)
	}
}

func TestRuleLifecycle(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	doc := validRuleDoc(t)

	rec := g.do(t, http.MethodPost, "/api/v1/brands/acme/rules", "application/json", mustJSON(t, doc))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created store.RuleRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.BrandID != "acme" {
		t.Fatalf("unexpected record: %+v", created)
	}
	if rec.Header().Get("Location") != "/api/v1/rules/"+created.ID {
		t.Fatalf("unexpected location %q", rec.Header().Get("Location"))
	}

	rec = g.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}

	rec = g.do(t, http.MethodGet, "/api/v1/brands/acme/rules", "", nil)
	var list struct {
		Items []store.RuleRecord `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list.Items) != 1 {
		t.Fatalf("list: %s err=%v", rec.Body.String(), err)
	}

	doc["claims"].(map[string]any)["bannedPatterns"] = []any{"miracle"}
	rec = g.do(t, http.MethodPut, "/api/v1/rules/"+created.ID, "application/json", mustJSON(t, doc))
	if rec.Code != http.StatusOK {
		t.Fatalf("replace: %d %s", rec.Code, rec.Body.String())
	}
	var replaced store.RuleRecord
	_ = json.Unmarshal(rec.Body.Bytes(), &replaced)
	if len(replaced.Rules.Claims.BannedPatterns) != 1 || replaced.Rules.Claims.BannedPatterns[0] != "miracle" {
		t.Fatalf("replacement not applied: %+v", replaced.Rules.Claims)
	}
	if replaced.BrandID != "acme" {
		t.Fatalf("brand must survive replacement, got %q", replaced.BrandID)
	}

	if rec = g.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = g.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, "", nil)
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != string(fault.KindNotFound) {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	if rec = g.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", rec.Code)
	}
	if rec = g.do(t, http.MethodPut, "/api/v1/rules/missing", "application/json", mustJSON(t, doc)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 replacing unknown id, got %d", rec.Code)
	}
}

func TestMigrateBrandRulesPersists(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	rec := g.do(t, http.MethodPost, "/api/v1/brands/acme/rules/migrate", "application/yaml", []byte("tone:\n  allowed: [playful]\n"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created store.RuleRecord
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	stored, err := g.store.FindByID(t.Context(), created.ID)
	if err != nil || stored == nil {
		t.Fatalf("expected stored rule set, err=%v", err)
	}
}

func TestEvaluateAndFixFlow(t *testing.T) {
	eval := upstreamServer(t, http.StatusOK, `{"score":0.61,"violations":[{"rule":"logo"}]}`)
	fix := upstreamServer(t, http.StatusOK, `{"resultUrl":"https://cdn/x.mp4","extra":true}`)
	g := newTestGateway(t, config.UpstreamConfig{EvaluateURL: eval.URL, FixURL: fix.URL})

	rec := g.do(t, http.MethodPost, "/api/v1/evaluations", "application/json",
		[]byte(`{"brandId":"acme","ruleId":"r-1","assetUrl":"https://cdn/in.png"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"score":0.61,"violations":[{"rule":"logo"}]}` {
		t.Fatalf("payload must pass through unchanged: %s", rec.Body.String())
	}
	evID := rec.Header().Get("X-Evaluation-Id")
	if evID == "" {
		t.Fatalf("missing evaluation id header")
	}

	rec = g.do(t, http.MethodGet, "/api/v1/evaluations/"+evID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get evaluation: %d", rec.Code)
	}

	rec = g.do(t, http.MethodPost, "/api/v1/evaluations/"+evID+"/fix", "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("fix: %d %s", rec.Code, rec.Body.String())
	}
	var res store.FixResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode fix: %v", err)
	}
	if res.URL != "https://cdn/x.mp4" || !strings.Contains(string(res.Payload), `"extra":true`) {
		t.Fatalf("unexpected fix result: %+v", res)
	}

	rec = g.do(t, http.MethodGet, "/api/v1/evaluations/"+evID+"/fixes", "", nil)
	var list struct {
		Items []store.FixResult `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list.Items) != 1 {
		t.Fatalf("list fixes: %s err=%v", rec.Body.String(), err)
	}
}

func TestEvaluationErrorMapping(t *testing.T) {
	failing := upstreamServer(t, http.StatusServiceUnavailable, "model overloaded")
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(slow.Close)
	validBody := []byte(`{"brandId":"acme","ruleId":"r-1","assetUrl":"https://cdn/in.png"}`)

	cases := []struct {
		name       string
		cfg        config.UpstreamConfig
		body       []byte
		wantStatus int
		wantCode   fault.Kind
		check      func(t *testing.T, body errorBody)
	}{
		{
			name:       "upstream failure",
			cfg:        config.UpstreamConfig{EvaluateURL: failing.URL},
			body:       validBody,
			wantStatus: http.StatusBadGateway,
			wantCode:   fault.KindUpstream,
			check: func(t *testing.T, body errorBody) {
				if body.UpstreamStatus != http.StatusServiceUnavailable || body.UpstreamBody != "model overloaded" {
					t.Fatalf("upstream status/body not echoed: %+v", body)
				}
			},
		},
		{
			name:       "timeout",
			cfg:        config.UpstreamConfig{EvaluateURL: slow.URL, Timeout: 50 * time.Millisecond},
			body:       validBody,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   fault.KindUpstreamTimeout,
		},
		{
			name:       "config error",
			cfg:        config.UpstreamConfig{},
			body:       validBody,
			wantStatus: http.StatusInternalServerError,
			wantCode:   fault.KindUpstreamConfig,
			check: func(t *testing.T, body errorBody) {
				if body.Field != "EVALUATE_URL" {
					t.Fatalf("expected missing setting name, got %+v", body)
				}
			},
		},
		{
			name:       "validation",
			cfg:        config.UpstreamConfig{EvaluateURL: failing.URL},
			body:       []byte(`{"ruleId":"r-1","assetUrl":"u"}`),
			wantStatus: http.StatusBadRequest,
			wantCode:   fault.KindValidation,
			check: func(t *testing.T, body errorBody) {
				if body.Field != "brandId" {
					t.Fatalf("expected brandId field, got %+v", body)
				}
			},
		},
		{
			name:       "not an object",
			cfg:        config.UpstreamConfig{EvaluateURL: failing.URL},
			body:       []byte(`[1,2]`),
			wantStatus: http.StatusBadRequest,
			wantCode:   fault.KindValidation,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(t, tc.cfg)
			rec := g.do(t, http.MethodPost, "/api/v1/evaluations", "application/json", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Code != string(tc.wantCode) {
				t.Fatalf("expected code %s, got %s", tc.wantCode, body.Code)
			}
			if tc.check != nil {
				tc.check(t, body)
			}
		})
	}
}

func TestFixErrors(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})

	rec := g.do(t, http.MethodPost, "/api/v1/evaluations/unknown/fix", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = g.do(t, http.MethodGet, "/api/v1/evaluations/unknown/fixes", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 listing fixes of unknown evaluation, got %d", rec.Code)
	}

	ev, err := g.store.CreateEvaluation(t.Context(), store.EvaluationInput{BrandID: "acme", RuleID: "r", AssetURL: "u"}, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec = g.do(t, http.MethodPost, "/api/v1/evaluations/"+ev.ID+"/fix", "", nil)
	body := decodeError(t, rec)
	if rec.Code != http.StatusInternalServerError || body.Code != string(fault.KindUpstreamConfig) || body.Field != "FIX_URL" {
		t.Fatalf("expected config error, got %d %+v", rec.Code, body)
	}
}

func TestFixMissingResultURLIsDatabaseError(t *testing.T) {
	fix := upstreamServer(t, http.StatusOK, `{"status":"rendered"}`)
	g := newTestGateway(t, config.UpstreamConfig{FixURL: fix.URL})
	ev, err := g.store.CreateEvaluation(t.Context(), store.EvaluationInput{BrandID: "acme", RuleID: "r", AssetURL: "u"}, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec := g.do(t, http.MethodPost, "/api/v1/evaluations/"+ev.ID+"/fix", "", nil)
	if rec.Code != http.StatusInternalServerError || decodeError(t, rec).Code != string(fault.KindDatabase) {
		t.Fatalf("expected DATABASE_ERROR, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestUploadAsset(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	rec := g.do(t, http.MethodPost, "/api/v1/brands/acme/assets", "image/png", []byte("png"))
	if rec.Code != http.StatusServiceUnavailable || decodeError(t, rec).Field != "ASSET_BUCKET" {
		t.Fatalf("expected 503 without bucket, got %d", rec.Code)
	}

	blobs := &memoryBlobs{objects: map[string][]byte{}}
	g.srv.assets = blobs
	rec = g.do(t, http.MethodPost, "/api/v1/brands/acme/assets", "image/png", []byte("png"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "https://cdn.test/brands/acme/asset") {
		t.Fatalf("unexpected upload response: %s", rec.Body.String())
	}
	rec = g.do(t, http.MethodPost, "/api/v1/brands/acme/assets", "image/png", []byte{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty asset, got %d", rec.Code)
	}
}

func TestInstrumentedRecordsRoute(t *testing.T) {
	g := newTestGateway(t, config.UpstreamConfig{})
	g.do(t, http.MethodGet, "/api/v1/rules/nope", "", nil)

	g.metrics.mu.Lock()
	defer g.metrics.mu.Unlock()
	if len(g.metrics.seen) != 1 {
		t.Fatalf("expected one observation, got %v", g.metrics.seen)
	}
	want := observedRequest{method: http.MethodGet, route: "/api/v1/rules/{id}", status: "404"}
	if g.metrics.seen[0] != want {
		t.Fatalf("unexpected observation: %+v", g.metrics.seen[0])
	}
}

func TestDescribeError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "parse", err: &rules.ParseError{Format: "json", Err: errors.New("eof")}, status: 400, code: "VALIDATION"},
		{name: "rule schema", err: &rules.ValidationError{Issues: []rules.Issue{{Path: "claims", Reason: "required"}, {Path: "voice", Reason: "required"}}}, status: 422, code: "UNPROCESSABLE", message: "claims: required; voice: required"},
		{name: "timeout", err: fault.Timeout("fix", nil), status: 504, code: "UPSTREAM_TIMEOUT"},
		{name: "database", err: fault.Database("insert", errors.New("conn reset")), status: 500, code: "DATABASE_ERROR"},
		{name: "unclassified", err: errors.New("boom"), status: 500, code: "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := describeError(tc.err)
			if status != tc.status || body.Code != tc.code {
				t.Fatalf("got %d %s", status, body.Code)
			}
			if tc.message != "" && body.Message != tc.message {
				t.Fatalf("unexpected message %q", body.Message)
			}
		})
	}
}
