package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/brandguard/brandguard/core/infra/blob"
	"github.com/brandguard/brandguard/core/infra/config"
	"github.com/brandguard/brandguard/core/rules"
	"github.com/brandguard/brandguard/core/store"
	"github.com/brandguard/brandguard/core/upstream"
)

type observedRequest struct {
	method string
	route  string
	status string
}

type recordingMetrics struct {
	mu   sync.Mutex
	seen []observedRequest
}

func (m *recordingMetrics) ObserveRequest(method, route, status string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, observedRequest{method: method, route: route, status: status})
}

type memoryBlobs struct {
	objects map[string][]byte
}

func (m *memoryBlobs) Put(_ context.Context, brandID, contentType string, data []byte) (*blob.Object, error) {
	if len(data) == 0 {
		return nil, blob.ErrEmpty
	}
	key := "brands/" + brandID + "/asset"
	m.objects[key] = data
	return &blob.Object{Key: key, URL: "https://cdn.test/" + key, ContentType: contentType, SizeBytes: int64(len(data))}, nil
}

type testGateway struct {
	srv     *server
	handler http.Handler
	store   *store.RedisStore
	redis   *miniredis.Miniredis
	metrics *recordingMetrics
}

func newTestGateway(t *testing.T, cfg config.UpstreamConfig) *testGateway {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := store.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	m := &recordingMetrics{}
	s := &server{
		store:    st,
		upstream: upstream.New(cfg, upstream.WithEvaluations(st), upstream.WithResults(st)),
		metrics:  m,
	}
	return &testGateway{srv: s, handler: s.handler(), store: st, redis: mr, metrics: m}
}

func (g *testGateway) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

// validRuleDoc returns the canonical V2 document produced by migrating an
// empty legacy rule set, as a generic map for tests to mutate.
func validRuleDoc(t *testing.T) map[string]any {
	t.Helper()
	rs, err := rules.MigrateAndValidate(rules.V1RuleSet{})
	if err != nil {
		t.Fatalf("baseline rule set: %v", err)
	}
	data, err := rules.Canonical(rs)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode baseline: %v", err)
	}
	return doc
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var env struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope %q: %v", rec.Body.String(), err)
	}
	return env.Error
}

func upstreamServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}
