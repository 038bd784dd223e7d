package fault

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := Upstream(503, "down", "evaluate failed")
	wrapped := fmt.Errorf("handler: %w", base)
	if got := KindOf(wrapped); got != KindUpstream {
		t.Fatalf("expected upstream kind, got %q", got)
	}
	fe, ok := As(wrapped)
	if !ok || fe.UpstreamStatus != 503 || fe.UpstreamBody != "down" {
		t.Fatalf("unexpected payload: %+v", fe)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("expected unclassified error to have empty kind")
	}
	if KindOf(nil) != "" {
		t.Fatalf("expected nil error to have empty kind")
	}
}

func TestUnwrapCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Database("save rule", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if !strings.Contains(err.Error(), "DATABASE_ERROR") || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestErrorMessageCarriesField(t *testing.T) {
	err := Validation("brandId", "required")
	if err.Error() != "VALIDATION: brandId: required" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	cfg := Config("FIX_URL")
	if !Is(cfg, KindUpstreamConfig) || cfg.Field != "FIX_URL" {
		t.Fatalf("unexpected config error: %+v", cfg)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindUnprocessable:   http.StatusUnprocessableEntity,
		KindNotFound:        http.StatusNotFound,
		KindUpstreamTimeout: http.StatusGatewayTimeout,
		KindUpstream:        http.StatusBadGateway,
		KindUpstreamConfig:  http.StatusInternalServerError,
		KindDatabase:        http.StatusInternalServerError,
		Kind("other"):       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
