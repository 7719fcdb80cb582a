package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"leadflow/notify"
	"leadflow/provider"
)

type stubRunner struct {
	result notify.Result
	err    error
	got    notify.TriggerParams
}

func (s *stubRunner) Trigger(ctx context.Context, p notify.TriggerParams) (notify.Result, error) {
	s.got = p
	return s.result, s.err
}

func doTrigger(t *testing.T, runner *stubRunner, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(NewHandler(runner, zerolog.Nop()), zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/trigger", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTriggerEndpointSuccess(t *testing.T) {
	runner := &stubRunner{result: notify.Result{OK: true, Mode: notify.ModeNormal, Kind: notify.KindReminder, Attempted: 10, Sent: 3}}

	rec := doTrigger(t, runner, `{"provider_slug":"acme-cuts","kind":"reminder"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var res notify.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Sent != 3 || res.Attempted != 10 {
		t.Errorf("unexpected result %+v", res)
	}
	if runner.got.ProviderSlug != "acme-cuts" || runner.got.Kind != notify.KindReminder {
		t.Errorf("params not forwarded: %+v", runner.got)
	}
}

func TestTriggerEndpointGatedStillOK(t *testing.T) {
	runner := &stubRunner{result: notify.Result{OK: true, Reason: notify.ReasonQuietHours}}

	rec := doTrigger(t, runner, `{"provider_slug":"acme-cuts"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for gated run", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), notify.ReasonQuietHours) {
		t.Errorf("body missing reason: %s", rec.Body.String())
	}
}

func TestTriggerEndpointMissingInput(t *testing.T) {
	runner := &stubRunner{err: notify.ErrMissingInput}

	rec := doTrigger(t, runner, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTriggerEndpointUnknownProvider(t *testing.T) {
	runner := &stubRunner{err: provider.ErrUnknownProvider}

	rec := doTrigger(t, runner, `{"provider_slug":"ghost"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestTriggerEndpointBadBody(t *testing.T) {
	rec := doTrigger(t, &stubRunner{}, `{`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHelpEndpoint(t *testing.T) {
	router := NewRouter(NewHandler(&stubRunner{}, zerolog.Nop()), zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/v1/notifications/help", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, want := range []string{"reminder", "reactivation", "test", notify.ReasonCapExhausted} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("help body missing %q", want)
		}
	}
}
