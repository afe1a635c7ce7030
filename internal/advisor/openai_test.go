package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietddude/notefetch/internal/core/domain"
)

func record() *domain.ErrorRecord {
	return &domain.ErrorRecord{
		Kind:       domain.ErrorKindTransient,
		HTTPStatus: 503,
		Operation:  "download_image",
		Resource:   "https://graph.example/img/1",
		History:    []string{"download_image: http 503"},
	}
}

// adviceServer answers every chat completion with the given payload content.
func adviceServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdvisor(srvURL string) *OpenAI {
	return NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srvURL})
}

func TestAdvise_ParsesRecommendation(t *testing.T) {
	srv := adviceServer(t, `{"recommended_action":"skip","rationale":"resource is gone"}`)
	a := newTestAdvisor(srv.URL)

	advice, err := a.Advise(context.Background(), record())
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}
	if advice.Action != ActionSkip {
		t.Errorf("Action = %q, want skip", advice.Action)
	}
	if advice.Rationale != "resource is gone" {
		t.Errorf("Rationale = %q", advice.Rationale)
	}
}

func TestAdvise_ToleratesProseWrappedJSON(t *testing.T) {
	srv := adviceServer(t, "Here is my analysis:\n```json\n{\"recommended_action\":\"retry\",\"rationale\":\"flaky\"}\n```")
	a := newTestAdvisor(srv.URL)

	advice, err := a.Advise(context.Background(), record())
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}
	if advice.Action != ActionRetry {
		t.Errorf("Action = %q, want retry", advice.Action)
	}
}

func TestAdvise_UnknownActionIsError(t *testing.T) {
	srv := adviceServer(t, `{"recommended_action":"panic","rationale":"??"}`)
	a := newTestAdvisor(srv.URL)

	if _, err := a.Advise(context.Background(), record()); err == nil {
		t.Fatal("Advise should fail on an unrecognized action")
	}
}

func TestAdvise_HTTPFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	a := newTestAdvisor(srv.URL)

	if _, err := a.Advise(context.Background(), record()); err == nil {
		t.Fatal("Advise should surface a server error")
	}
}

func TestAdvise_ConsultationCapPerKind(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"recommended_action\":\"retry\",\"rationale\":\"x\"}"}}]}`)
	}))
	defer srv.Close()
	a := newTestAdvisor(srv.URL)

	rec := record()
	for i := 0; i < maxConsultsPerKind; i++ {
		if _, err := a.Advise(context.Background(), rec); err != nil {
			t.Fatalf("Advise %d failed: %v", i, err)
		}
	}

	// Beyond the cap the service is not contacted and the answer is Abort.
	advice, err := a.Advise(context.Background(), rec)
	if err != nil {
		t.Fatalf("Advise over cap failed: %v", err)
	}
	if advice.Action != ActionAbort {
		t.Errorf("Action = %q, want abort once the cap is hit", advice.Action)
	}
	if calls != maxConsultsPerKind {
		t.Errorf("service calls = %d, want %d", calls, maxConsultsPerKind)
	}
}

func TestNoop_AlwaysAborts(t *testing.T) {
	advice, err := (Noop{}).Advise(context.Background(), record())
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}
	if advice.Action != ActionAbort {
		t.Errorf("Action = %q, want abort", advice.Action)
	}
}
