// Package callback runs the local HTTP listener that receives the OAuth
// redirect during the authorization-code flow.
package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result is one captured redirect: the authorization code plus the state
// nonce echoed back by the provider.
type Result struct {
	Code  string
	State string
	Err   error
}

// Server is the redirect listener. It also exposes health and metrics
// endpoints for the lifetime of the run.
type Server struct {
	server  *http.Server
	results chan Result
	log     *slog.Logger
}

// NewServer creates a listener on the given port. The callback path must
// match the redirect URI registered with the identity provider.
func NewServer(port int, callbackPath string) *Server {
	if callbackPath == "" {
		callbackPath = "/callback"
	}
	mux := http.NewServeMux()
	s := &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		results: make(chan Result, 1),
		log:     slog.Default().With("component", "callback"),
	}

	mux.HandleFunc(callbackPath, s.handleCallback)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server. Blocks until Stop or a listener error.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// WaitForCode blocks until a redirect arrives, the timeout elapses, or ctx
// is cancelled. Only the first redirect is honored.
func (s *Server) WaitForCode(ctx context.Context, timeout time.Duration) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-s.results:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res, nil
	case <-timer.C:
		return Result{}, fmt.Errorf("no authorization redirect within %s", timeout)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		desc := q.Get("error_description")
		s.deliver(Result{Err: fmt.Errorf("authorization denied: %s (%s)", errCode, desc)})
		http.Error(w, "Authorization failed. You can close this window.", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	s.deliver(Result{Code: code, State: q.Get("state")})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><p>Authentication complete. You can close this window.</p></body></html>")
}

// deliver hands the result to the single waiter; later redirects are dropped.
func (s *Server) deliver(res Result) {
	select {
	case s.results <- res:
	default:
		s.log.Warn("Duplicate authorization redirect ignored")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
