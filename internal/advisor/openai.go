package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// maxConsultsPerKind caps how often one error kind is escalated to the
// service within a run.
const maxConsultsPerKind = 3

// OpenAIConfig holds settings for the OpenAI-backed advisor.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI consults a chat-completions endpoint for diagnostic advice on
// unresolved errors.
type OpenAI struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	log        *slog.Logger

	mu       sync.Mutex
	consults map[domain.ErrorKind]int
}

// NewOpenAI creates an OpenAI-backed advisor.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &OpenAI{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        slog.Default().With("component", "advisor"),
		consults:   make(map[domain.ErrorKind]int),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// advicePayload is the JSON shape the model is asked to answer with.
type advicePayload struct {
	RecommendedAction string `json:"recommended_action"`
	Rationale         string `json:"rationale"`
}

// Advise implements Advisor. It sends the error record and recent history to
// the model and parses the recommended action. Every failure path returns an
// error so the caller's fail-safe Abort applies.
func (a *OpenAI) Advise(ctx context.Context, rec *domain.ErrorRecord) (Advice, error) {
	a.mu.Lock()
	a.consults[rec.Kind]++
	n := a.consults[rec.Kind]
	a.mu.Unlock()
	if n > maxConsultsPerKind {
		return Advice{Action: ActionAbort, Rationale: "advisor consultation limit reached"}, nil
	}

	reqCtx := map[string]any{
		"error_kind":           rec.Kind,
		"http_status":          rec.HTTPStatus,
		"operation_context":    map[string]string{"operation": rec.Operation, "resource": rec.Resource},
		"recent_error_history": rec.History,
		"retry_count":          rec.RetryCount,
	}
	ctxJSON, err := json.Marshal(reqCtx)
	if err != nil {
		return Advice{}, fmt.Errorf("encode advisor context: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{
				Role: "system",
				Content: "You diagnose Microsoft Graph API retrieval failures. " +
					"Answer with a single JSON object: " +
					`{"recommended_action":"retry"|"skip"|"abort","rationale":"..."}`,
			},
			{Role: "user", Content: string(ctxJSON)},
		},
	})
	if err != nil {
		return Advice{}, fmt.Errorf("encode advisor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Advice{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Advice{}, fmt.Errorf("advisor call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Advice{}, fmt.Errorf("advisor http %d: %s", resp.StatusCode, raw)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return Advice{}, fmt.Errorf("parse advisor response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return Advice{}, fmt.Errorf("advisor returned no choices")
	}

	var payload advicePayload
	if err := json.Unmarshal([]byte(extractJSON(chat.Choices[0].Message.Content)), &payload); err != nil {
		return Advice{}, fmt.Errorf("parse advice payload: %w", err)
	}

	advice := Advice{Rationale: payload.Rationale}
	switch Action(strings.ToLower(payload.RecommendedAction)) {
	case ActionRetry:
		advice.Action = ActionRetry
	case ActionSkip:
		advice.Action = ActionSkip
	case ActionAbort:
		advice.Action = ActionAbort
	default:
		return Advice{}, fmt.Errorf("advisor returned unknown action %q", payload.RecommendedAction)
	}

	a.log.Info("Advisor consulted",
		"operation", rec.Operation,
		"kind", rec.Kind,
		"action", advice.Action)
	return advice, nil
}

// extractJSON tolerates models that wrap the JSON object in prose or fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
