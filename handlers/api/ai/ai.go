package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"polotno-studio/credits"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// TextFeature is the credit spent by one chat completion.
const TextFeature = "ai-text"

type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
	Name    string `json:"name,omitempty"`
}

type ChatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
	Stream    *bool         `json:"stream"`
}

type Ledger interface {
	Remaining(ctx context.Context, feature string) (int, time.Time, error)
	Consume(ctx context.Context, feature string) (int, error)
}

// Proxy forwards chat completions to an OpenAI-compatible endpoint.
type Proxy struct {
	apiKey  string
	baseURL string
	ledger  Ledger
	client  *http.Client
}

func NewProxy(apiKey, baseURL string, ledger Ledger) *Proxy {
	if apiKey == "" {
		logrus.Warn("OPENAI_API_KEY is not set. AI proxy will not work.")
	}
	return &Proxy{
		apiKey:  apiKey,
		baseURL: baseURL,
		ledger:  ledger,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// flushWriter flushes after every write so streamed chunks reach the editor.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}

func (p *Proxy) HandleChat(w http.ResponseWriter, r *http.Request) {
	if p.apiKey == "" {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "OpenAI API key is not configured on the server"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to read request body"})
		return
	}
	defer r.Body.Close()

	var req ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil || len(req.Messages) == 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid JSON in request body"})
		return
	}

	left, err := p.ledger.Consume(r.Context(), TextFeature)
	if errors.Is(err, credits.ErrNoCredits) {
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, map[string]string{"error": "No AI credits left"})
		return
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to consume AI credit")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to check credits"})
		return
	}

	proxyReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create proxy request"})
		return
	}
	proxyReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	proxyReq.Header.Set("Content-Type", "application/json")
	proxyReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(proxyReq)
	if err != nil {
		logrus.WithError(err).Error("AI upstream unreachable")
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, map[string]string{"error": "Failed to communicate with OpenAI API"})
		return
	}
	defer resp.Body.Close()

	logrus.WithFields(logrus.Fields{"model": req.Model, "credits_left": left}).Info("Proxied chat completion")

	if req.Stream != nil && *req.Stream {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(&flushWriter{w: w, f: flusher}, resp.Body); err != nil {
			logrus.WithError(err).Warn("Error streaming response from OpenAI")
		}
		return
	}

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// HandleCredits reports the balance of the feature in the URL.
func (p *Proxy) HandleCredits(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	left, resetAt, err := p.ledger.Remaining(r.Context(), feature)
	if err != nil {
		logrus.WithError(err).WithField("feature", feature).Error("Failed to read credits")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to read credits"})
		return
	}
	render.JSON(w, r, map[string]any{
		"feature":   feature,
		"remaining": left,
		"resetAt":   resetAt,
	})
}
