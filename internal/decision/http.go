package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"CryptoSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// HTTPMaker asks an OpenAI-compatible chat-completions endpoint for a
// decision.
type HTTPMaker struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxLeverage int
	Temperature float64
	MaxTokens   int
	Client      *http.Client

	mu          sync.Mutex
	started     time.Time
	invocations int
	log         zerolog.Logger
}

// NewHTTPMaker creates an HTTPMaker with a bounded request timeout.
func NewHTTPMaker(baseURL, apiKey, modelName string, maxLeverage int, timeout time.Duration, log zerolog.Logger) *HTTPMaker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPMaker{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		Model:       modelName,
		MaxLeverage: maxLeverage,
		Temperature: 0.7,
		MaxTokens:   2000,
		Client:      &http.Client{Timeout: timeout},
		started:     time.Now(),
		log:         log.With().Str("component", "decision").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

func (m *HTTPMaker) Decide(ctx context.Context, snapshots map[string]model.MarketSnapshot, account model.AccountState) (Decision, error) {
	m.mu.Lock()
	m.invocations++
	n := m.invocations
	m.mu.Unlock()

	payload, err := json.Marshal(chatRequest{
		Model: m.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(m.MaxLeverage)},
			{Role: "user", Content: BuildPrompt(snapshots, account, time.Since(m.started), n)},
		},
		Temperature:    m.Temperature,
		MaxTokens:      m.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Decision{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
	}

	start := time.Now()
	resp, err := m.Client.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("decision request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Decision{}, fmt.Errorf("read decision reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("decision endpoint status %d: %.200s", resp.StatusCode, string(body))
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		return Decision{}, fmt.Errorf("%w: no message content", ErrBadReply)
	}
	d, err := Parse(content.String())
	if err != nil {
		return Decision{}, err
	}
	m.log.Info().
		Str("action", string(d.Action)).
		Str("asset", d.Asset).
		Float64("amount_usd", d.AmountUSD).
		Int("leverage", d.Leverage).
		Dur("latency", time.Since(start)).
		Msg("decision received")
	return d, nil
}
