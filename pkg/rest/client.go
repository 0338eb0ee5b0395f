package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bft-labs/shardline/pkg/log"
)

// DefaultAPIURL is the versioned REST base URL.
const DefaultAPIURL = "https://discord.com/api/v10"

const gatewayBotEndpoint = "/gateway/bot"

// ErrUnauthorized is returned when the token is rejected.
var ErrUnauthorized = errors.New("unauthorized")

// SessionStartLimit bounds how many sessions may be started.
type SessionStartLimit struct {
	Total          int   `json:"total"`
	Remaining      int   `json:"remaining"`
	ResetAfter     int64 `json:"reset_after"`
	MaxConcurrency int   `json:"max_concurrency"`
}

// ResetIn returns ResetAfter as a duration.
func (l SessionStartLimit) ResetIn() time.Duration {
	return time.Duration(l.ResetAfter) * time.Millisecond
}

// GatewayBot is the response of GET /gateway/bot.
type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            uint64            `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) { cl.http = c }
}

// WithAPIURL overrides the REST base URL.
func WithAPIURL(u string) Option {
	return func(cl *Client) { cl.apiURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// Client calls the REST API.
type Client struct {
	token  string
	apiURL string
	http   HTTPClient
	logger log.Logger
}

// NewClient creates a client for token. A missing "Bot " prefix is added.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:  BotToken(token),
		apiURL: DefaultAPIURL,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BotToken returns token with the "Bot " authorization prefix.
func BotToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "Bot ") || strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bot " + token
}

// GatewayBot fetches the gateway URL and recommended sharding.
func (c *Client) GatewayBot(ctx context.Context) (GatewayBot, error) {
	url := c.apiURL + gatewayBotEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return GatewayBot{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return GatewayBot{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return GatewayBot{}, ErrUnauthorized
	case resp.StatusCode/100 != 2:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return GatewayBot{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var gb GatewayBot
	if err := json.NewDecoder(resp.Body).Decode(&gb); err != nil {
		return GatewayBot{}, fmt.Errorf("decode gateway info: %w", err)
	}

	c.logger.Debug("fetched gateway info",
		log.String("url", gb.URL),
		log.Uint64("shards", gb.Shards),
		log.Int("remaining_starts", gb.SessionStartLimit.Remaining),
		log.Int("max_concurrency", gb.SessionStartLimit.MaxConcurrency),
	)
	return gb, nil
}
