package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lootfun/internal/bus"
	"lootfun/internal/game"
	"lootfun/internal/session"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OptionsPatch mirrors the server's partial options update. Nil fields are
// left alone; amounts are decimal strings.
type OptionsPatch struct {
	Stake          *string  `json:"stake,omitempty"`
	LossLimit      *string  `json:"loss_limit,omitempty"`
	BreakThreshold *int     `json:"break_threshold,omitempty"`
	Autoplay       *bool    `json:"autoplay,omitempty"`
	Doors          *int     `json:"doors,omitempty"`
	HouseEdge      *float64 `json:"house_edge,omitempty"`
	Token          *string  `json:"token,omitempty"`
	AutoSellPct    *float64 `json:"auto_sell_pct,omitempty"`
}

func (p OptionsPatch) Empty() bool {
	return p == OptionsPatch{}
}

type Fairness struct {
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
}

type Created struct {
	Session session.Snapshot `json:"session"`
	Fair    *Fairness        `json:"fair,omitempty"`
}

type Leaderboard struct {
	Rows               []bus.LeaderRow `json:"rows"`
	TotalPayoutsMicros int64           `json:"total_payouts_micros"`
	TotalPayouts       string          `json:"total_payouts"`
}

type FeedView struct {
	Feed   []bus.FeedEntry `json:"feed"`
	Ticker []bus.FeedEntry `json:"ticker"`
}

type SimResult struct {
	Stats  game.Stats     `json:"stats"`
	Policy game.SimPolicy `json:"policy"`
}

func (c *Client) CreateSession(ctx context.Context, kind game.Kind, identity, clientSeed string, opts OptionsPatch) (Created, error) {
	body := map[string]any{"game": string(kind)}
	if identity != "" {
		body["identity"] = identity
	}
	if clientSeed != "" {
		body["client_seed"] = clientSeed
	}
	if !opts.Empty() {
		body["options"] = opts
	}
	var out Created
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions", body, &out)
	return out, err
}

func (c *Client) State(ctx context.Context, id string) (session.Snapshot, error) {
	var out session.Snapshot
	err := c.jsonRequest(ctx, http.MethodGet, sessionPath(id, ""), nil, &out)
	return out, err
}

func (c *Client) Play(ctx context.Context, id string, move session.Move) (session.Outcome, error) {
	var out session.Outcome
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/play"), map[string]any{
		"action": string(move.Action),
		"door":   move.Door,
	}, &out)
	return out, err
}

func (c *Client) Configure(ctx context.Context, id string, patch OptionsPatch) (session.Snapshot, error) {
	var out session.Snapshot
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/configure"), patch, &out)
	return out, err
}

func (c *Client) SetAutoplay(ctx context.Context, id string, enabled bool) (session.Snapshot, error) {
	var out session.Snapshot
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/autoplay"), map[string]any{"enabled": enabled}, &out)
	return out, err
}

func (c *Client) AcknowledgeBreak(ctx context.Context, id string) (session.Snapshot, error) {
	var out session.Snapshot
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/break/ack"), nil, &out)
	return out, err
}

func (c *Client) CloseSession(ctx context.Context, id string) (session.Snapshot, error) {
	var out session.Snapshot
	err := c.jsonRequest(ctx, http.MethodDelete, sessionPath(id, ""), nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) (Leaderboard, error) {
	path := "/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out Leaderboard
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Feed(ctx context.Context) (FeedView, error) {
	var out FeedView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/feed", nil, &out)
	return out, err
}

func (c *Client) Simulate(ctx context.Context, kind game.Kind, rounds int, seed *uint64) (SimResult, error) {
	q := url.Values{}
	if rounds > 0 {
		q.Set("rounds", strconv.Itoa(rounds))
	}
	if seed != nil {
		q.Set("seed", strconv.FormatUint(*seed, 10))
	}
	path := "/v1/games/" + url.PathEscape(string(kind)) + "/rtp"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out SimResult
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func sessionPath(id, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(id) + suffix
}

// APIError carries the status and message of a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
