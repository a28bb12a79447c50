// Package rest is the HTTP client for the ListenList messaging API and
// its auth and profile collaborators.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"listenlist/internal/logging"
	"listenlist/internal/share"
)

const (
	sharesPath  = "/api/mensajes/shares/"
	refreshPath = "/api/token/refresh/"
	loginPath   = "/api/token/"
	profilePath = "/musica/api/usuarios/"

	defaultTimeout = 15 * time.Second
)

// Mailbox selectors for ListShares.
const (
	BoxReceived = "received"
	BoxSent     = "sent"
)

// TransportError is any REST call failing with a non-2xx status or a
// network failure. Reads recover by keeping prior state; writes surface
// the error without mutating the store.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client calls the messaging API. Tokens are supplied per call; the
// client itself holds no credential state.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logging.Component("rest_client"),
	}
}

// ListShares fetches one mailbox (BoxReceived or BoxSent).
func (c *Client) ListShares(ctx context.Context, token, box string) ([]share.Share, error) {
	endpoint := c.baseURL + sharesPath + "?box=" + url.QueryEscape(box)
	var shares []share.Share
	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// CreateShareRequest is the POST /shares/ body.
type CreateShareRequest struct {
	RecipientID int64           `json:"recipient_id"`
	ContentType string          `json:"content_type"`
	ItemID      string          `json:"item_id"`
	Payload     json.RawMessage `json:"payload"`
	MessageText string          `json:"message_text"`
}

// CreateShare sends a new share and returns the server-confirmed record.
func (c *Client) CreateShare(ctx context.Context, token string, req CreateShareRequest) (share.Share, error) {
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}
	var created share.Share
	if err := c.do(ctx, http.MethodPost, c.baseURL+sharesPath, token, req, &created); err != nil {
		return share.Share{}, err
	}
	return created, nil
}

// MarkRead marks one share read and returns the updated record.
func (c *Client) MarkRead(ctx context.Context, token, shareID string) (share.Share, error) {
	endpoint := c.baseURL + sharesPath + url.PathEscape(shareID) + "/mark_read/"
	var updated share.Share
	if err := c.do(ctx, http.MethodPost, endpoint, token, nil, &updated); err != nil {
		return share.Share{}, err
	}
	return updated, nil
}

// UnreadCounts summarizes unread activity across conversations.
type UnreadCounts struct {
	Conversations int `json:"conversations_unread"`
	Messages      int `json:"messages_unread"`
}

// UnreadCount fetches unread totals for the viewer.
func (c *Client) UnreadCount(ctx context.Context, token string) (UnreadCounts, error) {
	var counts UnreadCounts
	if err := c.do(ctx, http.MethodGet, c.baseURL+sharesPath+"unread_count/", token, nil, &counts); err != nil {
		return UnreadCounts{}, err
	}
	return counts, nil
}

// Profile is the read-only profile-lookup response.
type Profile struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Name     string `json:"nombre"`
}

// LookupProfile resolves a username to a user id. The endpoint is
// public; no token is required.
func (c *Client) LookupProfile(ctx context.Context, username string) (Profile, error) {
	endpoint := c.baseURL + profilePath + url.PathEscape(username) + "/"
	var profile Profile
	if err := c.do(ctx, http.MethodGet, endpoint, "", nil, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Refresh exchanges a refresh token for a new access token. Satisfies
// auth.Refresher.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body := map[string]string{"refresh": refreshToken}
	var resp struct {
		Access string `json:"access"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+refreshPath, "", body, &resp); err != nil {
		return "", err
	}
	if resp.Access == "" {
		return "", &TransportError{Op: "refresh token", Err: fmt.Errorf("empty access token in response")}
	}
	return resp.Access, nil
}

// Login exchanges username and password for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (access, refresh string, err error) {
	body := map[string]string{"username": username, "password": password}
	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+loginPath, "", body, &resp); err != nil {
		return "", "", err
	}
	return resp.Access, resp.Refresh, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, body, out any) error {
	op := method + " " + endpoint

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.Debug().Str("op", logging.Redact(op)).Int("status", resp.StatusCode).Msg("request failed")
		return &TransportError{Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
