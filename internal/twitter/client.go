// Package twitter is a thin client for the Twitter API v2 endpoints
// Commeet uses: posting tweets and resolving the connected account.
// OAuth uses the v2 PKCE flow; token refresh goes through x/oauth2.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.twitter.com"
	authURL        = "https://twitter.com/i/oauth2/authorize"
	tokenURL       = "https://api.twitter.com/2/oauth2/token"

	defaultTimeout = 30 * time.Second
)

// ErrTokenExpired means the access token was rejected and should be
// refreshed before retrying.
var ErrTokenExpired = errors.New("twitter token expired")

// Endpoint is the Twitter OAuth 2.0 endpoint for x/oauth2
var Endpoint = oauth2.Endpoint{
	AuthURL:   authURL,
	TokenURL:  tokenURL,
	AuthStyle: oauth2.AuthStyleInHeader,
}

// Scopes required for reading the account and posting tweets.
// offline.access is what yields a refresh token.
var Scopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// Client calls the Twitter API v2
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom API root,
// useful for tests.
func NewClientWithBaseURL(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// User is the connected Twitter account
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// FetchUser returns the account behind the access token
func (c *Client) FetchUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/2/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenExpired
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("twitter api error: %d %s", resp.StatusCode, string(body))
	}

	var out struct {
		Data User `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// PostTweet posts text to the connected account and returns the new
// tweet's ID. Returns ErrTokenExpired on a 401 so the caller can
// refresh and retry.
func (c *Client) PostTweet(ctx context.Context, accessToken, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrTokenExpired
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("twitter api error: %d %s", resp.StatusCode, string(body))
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// Refresh exchanges a refresh token for a fresh token pair
func Refresh(ctx context.Context, conf *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}
