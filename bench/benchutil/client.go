// Package benchutil holds the HTTP client and latency statistics shared by the bench tools.
package benchutil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running tweetfeed server.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for base. insecure skips certificate verification for
// self-signed development certificates.
func NewClient(base string, insecure bool) *Client {
	return &Client{
		base: base,
		http: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: insecure}, //nolint:gosec // bench only
				MaxIdleConnsPerHost: 256,
			},
			Timeout: 10 * time.Second,
		},
	}
}

// Do sends body as JSON and decodes a 2xx response into out when out is not nil.
func (c *Client) Do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

// Signup registers username and logs in, returning the bearer token.
func (c *Client) Signup(ctx context.Context, username string) (string, error) {
	password := "bench-" + username
	if _, err := c.Do(ctx, http.MethodPost, "/register", "", map[string]string{
		"username": username,
		"password": password,
		"name":     username,
		"gender":   "other",
	}, nil); err != nil {
		return "", err
	}

	var resp struct {
		Token string `json:"jwtToken"`
	}
	if _, err := c.Do(ctx, http.MethodPost, "/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Follow makes the token's owner follow username.
func (c *Client) Follow(ctx context.Context, token, username string) error {
	_, err := c.Do(ctx, http.MethodPost, "/user/following", token, map[string]string{"username": username}, nil)
	return err
}

// Tweet posts text and returns the new tweet id.
func (c *Client) Tweet(ctx context.Context, token, text string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	_, err := c.Do(ctx, http.MethodPost, "/user/tweets", token, map[string]string{"tweet": text}, &resp)
	return resp.ID, err
}
