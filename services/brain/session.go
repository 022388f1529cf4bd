// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production BRAIN API endpoint.
const DefaultBaseURL = "https://api.worldquantbrain.com"

// The platform throttles aggressively; two requests per second with a
// small burst keeps a long mining run under the limit.
const (
	defaultRequestsPerSecond = 2
	defaultBurst             = 4
)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// BaseURL of the BRAIN API. Defaults to DefaultBaseURL.
	BaseURL string

	// Email and Password are the platform credentials used by
	// Authenticate.
	Email    string
	Password string

	// HTTPClient overrides the default client (30s timeout).
	HTTPClient HTTPClient

	// RequestsPerSecond overrides the client-side rate limit.
	RequestsPerSecond float64
}

// Session is an authenticated connection to the BRAIN API. All
// requests pass through a client-side rate limiter. Session is not
// safe for concurrent Authenticate calls; the mining loop is strictly
// sequential so this never arises in practice.
type Session struct {
	baseURL    string
	email      string
	password   string
	httpClient HTTPClient
	limiter    *rate.Limiter
	log        *slog.Logger

	// authCookies holds the session cookies returned by the
	// authentication endpoint, replayed on every request.
	authCookies []string
}

// NewSession creates a Session from config. Call Authenticate before
// issuing catalog or simulation requests.
func NewSession(cfg SessionConfig, logger *slog.Logger) *Session {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		baseURL:    baseURL,
		email:      cfg.Email,
		password:   cfg.Password,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(rps), defaultBurst),
		log:        logger,
	}
}

// Authenticate exchanges the configured credentials for session
// cookies. Must be called once before other requests.
func (s *Session) Authenticate(ctx context.Context) error {
	if s.email == "" || s.password == "" {
		return fmt.Errorf("brain credentials are missing")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/authentication", nil)
	if err != nil {
		return fmt.Errorf("failed to create authentication request: %w", err)
	}
	req.SetBasicAuth(s.email, s.password)

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authentication request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("authentication returned status %d: %s", resp.StatusCode, string(body))
	}

	s.authCookies = nil
	for _, c := range resp.Cookies() {
		s.authCookies = append(s.authCookies, c.Name+"="+c.Value)
	}
	s.log.Info("authenticated with BRAIN platform", "cookies", len(s.authCookies))
	return nil
}

// get issues a rate-limited GET against the API and decodes the JSON
// response body into out.
func (s *Session) get(ctx context.Context, path string, query url.Values, out any) error {
	target := s.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GET %s returned status %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// post issues a rate-limited POST with a JSON body and returns the raw
// response. The caller owns the body and must close it.
func (s *Session) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return s.do(ctx, req)
}

// getURL issues a rate-limited GET against an absolute URL, used for
// following Location headers returned by the simulation endpoint.
func (s *Session) getURL(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return s.do(ctx, req)
}

func (s *Session) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if len(s.authCookies) > 0 {
		req.Header.Set("Cookie", strings.Join(s.authCookies, "; "))
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}

// resolveURL turns a Location header into an absolute URL against the
// session base.
func (s *Session) resolveURL(location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	return s.baseURL + "/" + strings.TrimLeft(location, "/")
}
