// Package profile supplies the user context interpolated into system
// prompts, either from static configuration or from the upstream
// application backend.
package profile

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/sparklearn/sparkbot/internal/config"
	"github.com/sparklearn/sparkbot/internal/engine/prompt"
)

// StaticProvider serves a fixed profile. Blank fields fall back to the
// prompt builder's generic placeholders.
type StaticProvider struct {
	profile prompt.Profile
}

// NewStaticProvider builds a provider from configuration.
func NewStaticProvider(cfg config.UpstreamConfig) *StaticProvider {
	return &StaticProvider{profile: prompt.Profile{
		Name:    cfg.Name,
		Branch:  cfg.Branch,
		Subject: cfg.Subject,
		Course:  cfg.Course,
	}}
}

// Profile returns the configured profile.
func (p *StaticProvider) Profile() prompt.Profile {
	return p.profile
}

// HTTPProvider reads the profile from the upstream /api/users/me
// endpoint, caching it briefly so prompt building stays synchronous and
// cheap. Upstream failures degrade to the last known (or zero) profile;
// a missing profile must never block a send.
type HTTPProvider struct {
	baseURL string
	token   string
	client  *http.Client

	mu        sync.Mutex
	cached    prompt.Profile
	fetchedAt time.Time
	ttl       time.Duration
}

// NewHTTPProvider builds a provider against the upstream API.
func NewHTTPProvider(cfg config.UpstreamConfig) *HTTPProvider {
	return &HTTPProvider{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: 5 * time.Second},
		ttl:     time.Minute,
	}
}

// Profile returns the cached profile, refreshing it when stale.
func (p *HTTPProvider) Profile() prompt.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.fetchedAt) < p.ttl {
		return p.cached
	}

	fetched, err := p.fetch()
	if err != nil {
		log.Printf("[profile] fetch failed, using last known profile: %v", err)
		return p.cached
	}

	p.cached = fetched
	p.fetchedAt = time.Now()
	return p.cached
}

func (p *HTTPProvider) fetch() (prompt.Profile, error) {
	req, err := http.NewRequest(http.MethodGet, p.baseURL+"/api/users/me", nil)
	if err != nil {
		return prompt.Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return prompt.Profile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return prompt.Profile{}, &statusError{code: resp.StatusCode}
	}

	var body struct {
		Name    string `json:"name"`
		Branch  string `json:"branch"`
		Subject string `json:"subject"`
		Course  string `json:"course"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return prompt.Profile{}, err
	}

	return prompt.Profile{
		Name:    body.Name,
		Branch:  body.Branch,
		Subject: body.Subject,
		Course:  body.Course,
	}, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}
