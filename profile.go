package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/timour/ucp-merchant/models"
)

var agentProfilePattern = regexp.MustCompile(`profile="([^"]+)"`)

// profileResolver fetches agent profiles referenced by the UCP-Agent header
// and extracts the platform webhook URL. Profiles are cached per URL for the
// process lifetime; a fetch failure just yields no platform config.
type profileResolver struct {
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*models.PlatformConfig
}

func newProfileResolver(logger *slog.Logger) *profileResolver {
	return &profileResolver{
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
		cache:  make(map[string]*models.PlatformConfig),
	}
}

// PlatformConfig resolves the profile link of a UCP-Agent header value into
// platform configuration. Nil when the header has no profile or the profile
// is unreachable.
func (p *profileResolver) PlatformConfig(ctx context.Context, agentHeader string) *models.PlatformConfig {
	match := agentProfilePattern.FindStringSubmatch(agentHeader)
	if match == nil {
		return nil
	}
	profileURL := match[1]

	p.mu.Lock()
	cached, ok := p.cache[profileURL]
	p.mu.Unlock()
	if ok {
		return cached
	}

	config := p.fetch(ctx, profileURL)
	p.mu.Lock()
	p.cache[profileURL] = config
	p.mu.Unlock()
	return config
}

func (p *profileResolver) fetch(ctx context.Context, profileURL string) *models.PlatformConfig {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		p.logger.Warn("invalid agent profile url", slog.String("url", profileURL), slog.Any("error", err))
		return nil
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("failed to fetch agent profile", slog.String("url", profileURL), slog.Any("error", err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("agent profile fetch rejected",
			slog.String("url", profileURL), slog.Int("status", resp.StatusCode))
		return nil
	}

	var profile struct {
		WebhookURL string `json:"webhook_url"`
		Config     struct {
			WebhookURL string `json:"webhook_url"`
		} `json:"config"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		p.logger.Warn("failed to decode agent profile", slog.String("url", profileURL), slog.Any("error", err))
		return nil
	}

	url := profile.WebhookURL
	if url == "" {
		url = profile.Config.WebhookURL
	}
	if url == "" {
		return nil
	}
	p.logger.Info("agent profile resolved", slog.String("profile_url", profileURL), slog.String("webhook_url", url))
	return &models.PlatformConfig{WebhookURL: url}
}
