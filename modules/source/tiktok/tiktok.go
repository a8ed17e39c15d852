// Package tiktok acquires media for TikTok links: it resolves a link to its
// item ID, queries the web player API, and fetches the referenced resources.
package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sliterok/tiktok-relay/internal/core"
	"github.com/sliterok/tiktok-relay/internal/media"
)

func init() {
	core.RegisterModule(&Source{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Source)(nil)
	_ core.Provisioner  = (*Source)(nil)
	_ core.Validator    = (*Source)(nil)
)

const maxResourceBytes = 256 << 20 // 256 MiB cap per fetched resource.

// Config holds the TikTok source configuration.
type Config struct {
	// APIURL is the TikTok web origin hosting the player API.
	APIURL string `yaml:"api_url"`
	// UserAgent is sent on every request; TikTok rejects the Go default.
	UserAgent string `yaml:"user_agent"`
	// Timeout bounds each HTTP request, as a Go duration string.
	Timeout string `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.APIURL == "" {
		c.APIURL = "https://www.tiktok.com"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
}

// Source is the media acquisition module.
type Source struct {
	config  Config
	timeout time.Duration
	logger  *slog.Logger
	http    *http.Client
}

// ModuleInfo implements core.Module.
func (s *Source) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "source.tiktok",
		New: func() core.Module { return &Source{} },
	}
}

// Configure implements core.Configurable.
func (s *Source) Configure(node *yaml.Node) error {
	if err := node.Decode(&s.config); err != nil {
		return fmt.Errorf("tiktok: decode config: %w", err)
	}
	s.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (s *Source) Provision(ctx *core.AppContext) error {
	s.logger = ctx.Logger
	s.http = &http.Client{Timeout: s.timeout}
	return nil
}

// Validate implements core.Validator.
func (s *Source) Validate() error {
	s.config.defaults()
	timeout, err := time.ParseDuration(s.config.Timeout)
	if err != nil {
		return fmt.Errorf("tiktok: invalid timeout %q: %w", s.config.Timeout, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("tiktok: timeout must be positive, got %s", timeout)
	}
	s.timeout = timeout
	if s.http != nil {
		s.http.Timeout = timeout
	}
	return nil
}

// Acquire resolves the link and downloads its media. Individual photo
// failures are skipped; a missing music track degrades to photos only.
func (s *Source) Acquire(ctx context.Context, url string) (*media.Result, error) {
	itemID, err := s.resolveItemID(ctx, url)
	if err != nil {
		return nil, err
	}

	item, err := s.fetchItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if videoURL := firstURL(item.VideoInfo.urls()); videoURL != "" {
		video, err := s.fetchResource(ctx, videoURL)
		if err != nil {
			return nil, fmt.Errorf("tiktok: fetch video: %w", err)
		}
		return &media.Result{Video: video}, nil
	}

	imageURLs := item.imageURLs()
	if len(imageURLs) == 0 {
		return nil, media.ErrNoMedia
	}

	var photos [][]byte
	for i, imageURL := range imageURLs {
		photo, err := s.fetchResource(ctx, imageURL)
		if err != nil {
			s.logger.Warn("photo fetch failed, skipping", "index", i, "error", err)
			continue
		}
		photos = append(photos, photo)
	}
	if len(photos) == 0 {
		return nil, media.ErrNoMedia
	}

	result := &media.Result{Photos: photos}
	if musicURL := firstURL(item.MusicInfo.urls()); musicURL != "" {
		music, err := s.fetchResource(ctx, musicURL)
		if err != nil {
			s.logger.Warn("music fetch failed, sending photos only", "error", err)
		} else {
			result.Music = music
		}
	}
	return result, nil
}

// fetchItem queries the player API for one item's resource URLs.
func (s *Source) fetchItem(ctx context.Context, itemID string) (*playerItem, error) {
	url := fmt.Sprintf("%s/player/api/v1/items?item_ids=%s", s.config.APIURL, itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tiktok: create items request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tiktok: items request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tiktok: items request returned %s", resp.Status)
	}

	var parsed playerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResourceBytes)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tiktok: decode items response: %w", err)
	}
	if parsed.StatusCode != 0 || len(parsed.Items) == 0 {
		return nil, media.ErrNoMedia
	}
	return &parsed.Items[0], nil
}

// fetchResource downloads one media resource.
func (s *Source) fetchResource(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResourceBytes))
}

func firstURL(urls []string) string {
	for _, u := range urls {
		if u != "" {
			return u
		}
	}
	return ""
}
