package tiktok

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
)

// itemIDPattern extracts the numeric item ID from a canonical TikTok URL
// path such as /@user/video/<id> or /@user/photo/<id>.
var itemIDPattern = regexp.MustCompile(`/(?:video|photo|v)/(\d+)`)

// resolveItemID turns a link into its item ID. Canonical links are matched
// directly; short links (vm.tiktok.com) are followed through their redirect
// chain and the final URL is matched.
func (s *Source) resolveItemID(ctx context.Context, url string) (string, error) {
	if m := itemIDPattern.FindStringSubmatch(url); m != nil {
		return m[1], nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("tiktok: create resolve request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("tiktok: resolve link: %w", err)
	}
	_ = resp.Body.Close()

	final := resp.Request.URL.String()
	m := itemIDPattern.FindStringSubmatch(final)
	if m == nil {
		return "", fmt.Errorf("tiktok: no item id in resolved url %q", final)
	}
	return m[1], nil
}
