package media

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"wabadash/internal/constants"
	"wabadash/internal/models"
)

func allowedHosts(cfg models.MediaConfig) []string {
	if len(cfg.AllowedHosts) == 0 {
		return constants.DefaultMediaAllowedHosts
	}
	return cfg.AllowedHosts
}

// RedirectCheck applies the download allow-list to redirect targets
func RedirectCheck(cfg models.MediaConfig) func(*url.URL) error {
	hosts := allowedHosts(cfg)
	return func(u *url.URL) error {
		return validateDownloadURL(u.String(), hosts)
	}
}

// validateDownloadURL accepts only https URLs whose host is an allowed host
// or one of its subdomains. IP literals are always refused.
func validateDownloadURL(rawURL string, allowedHosts []string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("credentials in media URL are not allowed")
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("media URL has no host")
	}
	if net.ParseIP(host) != nil {
		return fmt.Errorf("download host not allowed: %s", host)
	}

	for _, allowed := range allowedHosts {
		allowed = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(allowed)), ".")
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}

	return fmt.Errorf("download host not allowed: %s", host)
}
