package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint is the policy a remote API base URL must satisfy: https, no
// credentials or query, and a host from an allow-list.
type Endpoint struct {
	// URLVar and HostsVar name the settings in error messages.
	URLVar   string
	HostsVar string

	DefaultURL   string
	DefaultHosts []string
}

var (
	OpenRouterEndpoint = Endpoint{
		URLVar:       "OPENROUTER_BASE_URL",
		HostsVar:     "OPENROUTER_ALLOWED_HOSTS",
		DefaultURL:   "https://openrouter.ai",
		DefaultHosts: []string{"openrouter.ai", "api.openrouter.ai"},
	}
	GeminiEndpoint = Endpoint{
		URLVar:       "GEMINI_BASE_URL",
		HostsVar:     "GEMINI_ALLOWED_HOSTS",
		DefaultURL:   "https://generativelanguage.googleapis.com",
		DefaultHosts: []string{"generativelanguage.googleapis.com"},
	}
)

// Validate checks baseURL, or the default URL when it is blank, against
// the policy. allowedHosts replaces DefaultHosts when it names any host.
func (e Endpoint) Validate(baseURL string, allowedHosts []string) error {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = e.DefaultURL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", e.URLVar, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid %s %q: absolute URL with host is required", e.URLVar, baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid %s %q: userinfo is not allowed", e.URLVar, baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid %s %q: query and fragment are not allowed", e.URLVar, baseURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("invalid %s %q: host is required", e.URLVar, baseURL)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("invalid %s %q: https is required", e.URLVar, baseURL)
	}
	if _, ok := e.hosts(allowedHosts)[host]; !ok {
		return fmt.Errorf("invalid %s %q: host %q is not in %s", e.URLVar, baseURL, host, e.HostsVar)
	}
	return nil
}

func (e Endpoint) hosts(allowed []string) map[string]struct{} {
	out := normalizeHosts(allowed)
	if len(out) == 0 {
		out = normalizeHosts(e.DefaultHosts)
	}
	return out
}

// normalizeHosts lowercases entries and strips schemes, ports and slashes.
func normalizeHosts(hosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}
