package config

import (
	"fmt"
	"net/url"
	"strings"
)

const signalPath = "/signal"

// NormalizeSignalURL turns what a user is likely to paste into a signaling
// endpoint: https:// becomes wss://, and /signal is appended when missing.
// Anything that is not http(s) or ws(s) is returned unchanged.
func NormalizeSignalURL(raw string) string {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)

	switch {
	case strings.HasPrefix(lower, "https://"):
		s = "wss://" + s[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		s = "ws://" + s[len("http://"):]
	case strings.HasPrefix(lower, "ws://"), strings.HasPrefix(lower, "wss://"):
	default:
		return raw
	}

	s = strings.TrimRight(s, "/")
	if !strings.HasSuffix(s, signalPath) {
		s += signalPath
	}
	return s
}

// HealthURL derives the health check address from a signaling URL.
func HealthURL(signalURL string) (string, error) {
	u, err := url.Parse(signalURL)
	if err != nil {
		return "", fmt.Errorf("invalid signal URL %q: %w", signalURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid signal URL %q: unsupported scheme", signalURL)
	}
	u.Path = "/health"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
