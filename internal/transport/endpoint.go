package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// BuildURL appends sessionID as the final path segment and token as the
// "token" query parameter. Empty values are left out.
func BuildURL(endpoint, sessionID, token string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", errors.New("endpoint is required")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	if sessionID != "" {
		u = u.JoinPath(sessionID)
	}

	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
