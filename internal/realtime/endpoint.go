package realtime

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoEndpoint is returned when neither a stream base URL nor a usable API
// base URL is configured.
var ErrNoEndpoint = errors.New("realtime: no live update endpoint configured")

// EndpointURL builds the board stream URL for a project:
// <base>/ws/projects/<id>?token=<token>. When wsBase is empty the base is
// derived from the API origin, using wss for https and ws otherwise.
func EndpointURL(wsBase, apiBase string, projectID int64, token string) (string, error) {
	base := strings.TrimRight(wsBase, "/")
	if base == "" {
		u, err := url.Parse(apiBase)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("realtime.EndpointURL: api base %q: %w", apiBase, ErrNoEndpoint)
		}
		scheme := "ws"
		if strings.EqualFold(u.Scheme, "https") || strings.EqualFold(u.Scheme, "wss") {
			scheme = "wss"
		}
		base = scheme + "://" + u.Host
	}

	return fmt.Sprintf("%s/ws/projects/%d?token=%s", base, projectID, url.QueryEscape(token)), nil
}
