package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ErrNoCredential is returned by the oauth2 token source when no usable token is stored.
var ErrNoCredential = errors.New("auth: no credential available")

// Credentials is the process-wide token store. A token set directly takes
// precedence; otherwise the token file is read on every call so a rotated
// token is picked up without a restart. Opaque tokens are passed through;
// JWTs past their exp claim count as absent.
type Credentials struct {
	token string
	file  string
	now   func() time.Time
}

// NewCredentials creates a store from a literal token and/or a token file path.
func NewCredentials(token, file string) *Credentials {
	return &Credentials{
		token: strings.TrimSpace(token),
		file:  file,
		now:   time.Now,
	}
}

// Token returns the current bearer token. ok is false when none is available,
// which is a normal state rather than an error.
func (c *Credentials) Token() (string, bool) {
	if c == nil {
		return "", false
	}

	token := c.token
	if token == "" && c.file != "" {
		raw, err := os.ReadFile(c.file)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("file", c.file).Msg("auth: cannot read token file")
			}
			return "", false
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return "", false
	}

	if exp, ok, err := expiry(token); err == nil && ok && !exp.After(c.now()) {
		log.Warn().Time("expired_at", exp).Msg("auth: stored token has expired")
		return "", false
	}

	return token, true
}

// TokenSource exposes the store to oauth2-aware HTTP clients.
func (c *Credentials) TokenSource() oauth2.TokenSource {
	return credentialSource{creds: c}
}

type credentialSource struct {
	creds *Credentials
}

func (s credentialSource) Token() (*oauth2.Token, error) {
	token, ok := s.creds.Token()
	if !ok {
		return nil, fmt.Errorf("auth.credentialSource.Token: %w", ErrNoCredential)
	}

	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if exp, ok, err := expiry(token); err == nil && ok {
		t.Expiry = exp
	}
	return t, nil
}
