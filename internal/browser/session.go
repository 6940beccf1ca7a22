package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"ytuploader/internal/core"
)

const defaultCookieDomain = ".youtube.com"

// storedCookie is the on-disk cookie format. It accepts both the WebDriver
// export ("expiry") and browser extension exports ("expirationDate").
type storedCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain,omitempty"`
	Path           string   `json:"path,omitempty"`
	Expiry         *float64 `json:"expiry,omitempty"`
	ExpirationDate *float64 `json:"expirationDate,omitempty"`
	HTTPOnly       bool     `json:"httpOnly"`
	Secure         bool     `json:"secure"`
	SameSite       string   `json:"sameSite,omitempty"`
}

// SessionStore loads and saves per-account cookie files.
type SessionStore struct {
	cookiesDir string
	logger     *slog.Logger
}

// NewSessionStore returns a store that falls back to <cookiesDir>/<name>.json.
func NewSessionStore(cookiesDir string, logger *slog.Logger) *SessionStore {
	return &SessionStore{cookiesDir: cookiesDir, logger: logger}
}

// CookieFile resolves the cookie file of account.
func (s *SessionStore) CookieFile(account core.Account) string {
	if account.CookieFile != "" {
		if _, err := os.Stat(account.CookieFile); err == nil || s.cookiesDir == "" {
			return account.CookieFile
		}
	}
	if s.cookiesDir == "" {
		return account.CookieFile
	}
	return filepath.Join(s.cookiesDir, account.Name+".json")
}

// Load returns the account's cookies as CDP parameters. A missing file is
// not an error; the upload proceeds without a session and will likely fail
// at the login wall.
func (s *SessionStore) Load(account core.Account) ([]*network.CookieParam, error) {
	path := s.CookieFile(account)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("cookie file does not exist", "account", account.Name, "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookies for %s: %w", account.Name, err)
	}
	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse cookies for %s: %w", account.Name, err)
	}
	params := make([]*network.CookieParam, 0, len(stored))
	for _, c := range stored {
		if c.Name == "" {
			continue
		}
		params = append(params, toCookieParam(c))
	}
	s.logger.Info("loaded cookies", "account", account.Name, "count", len(params))
	return params, nil
}

// Save writes cookies to the account's cookie file.
func (s *SessionStore) Save(account core.Account, cookies []*network.Cookie) error {
	path := s.CookieFile(account)
	if path == "" {
		return fmt.Errorf("no cookie file for account %s", account.Name)
	}
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, fromCookie(c))
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cookies for %s: %w", account.Name, err)
	}
	s.logger.Info("saved cookies", "account", account.Name, "count", len(stored))
	return nil
}

func toCookieParam(c storedCookie) *network.CookieParam {
	domain := c.Domain
	if domain == "" {
		domain = defaultCookieDomain
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   domain,
		Path:     path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	switch strings.ToLower(c.SameSite) {
	case "lax":
		p.SameSite = network.CookieSameSiteLax
	case "strict", "none", "no_restriction":
		// Chrome drops SameSite=None cookies that are not Secure.
		p.SameSite = network.CookieSameSiteStrict
	}
	expiry := c.Expiry
	if expiry == nil {
		expiry = c.ExpirationDate
	}
	if expiry != nil && *expiry > 0 {
		sec := int64(*expiry)
		t := cdp.TimeSinceEpoch(time.Unix(sec, 0))
		p.Expires = &t
	}
	return p
}

func fromCookie(c *network.Cookie) storedCookie {
	sc := storedCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: string(c.SameSite),
	}
	if !c.Session && c.Expires > 0 {
		exp := c.Expires
		sc.Expiry = &exp
	}
	return sc
}
