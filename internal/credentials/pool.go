// Package credentials manages a directory of saved browsing-session cookie
// profiles. The navigation loop rotates through them when the storefront
// flags a session; this package only loads, installs, and refreshes
// profiles — it never decides when to rotate.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"go.uber.org/zap"
)

// Cookie is one stored cookie record. The on-disk profile format is an
// ordered JSON list of these.
type Cookie struct {
	Name    string  `json:"name"`
	Value   string  `json:"value"`
	Domain  string  `json:"domain"`
	Path    string  `json:"path"`
	Expires float64 `json:"expires,omitempty"`
}

// Profile is one session-credential set tied to a single account identity.
// A profile must not be shared across concurrent sessions.
type Profile struct {
	// FilePath is the pool file this profile was loaded from; Persist writes
	// refreshed cookies back to it.
	FilePath string
	Cookies  []Cookie
}

// Pool owns the credential directory.
type Pool struct {
	dir    string
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPool creates a pool over the given directory.
func NewPool(dir string, logger *zap.Logger) *Pool {
	return &Pool{
		dir:    dir,
		logger: logger.Named("credentials"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LoadRandom picks one readable profile at random. An empty or missing pool
// is not an error: the session proceeds uncredentialled, so the return is
// (nil, nil).
func (p *Pool) LoadRandom() (*Profile, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		p.logger.Warn("Credential pool directory unreadable, proceeding without credentials",
			zap.String("dir", p.dir), zap.Error(err))
		return nil, nil
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		candidates = append(candidates, filepath.Join(p.dir, e.Name()))
	}
	if len(candidates) == 0 {
		p.logger.Warn("Credential pool is empty, proceeding without credentials", zap.String("dir", p.dir))
		return nil, nil
	}

	p.mu.Lock()
	// Random visiting order; damaged files are skipped, not fatal.
	p.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	p.mu.Unlock()

	for _, path := range candidates {
		profile, err := loadProfile(path)
		if err != nil {
			p.logger.Warn("Skipping unreadable credential profile", zap.String("file", path), zap.Error(err))
			continue
		}
		p.logger.Info("Loaded credential profile",
			zap.String("file", filepath.Base(path)), zap.Int("cookies", len(profile.Cookies)))
		return profile, nil
	}

	p.logger.Warn("No readable credential profile in pool, proceeding without credentials")
	return nil, nil
}

// ClearActive wipes all cookies from the live browser context. Always called
// before installing a new profile so identities never bleed into each other.
func (p *Pool) ClearActive(ctx context.Context) error {
	if err := network.ClearBrowserCookies().Do(ctx); err != nil {
		return fmt.Errorf("credentials: failed to clear browser cookies: %w", err)
	}
	return nil
}

// Install sets the profile's cookies on the live browser context. A nil
// profile is a no-op.
func (p *Pool) Install(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return nil
	}
	for _, c := range profile.Cookies {
		setCookie := network.SetCookie(c.Name, c.Value).
			WithDomain(c.Domain).
			WithPath(c.Path)
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			setCookie = setCookie.WithExpires(&exp)
		}
		if err := setCookie.Do(ctx); err != nil {
			return fmt.Errorf("credentials: failed to set cookie %q: %w", c.Name, err)
		}
	}
	return nil
}

// Persist reads the active context's current cookies and writes them back to
// the file the profile was loaded from, so refreshed session tokens survive
// the process.
func (p *Pool) Persist(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return nil
	}

	live, err := storage.GetCookies().Do(ctx)
	if err != nil {
		return fmt.Errorf("credentials: failed to read live cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(live))
	for _, c := range live {
		cookies = append(cookies, Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: c.Expires,
		})
	}

	if err := writeProfile(profile.FilePath, cookies); err != nil {
		return err
	}
	profile.Cookies = cookies
	p.logger.Debug("Persisted refreshed credential profile",
		zap.String("file", filepath.Base(profile.FilePath)), zap.Int("cookies", len(cookies)))
	return nil
}

func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("malformed cookie file: %w", err)
	}
	return &Profile{FilePath: path, Cookies: cookies}, nil
}

// writeProfile writes atomically via a temp file so a crash mid-write never
// corrupts a usable profile.
func writeProfile(path string, cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: failed to marshal cookies: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("credentials: failed to write profile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("credentials: failed to replace profile: %w", err)
	}
	return nil
}
