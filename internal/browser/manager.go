package browser

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/browser/stealth"
	"github.com/mobhervr3-png/chinak2/internal/config"
)

// Manager handles the lifecycle of the headless browser process, ensuring
// efficient resource utilization and stealth.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	// allocatorCtx manages the entire browser process. All session contexts
	// are derived from this.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// The browser persona applied for stealth, drawn once per process.
	persona stealth.Persona

	// wg tracks active sessions for a graceful shutdown.
	wg sync.WaitGroup
}

const defaultStartupTimeout = 30 * time.Second

// NewManager initializes the browser manager, draws a session persona, and
// launches the browser process.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger, rng *rand.Rand) (*Manager, error) {
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		persona: stealth.RandomPersona(rng),
	}

	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return m, nil
}

// Persona returns the persona in effect for this browser process.
func (m *Manager) Persona() stealth.Persona {
	return m.persona
}

// launchBrowser prepares allocator options and starts the headless browser
// process, verifying it is responsive before returning. A launch failure is
// retried once after clearing a stale profile lock, which is left behind
// when a prior process died without cleanup.
func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...")

	if err := m.tryLaunch(ctx); err != nil {
		if m.cfg.Browser.UserDataDir == "" {
			return err
		}
		m.logger.Warn("Browser failed to start, clearing stale profile lock and retrying.", zap.Error(err))
		m.clearStaleProfileLock()
		if retryErr := m.tryLaunch(ctx); retryErr != nil {
			return fmt.Errorf("browser failed to start after lock cleanup: %w", retryErr)
		}
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

func (m *Manager) tryLaunch(ctx context.Context) error {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	startupTimeout := m.cfg.Browser.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = defaultStartupTimeout
	}

	// Probe with a temporary tab to confirm the browser is alive.
	testCtx, cancelTest := context.WithTimeout(allocCtx, startupTimeout)
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}
	return nil
}

// clearStaleProfileLock removes the Chromium singleton lock files from the
// user data directory. Chromium refuses to reuse a profile whose previous
// owner crashed without releasing them.
func (m *Manager) clearStaleProfileLock() {
	for _, name := range []string{"SingletonLock", "SingletonSocket", "SingletonCookie"} {
		path := filepath.Join(m.cfg.Browser.UserDataDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("Failed to remove profile lock file.", zap.String("path", path), zap.Error(err))
		}
	}
}

// buildAllocatorOptions assembles the flags for a stealthy, configurable
// browser instance.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	// Start with default options, filtering out flags that reveal automation.
	// Flags live in a map, so overriding "enable-automation" with false drops
	// it from the command line, matching removal of the default.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("enable-automation", false))

	opts = append(opts,
		chromedp.Flag("headless", m.cfg.Browser.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.Browser.IgnoreTLSErrors),
		// Disable the Blink feature used to detect automation (navigator.webdriver).
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Browser.Headless),
		chromedp.UserAgent(m.persona.UserAgent),
	)

	if m.cfg.Browser.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(m.cfg.Browser.UserDataDir))
	}

	// Custom arguments from the config file.
	for _, arg := range m.cfg.Browser.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")

		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers (e.g. Docker on Linux).
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// NewSession creates a new browser tab with the stealth persona applied and
// the response observer wired in. Attaching to the running browser is
// retried a configurable number of times before giving up; a persistent
// attach failure usually means the process has died, so the final attempt
// relaunches it.
func (m *Manager) NewSession(ctx context.Context, observer ResponseObserver) (*Session, error) {
	attempts := m.cfg.Browser.AttachRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		session, err := newSession(m.allocatorCtx, m.cfg, m.persona, m.logger, observer)
		if err == nil {
			m.wg.Add(1)
			session.onClose = m.wg.Done
			return session, nil
		}
		lastErr = err
		m.logger.Warn("Failed to attach a new session.", zap.Int("attempt", i+1), zap.Error(err))
	}

	// The browser process is likely gone. Relaunch and try once more.
	m.logger.Warn("All attach attempts failed, relaunching browser.", zap.Error(lastErr))
	m.allocatorCancel()
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("relaunch after attach failure: %w", err)
	}

	session, err := newSession(m.allocatorCtx, m.cfg, m.persona, m.logger, observer)
	if err != nil {
		return nil, fmt.Errorf("attach after relaunch: %w", err)
	}
	m.wg.Add(1)
	session.onClose = m.wg.Done
	return session, nil
}

// Shutdown waits for active sessions to complete and then terminates the
// browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions to complete...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions have completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down main browser process...")
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
