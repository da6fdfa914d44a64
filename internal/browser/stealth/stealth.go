// internal/browser/stealth/stealth.go
package stealth

import (
	"context"
	_ "embed" // Required for the go:embed directive
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// ScreenProperties defines the resolution of the emulated display.
type ScreenProperties struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Persona defines a consistent profile to be spoofed. Every override applied
// to the browser must agree with every other one; mixed signals are what
// fingerprinting scripts look for.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"` // navigator.platform, e.g. Win32
	Languages []string `json:"languages"`

	TimezoneID string `json:"timezoneId,omitempty"`
	Locale     string `json:"locale,omitempty"`

	HardwareConcurrency int              `json:"hardwareConcurrency,omitempty"`
	DeviceMemory        int              `json:"deviceMemory,omitempty"`
	WebGLVendor         string           `json:"webGLVendor,omitempty"`
	WebGLRenderer       string           `json:"webGLRenderer,omitempty"`
	Screen              ScreenProperties `json:"screen"`
}

// basePersonas is the pool RandomPersona draws from. All are common desktop
// Chrome builds; the viewport is additionally jittered per session.
var basePersonas = []Persona{
	{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Platform:            "Win32",
		Languages:           []string{"ko-KR", "ko", "en-US"},
		TimezoneID:          "Asia/Seoul",
		Locale:              "ko-KR",
		HardwareConcurrency: 8,
		DeviceMemory:        8,
		WebGLVendor:         "Google Inc. (Intel)",
		WebGLRenderer:       "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)",
		Screen:              ScreenProperties{Width: 1920, Height: 1080},
	},
	{
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		Platform:            "MacIntel",
		Languages:           []string{"ko-KR", "ko", "en-US"},
		TimezoneID:          "Asia/Seoul",
		Locale:              "ko-KR",
		HardwareConcurrency: 10,
		DeviceMemory:        16,
		WebGLVendor:         "Google Inc. (Apple)",
		WebGLRenderer:       "ANGLE (Apple, Apple M2, OpenGL 4.1)",
		Screen:              ScreenProperties{Width: 1728, Height: 1117},
	},
	{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Platform:            "Win32",
		Languages:           []string{"ko-KR", "ko"},
		TimezoneID:          "Asia/Seoul",
		Locale:              "ko-KR",
		HardwareConcurrency: 12,
		DeviceMemory:        16,
		WebGLVendor:         "Google Inc. (NVIDIA)",
		WebGLRenderer:       "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)",
		Screen:              ScreenProperties{Width: 2560, Height: 1440},
	},
}

// RandomPersona returns one of the base personas with a jittered viewport so
// no two sessions present identical metrics.
func RandomPersona(rng *rand.Rand) Persona {
	p := basePersonas[rng.Intn(len(basePersonas))]
	// Shrink the viewport a little, as if the window were not maximized.
	p.Screen.Width -= int64(rng.Intn(140))
	p.Screen.Height -= int64(rng.Intn(100))
	return p
}

// Apply orchestrates the stealth actions. It is idempotent and must be
// re-applied for every new document: navigation replaces the scriptable
// environment. Callers treat a failure as non-fatal.
func Apply(persona Persona, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		network.Enable(),
		setExtraHTTPHeaders(persona),
		setUserAgent(persona),
		setDeviceMetrics(persona),
		setEnvironmentOverrides(persona),
		injectEvasionScript(persona),
		page.SetWebLifecycleState(page.SetWebLifecycleStateStateActive),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Stealth profile applied", zap.String("userAgent", persona.UserAgent))
			return nil
		}),
	}
}

// injectEvasionScript registers the JS evasion script for every new document.
func injectEvasionScript(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		personaJSON, err := json.Marshal(persona)
		if err != nil {
			return fmt.Errorf("stealth: failed to marshal persona: %w", err)
		}
		script := fmt.Sprintf("const __SESSION_PERSONA = %s;\n%s", string(personaJSON), evasionsScript)
		if _, err = page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}
		return nil
	})
}

func setUserAgent(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := emulation.SetUserAgentOverride(persona.UserAgent).
			WithPlatform(persona.Platform).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("stealth: failed to set user agent override: %w", err)
		}
		return nil
	})
}

func setExtraHTTPHeaders(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(persona.Languages) == 0 {
			return nil
		}
		formatted := persona.Languages[0]
		for i := 1; i < len(persona.Languages); i++ {
			q := 1.0 - float64(i)*0.1
			if q < 0.7 {
				q = 0.7
			}
			formatted += fmt.Sprintf(",%s;q=%.1f", persona.Languages[i], q)
		}
		headers := map[string]interface{}{"Accept-Language": formatted}
		if err := network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx); err != nil {
			return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
		}
		return nil
	})
}

func setDeviceMetrics(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.Screen.Width <= 0 || persona.Screen.Height <= 0 {
			return nil
		}
		err := emulation.SetDeviceMetricsOverride(persona.Screen.Width, persona.Screen.Height, 1.0, false).
			WithScreenOrientation(&emulation.ScreenOrientation{
				Type:  emulation.OrientationTypeLandscapePrimary,
				Angle: 0,
			}).Do(ctx)
		if err != nil {
			return fmt.Errorf("stealth: failed to set device metrics: %w", err)
		}
		return nil
	})
}

func setEnvironmentOverrides(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.TimezoneID != "" {
			if err := emulation.SetTimezoneOverride(persona.TimezoneID).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set timezone: %w", err)
			}
		}
		locale := persona.Locale
		if locale == "" && len(persona.Languages) > 0 {
			locale = persona.Languages[0]
		}
		if locale != "" {
			normalized := strings.ReplaceAll(locale, "_", "-")
			if err := emulation.SetLocaleOverride().WithLocale(normalized).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set locale: %w", err)
			}
		}
		return nil
	})
}
