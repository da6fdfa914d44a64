package navigator

import (
	"net/url"
	"strings"
)

// State describes what kind of screen the tab is currently showing. It is
// derived fresh from the current address on every observation, never cached.
type State int

const (
	StateUnknown State = iota
	StateListing
	StateProductDetail
	StateReviewDetail
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateListing:
		return "listing"
	case StateProductDetail:
		return "product_detail"
	case StateReviewDetail:
		return "review_detail"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Markers holds the address substrings used to classify a screen. The zero
// value is unusable; use DefaultMarkers for the storefront's layout.
type Markers struct {
	// Blocked wins over everything else.
	Blocked []string
	// Review is checked before ProductDetail since review pages keep the
	// product identifier in their address.
	Review  []string
	Detail  []string
	Listing []string
}

// DefaultMarkers matches the storefront's address scheme.
func DefaultMarkers() Markers {
	return Markers{
		Blocked: []string{"captcha", "verify", "punish", "risk", "login_verify"},
		Review:  []string{"review", "comment", "rate.", "feedback"},
		Detail:  []string{"goods_id=", "/goods/", "item.htm", "/product/"},
		Listing: []string{"/category", "/search", "/list", "q="},
	}
}

// Classify maps an address to a navigation state. Malformed addresses
// classify as Unknown rather than erroring; the loop treats Unknown the
// same as a missed click.
func Classify(rawURL string, m Markers) State {
	if rawURL == "" {
		return StateUnknown
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return StateUnknown
	}
	probe := strings.ToLower(u.Host + u.Path + "?" + u.RawQuery)

	for _, marker := range m.Blocked {
		if strings.Contains(probe, marker) {
			return StateBlocked
		}
	}
	for _, marker := range m.Review {
		if strings.Contains(probe, marker) {
			return StateReviewDetail
		}
	}
	for _, marker := range m.Detail {
		if strings.Contains(probe, marker) {
			return StateProductDetail
		}
	}
	for _, marker := range m.Listing {
		if strings.Contains(probe, marker) {
			return StateListing
		}
	}
	return StateUnknown
}
