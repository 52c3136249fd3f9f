package assets

import (
	"net/url"
	"strings"

	"github.com/lack0fcode/destructorbr/internal/constants"
)

// LogoOrPlaceholder returns raw when it is a usable absolute URL, else the placeholder.
func LogoOrPlaceholder(raw string) string {
	if ValidLogoURL(raw) {
		return strings.TrimSpace(raw)
	}
	return constants.PlaceholderLogo
}

func ValidLogoURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ipfs":
	default:
		return false
	}
	return u.Host != ""
}
