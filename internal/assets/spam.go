package assets

import (
	"strings"

	"github.com/lack0fcode/destructorbr/internal/constants"
)

// SpamDetector flags names containing any of its keywords, case-insensitively.
type SpamDetector struct {
	keywords []string
}

func NewSpamDetector(keywords []string) SpamDetector {
	if len(keywords) == 0 {
		keywords = constants.SpamKeywords
	}
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return SpamDetector{keywords: kw}
}

// IsSpam reports whether name looks like spam. An absent name is not spam.
func (d SpamDetector) IsSpam(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	for _, k := range d.keywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

// Resolve prefers the provider's verdict when it has one.
func (d SpamDetector) Resolve(providerFlag *bool, name string) bool {
	if providerFlag != nil {
		return *providerFlag
	}
	return d.IsSpam(name)
}
