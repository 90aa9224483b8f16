package usecase

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var schemePrefixes = []string{"http://", "https://"}

// NormalizeURL returns the canonical form of rawURL used to deduplicate links:
// one leading http:// or https:// prefix and one trailing slash are removed.
func NormalizeURL(rawURL string) string {
	canonical := rawURL

	for _, prefix := range schemePrefixes {
		if strings.HasPrefix(canonical, prefix) {
			canonical = strings.TrimPrefix(canonical, prefix)
			break
		}
	}

	return strings.TrimSuffix(canonical, "/")
}

// IsValidURL reports whether rawURL is a well-formed absolute URL with a host.
func IsValidURL(validate *validator.Validate, rawURL string) bool {
	if err := validate.Var(rawURL, "required,url"); err != nil {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	return u.Host != ""
}
