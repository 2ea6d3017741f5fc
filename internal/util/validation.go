package util

import (
	"net/url"
	"regexp"
	"strings"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// IsValidIdentifier accepts session, mentor and user ids as used in URLs.
func IsValidIdentifier(s string) bool {
	return identifierRegex.MatchString(s)
}

// IsValidVideoURL accepts absolute http(s) URLs.
func IsValidVideoURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
