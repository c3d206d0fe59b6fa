// Package models - Shortened link representation.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// CodeAlphabet is the 62-symbol alphabet short codes are drawn from.
const CodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	// ErrInvalidURL is returned for URLs that cannot be shortened.
	ErrInvalidURL = errors.New("invalid URL")

	hostPattern = regexp.MustCompile(`(?i)^(?:(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+(?:[a-z]{2,6}\.?|[a-z0-9-]{2,}\.?)|localhost|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})$`)

	allowedSchemes = map[string]bool{"http": true, "https": true, "ftp": true, "ftps": true}
)

// Link maps a short code to the URL it redirects to. The code is assigned
// once at creation and never changes.
type Link struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	OriginalURL  string    `json:"original_url"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	AccessCount  int64     `json:"access_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessAt time.Time `json:"last_access_at"`
}

// NewLink creates a link for originalURL under code, named after the URL's
// second level domain.
func NewLink(code, originalURL string) *Link {
	now := time.Now().UTC()
	return &Link{
		Code:         code,
		OriginalURL:  originalURL,
		Name:         SecondLevelDomain(originalURL),
		CreatedAt:    now,
		LastAccessAt: now,
	}
}

// Validate checks that the link can be persisted.
func (l *Link) Validate() error {
	if err := ValidateCode(l.Code); err != nil {
		return err
	}
	return ValidateURL(l.OriginalURL)
}

// ValidateURL accepts absolute http, https, ftp and ftps URLs whose host is a
// domain name, localhost or an IPv4 address.
func ValidateURL(raw string) error {
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	if !hostPattern.MatchString(u.Hostname()) {
		return fmt.Errorf("%w: invalid host %q", ErrInvalidURL, u.Host)
	}

	return nil
}

// ValidateCode checks that code only uses the code alphabet.
func ValidateCode(code string) error {
	if len(code) < MinCodeLength {
		return fmt.Errorf("code must be at least %d characters", MinCodeLength)
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return fmt.Errorf("code contains invalid character %q", c)
		}
	}
	return nil
}

// SecondLevelDomain returns the label left of the top level domain, e.g.
// "example" for https://www.example.com/path. It returns "" when the URL has
// no such label.
func SecondLevelDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	labels := strings.Split(strings.TrimSuffix(u.Hostname(), "."), ".")
	if len(labels) < 2 {
		return ""
	}
	return labels[len(labels)-2]
}
