package util

import (
	"net/mail"
	"strings"
)

// NormalizeEmail trims and lowercases an address. Display-name forms such as
// "Ana <ana@x.io>" are reduced to the bare address.
func NormalizeEmail(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(s); err == nil {
		s = addr.Address
	}
	return strings.ToLower(s)
}

// ValidEmail reports whether s parses as a single bare address.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
