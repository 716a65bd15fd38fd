package project

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxNameLength = 64

// ValidateName checks a project name is usable as a state key and CLI argument.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || name != strings.TrimSpace(name) {
		return ErrInvalidInput
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return ErrInvalidInput
	}
	for _, r := range name {
		if unicode.IsControl(r) || r == '/' || r == '\\' {
			return ErrInvalidInput
		}
	}
	return nil
}

// ValidateConfig checks config values that can be wrong regardless of backend.
func ValidateConfig(cfg Config) error {
	if cfg.PollIntervalSeconds < 0 {
		return ErrInvalidInput
	}
	return nil
}
