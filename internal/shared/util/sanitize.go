package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
)

// ErrInvalidFileName is returned for names that cannot be stored safely.
var ErrInvalidFileName = errors.New("invalid file name")

const maxStoredNameLen = 120

// SanitizeFileName turns an uploaded file name into a single safe path
// segment. Separators become underscores, control characters are dropped and
// long names are shortened while keeping the extension.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidFileName
	}

	if runes := []rune(s); len(runes) > maxStoredNameLen {
		ext := path.Ext(s)
		if len([]rune(ext)) >= maxStoredNameLen {
			ext = ""
		}
		keep := maxStoredNameLen - len([]rune(ext))
		s = string([]rune(strings.TrimSuffix(s, ext))[:keep]) + ext
	}
	return s, nil
}
