package utils

import (
	"strconv"
	"strings"
)

var mdEscaper = strings.NewReplacer("*", "\\*", "_", "\\_", "`", "\\`", "~", "\\~", "|", "\\|")

// EscapeMd neutralises discord markdown in user supplied text.
func EscapeMd(s string) string {
	return mdEscaper.Replace(s)
}

// Atoi parses s, returning 0 for anything that is not a plain integer.
func Atoi(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}
