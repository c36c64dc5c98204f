package cache

import (
	"fmt"
	"strings"
)

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// BuildPattern creates a Redis pattern matching every key under prefix.
// Glob metacharacters in prefix are escaped.
func BuildPattern(prefix string) string {
	return globEscaper.Replace(prefix) + "*"
}

// MatchPattern reports whether key matches a pattern built by BuildPattern.
func MatchPattern(pattern, key string) bool {
	if !strings.HasSuffix(pattern, "*") {
		return pattern == key
	}
	return strings.HasPrefix(key, unescapeGlob(strings.TrimSuffix(pattern, "*")))
}

func unescapeGlob(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}
