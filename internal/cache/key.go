package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gnolang/laic/internal/types"
)

// fingerprintLen is the length of the config fingerprint prefix of a key.
const fingerprintLen = 16

// Normalize canonicalizes a fragment body for hashing and rendering. It
// trims the body, drops trailing blanks from every line and collapses runs
// of spaces and tabs. Newlines are kept since a LaTeX % comment ends at one.
func Normalize(body string) string {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		var sb strings.Builder
		blank := false
		for _, r := range line {
			if r == ' ' || r == '\t' {
				if !blank {
					sb.WriteByte(' ')
				}
				blank = true
				continue
			}
			blank = false
			sb.WriteRune(r)
		}
		lines[i] = sb.String()
	}
	return strings.Join(lines, "\n")
}

// Key derives the cache key of f rendered under cfg. Keys are prefixed with
// the config fingerprint so entries can be evicted per config.
func Key(f *types.MathFragment, cfg types.RenderConfig) types.CacheKey {
	n := cfg.Normalized()
	fp := n.Fingerprint()

	h := sha256.New()
	fmt.Fprintf(h, "body\x00%s\x00", Normalize(f.Body))
	fmt.Fprintf(h, "kind\x00%s\x00%s\x00", f.Kind, f.Env)
	fmt.Fprintf(h, "color\x00%s\x00", f.Color.Effective(n.DefaultColor))
	for _, t := range f.Color.Tokens {
		fmt.Fprintf(h, "token\x00%s\x00", t.Color)
	}
	fmt.Fprintf(h, "config\x00%s\x00", fp)

	return types.CacheKey(fp[:fingerprintLen] + "-" + hex.EncodeToString(h.Sum(nil)))
}

// configOf returns the config fingerprint prefix of key.
func configOf(key types.CacheKey) string {
	s := string(key)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return s[:i]
	}
	return ""
}
