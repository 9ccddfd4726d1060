package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/creachadair/mds/mapset"
)

const (
	DefaultDPI   = 150
	DefaultColor = "black"
)

// basePackages are loaded by every rendered document.
var basePackages = []string{"amsmath", "amssymb", "xcolor"}

// Normalized returns a copy of c with defaults applied and the package set
// deduplicated and sorted. Base packages are not listed.
func (c RenderConfig) Normalized() RenderConfig {
	pkgs := mapset.New[string]()
	for _, p := range c.Packages {
		if p = strings.TrimSpace(p); p != "" {
			pkgs.Add(p)
		}
	}
	for _, p := range basePackages {
		delete(pkgs, p)
	}
	out := pkgs.Slice()
	sort.Strings(out)

	c.Packages = out
	c.Preamble = strings.TrimSpace(c.Preamble)
	c.DefaultColor = strings.TrimSpace(c.DefaultColor)
	if c.DefaultColor == "" {
		c.DefaultColor = DefaultColor
	}
	if c.DPI <= 0 {
		c.DPI = DefaultDPI
	}
	return c
}

// AllPackages returns the base packages followed by the extra ones.
func (c RenderConfig) AllPackages() []string {
	n := c.Normalized()
	return append(append([]string(nil), basePackages...), n.Packages...)
}

// Fingerprint identifies the normalized configuration.
func (c RenderConfig) Fingerprint() string {
	n := c.Normalized()
	h := sha256.New()
	fmt.Fprintf(h, "preamble\x00%s\x00", n.Preamble)
	fmt.Fprintf(h, "packages\x00%s\x00", strings.Join(n.Packages, ","))
	fmt.Fprintf(h, "color\x00%s\x00", n.DefaultColor)
	fmt.Fprintf(h, "dpi\x00%d\x00", n.DPI)
	return hex.EncodeToString(h.Sum(nil))
}
