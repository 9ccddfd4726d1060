package render

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

var (
	lineRef      = regexp.MustCompile(`^l\.(\d+)`)
	inputLineRef = regexp.MustCompile(`on input line (\d+)`)
	depthRef     = regexp.MustCompile(`depth=(-?\d+)`)
)

// ParseLog extracts the first error of a LaTeX log and the document line it
// points at. line is 0 when the log does not name one.
func ParseLog(log string) (msg string, line int) {
	sc := bufio.NewScanner(strings.NewReader(log))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		text := sc.Text()
		if msg == "" {
			if !strings.HasPrefix(text, "! ") {
				continue
			}
			msg = strings.TrimSpace(strings.TrimPrefix(text, "! "))
			if m := inputLineRef.FindStringSubmatch(text); m != nil {
				line, _ = strconv.Atoi(m[1])
				return msg, line
			}
			continue
		}
		if m := lineRef.FindStringSubmatch(text); m != nil {
			line, _ = strconv.Atoi(m[1])
			return msg, line
		}
	}
	if msg == "" {
		msg = "latex failed"
	}
	return msg, line
}

// parseDepths reads the per-page depths dvipng prints with --depth.
func parseDepths(out string) []int {
	var depths []int
	for _, m := range depthRef.FindAllStringSubmatch(out, -1) {
		d, err := strconv.Atoi(m[1])
		if err != nil {
			d = 0
		}
		depths = append(depths, d)
	}
	return depths
}
