package batch

import (
	"fmt"
	"strings"

	"github.com/gnolang/laic/internal/cache"
	"github.com/gnolang/laic/internal/render"
	"github.com/gnolang/laic/internal/types"
)

// Batch is a group of fragments merged into a single renderer invocation.
// Each fragment is one row, typeset on its own preview page.
type Batch struct {
	Index     int
	Config    types.RenderConfig
	Fragments []*types.MathFragment
	Document  string
	RowLines  [][2]int
}

// Job returns the renderer job for b.
func (b *Batch) Job() render.Job {
	return render.Job{
		Document: b.Document,
		Rows:     len(b.Fragments),
		DPI:      b.Config.DPI,
		RowLines: b.RowLines,
	}
}

// docWriter tracks the current line while writing a document.
type docWriter struct {
	sb   strings.Builder
	line int
}

func (w *docWriter) printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	w.sb.WriteString(s)
	w.line += strings.Count(s, "\n")
}

// Build assembles the combined document for frags under cfg.
func Build(index int, cfg types.RenderConfig, frags []*types.MathFragment) *Batch {
	cfg = cfg.Normalized()
	w := &docWriter{line: 1}

	w.printf("\\documentclass[12pt]{article}\n")
	for _, pkg := range cfg.AllPackages() {
		w.printf("\\usepackage{%s}\n", pkg)
	}
	w.printf("\\usepackage[active,tightpage]{preview}\n")
	if cfg.Preamble != "" {
		w.printf("%s\n", cfg.Preamble)
	}
	w.printf("\\pagestyle{empty}\n")
	w.printf("\\begin{document}\n")

	rows := make([][2]int, 0, len(frags))
	for _, f := range frags {
		first := w.line
		// Numbered environments start from (1) on every page.
		w.printf("\\begin{preview}%s\\setcounter{equation}{0}%%\n", colorCommand(f.Color.Effective(cfg.DefaultColor)))
		writeRow(w, f)
		w.printf("\\end{preview}\n")
		rows = append(rows, [2]int{first, w.line - 1})
	}
	w.printf("\\end{document}\n")

	return &Batch{
		Index:     index,
		Config:    cfg,
		Fragments: frags,
		Document:  w.sb.String(),
		RowLines:  rows,
	}
}

// writeRow writes the math of one fragment. Inline and display fragments
// are boxed individually; environments are written as authored. Closers go
// on their own line so a % in the body cannot comment them out.
func writeRow(w *docWriter, f *types.MathFragment) {
	body := cache.Normalize(f.Body)
	switch f.Kind {
	case types.Inline:
		w.printf("\\(%s\n\\)%%\n", body)
	case types.Display:
		w.printf("\\(\\displaystyle %s\n\\)%%\n", body)
	default:
		env := f.Env
		if env == "" {
			env = defaultEnv(f.Kind)
		}
		w.printf("\\begin{%s}\n%s\n\\end{%s}%%\n", env, body, env)
	}
}

func defaultEnv(k types.DelimKind) string {
	if k == types.Align {
		return "align*"
	}
	return "equation*"
}

// colorCommand selects c with xcolor. Colors written as #RRGGBB use the
// HTML model.
func colorCommand(c string) string {
	if hex, ok := strings.CutPrefix(c, "#"); ok {
		return fmt.Sprintf("\\color[HTML]{%s}", strings.ToUpper(hex))
	}
	return fmt.Sprintf("\\color{%s}", c)
}
