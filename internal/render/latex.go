package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gnolang/laic/internal/types"
)

const (
	// DefaultTimeout bounds one latex + dvipng run.
	DefaultTimeout = 30 * time.Second

	jobName = "batch"
)

// Options configures the latex renderer.
type Options struct {
	Latex      string        `yaml:"latex"`
	Dvipng     string        `yaml:"dvipng"`
	LatexArgs  []string      `yaml:"latex_args,omitempty"`
	DvipngArgs []string      `yaml:"dvipng_args,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
	WorkDir    string        `yaml:"work_dir,omitempty"`
}

// LaTeX renders jobs with a latex binary and dvipng, one PNG per page.
type LaTeX struct {
	opts   Options
	logger *zap.Logger
}

// NewLaTeX returns a renderer using opts, with defaults for empty fields.
func NewLaTeX(opts Options, logger *zap.Logger) *LaTeX {
	if opts.Latex == "" {
		opts.Latex = "latex"
	}
	if opts.Dvipng == "" {
		opts.Dvipng = "dvipng"
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LaTeX{opts: opts, logger: logger}
}

// Available reports whether the latex and dvipng binaries can be found.
func (r *LaTeX) Available() error {
	for _, bin := range []string{r.opts.Latex, r.opts.Dvipng} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("renderer %q not found: %w", bin, err)
		}
	}
	return nil
}

func (r *LaTeX) Render(ctx context.Context, job Job) ([]types.Artifact, error) {
	dir, err := os.MkdirTemp(r.opts.WorkDir, "laic-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	texPath := filepath.Join(dir, jobName+".tex")
	if err := os.WriteFile(texPath, []byte(job.Document), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	args := append([]string{"-interaction=nonstopmode", "-halt-on-error", "-no-shell-escape"}, r.opts.LatexArgs...)
	args = append(args, jobName+".tex")
	if out, err := r.run(ctx, dir, r.opts.Latex, args...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run %s: %w", r.opts.Latex, err)
		}
		log, readErr := os.ReadFile(filepath.Join(dir, jobName+".log"))
		if readErr != nil {
			log = out
		}
		msg, line := ParseLog(string(log))
		return nil, &Failure{Message: msg, Line: line, Row: job.RowAt(line)}
	}

	dpi := job.DPI
	if dpi <= 0 {
		dpi = types.DefaultDPI
	}
	args = []string{"-T", "tight", "-D", strconv.Itoa(dpi), "-bg", "Transparent", "--depth"}
	args = append(args, r.opts.DvipngArgs...)
	args = append(args, "-o", "row%d.png", jobName+".dvi")
	out, err := r.run(ctx, dir, r.opts.Dvipng, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Failure{Message: fmt.Sprintf("%s: %s", r.opts.Dvipng, bytes.TrimSpace(out)), Row: -1}
	}
	depths := parseDepths(string(out))

	arts := make([]types.Artifact, 0, job.Rows)
	for i := 1; i <= job.Rows; i++ {
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("row%d.png", i)))
		if err != nil {
			return nil, &Failure{Message: fmt.Sprintf("page %d missing from output", i), Row: -1}
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", i, err)
		}
		art := types.Artifact{PNG: data, Width: cfg.Width, Height: cfg.Height}
		if i-1 < len(depths) {
			art.Depth = depths[i-1]
		}
		arts = append(arts, art)
	}

	r.logger.Debug("rendered batch",
		zap.Int("rows", job.Rows),
		zap.Duration("elapsed", time.Since(start)))
	return arts, nil
}

func (r *LaTeX) run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = nil
	return cmd.CombinedOutput()
}
