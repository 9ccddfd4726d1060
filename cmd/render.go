package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/laic/formatter"
	"github.com/gnolang/laic/internal"
	"github.com/gnolang/laic/internal/types"
	"github.com/gnolang/laic/preview"
)

const manifestFile = "manifest.json"

var (
	outDir         string
	renderJSON     bool
	noProgress     bool
	errRenderFails = errors.New("some fragments failed to render")
)

var renderCmd = &cobra.Command{
	Use:   "render [paths...]",
	Short: "Render comment math to PNG files and a manifest",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
		defer cancel()

		engine, config, err := preview.New(cfgFile, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize render engine: %w", err)
		}

		opts := renderOptions{
			OutDir:  outDir,
			JSON:    renderJSON,
			Verbose: verbose,
			Exclude: excludePatterns(config),
		}
		if !noProgress && !renderJSON {
			opts.Progress = os.Stderr
		}
		_, err = runRender(ctx, logger, engine, args, opts, cmd.OutOrStdout())
		return err
	},
}

func init() {
	renderCmd.Flags().StringVarP(&outDir, "output", "o", "laic-out", "Directory the images and manifest are written to")
	renderCmd.Flags().BoolVar(&renderJSON, "json", false, "Print the manifest instead of diagnostics")
	renderCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Hide the progress bar")
}

type renderOptions struct {
	OutDir   string
	JSON     bool
	Verbose  bool
	Progress io.Writer
	Exclude  []string
}

type renderEngine interface {
	preview.PreviewEngine
	Flush() error
}

// runRender renders paths, writes the output directory and prints the
// results. It returns errRenderFails when any result is an error.
func runRender(ctx context.Context, logger *zap.Logger, engine renderEngine, paths []string, opts renderOptions, out io.Writer) ([]internal.Report, error) {
	reports, err := preview.ProcessFiles(ctx, logger, engine, paths, preview.Options{Progress: opts.Progress, Exclude: opts.Exclude})
	if err != nil {
		return nil, err
	}
	if err := engine.Flush(); err != nil {
		logger.Warn("Failed to save cache", zap.Error(err))
	}

	entries, err := writeOutput(opts.OutDir, reports)
	if err != nil {
		return nil, err
	}

	if opts.JSON {
		if err := formatter.WriteManifest(out, entries); err != nil {
			return nil, err
		}
	} else {
		printReports(logger, reports, opts.Verbose, out)
		fmt.Fprintln(out, formatter.Summary(reports))
	}

	for _, r := range reports {
		for _, res := range r.Results {
			if !res.OK() {
				return reports, errRenderFails
			}
		}
	}
	return reports, nil
}

// writeOutput writes one PNG per distinct cache key and the manifest.
func writeOutput(dir string, reports []internal.Report) ([]formatter.ManifestEntry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	written := make(map[types.CacheKey]bool)
	var writeErr error
	entries := formatter.BuildManifest(reports, func(res types.Result) string {
		name := imageName(res.Key)
		if written[res.Key] || writeErr != nil {
			return name
		}
		if err := os.WriteFile(filepath.Join(dir, name), res.Artifact.PNG, 0o644); err != nil {
			writeErr = fmt.Errorf("failed to write %s: %w", name, err)
		}
		written[res.Key] = true
		return name
	})
	if writeErr != nil {
		return nil, writeErr
	}

	f, err := os.Create(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}
	defer f.Close()
	if err := formatter.WriteManifest(f, entries); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return entries, nil
}

// excludePatterns merges the configured and command line exclusions.
func excludePatterns(config preview.Config) []string {
	return append(append([]string(nil), config.Exclude...), excludes...)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func imageName(key types.CacheKey) string {
	return string(key) + ".png"
}

func printReports(logger *zap.Logger, reports []internal.Report, verbose bool, out io.Writer) {
	sorted := make([]internal.Report, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Filename < sorted[j].Filename })

	for _, r := range sorted {
		if len(r.Results) == 0 {
			continue
		}
		sourceCode, err := internal.ReadSourceCode(r.Filename)
		if err != nil {
			logger.Error("Error reading source file", zap.String("file", r.Filename), zap.Error(err))
			sourceCode = &internal.SourceCode{}
		}
		fmt.Fprint(out, formatter.GenerateFormattedResults(r.Results, sourceCode, verbose))
	}
}
