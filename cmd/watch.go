package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/laic/formatter"
	"github.com/gnolang/laic/internal"
	"github.com/gnolang/laic/preview"
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Render comment math and re-render files when they change",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, config, err := preview.New(cfgFile, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize render engine: %w", err)
		}

		out := cmd.OutOrStdout()
		initial, cancel := context.WithTimeout(ctx, timeout)
		reports, err := runRender(initial, logger, engine, args, renderOptions{
			OutDir:  outDir,
			Verbose: verbose,
			Exclude: excludePatterns(config),
		}, out)
		cancel()
		if err != nil && !errors.Is(err, errRenderFails) {
			return err
		}

		latest := newReportSet(reports)
		var mu sync.Mutex
		w, err := engine.NewWatcher(watchDirs(args), func(r internal.Report) {
			mu.Lock()
			defer mu.Unlock()
			all := latest.update(r)
			if _, err := writeOutput(outDir, all); err != nil {
				logger.Error("Failed to write output", zap.String("file", r.Filename), zap.Error(err))
			}
			printReports(logger, []internal.Report{r}, verbose, out)
			fmt.Fprintln(out, formatter.Summary([]internal.Report{r}))
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Watching for changes, press Ctrl+C to stop")

		<-ctx.Done()
		return w.Stop()
	},
}

func init() {
	watchCmd.Flags().StringVarP(&outDir, "output", "o", "laic-out", "Directory the images and manifest are written to")
}

// watchDirs returns the directories to watch for paths, which may name
// files.
func watchDirs(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			p = filepath.Dir(p)
		}
		if !seen[p] {
			seen[p] = true
			dirs = append(dirs, p)
		}
	}
	return dirs
}

// reportSet keeps the latest report of every file.
type reportSet struct {
	mu      sync.Mutex
	reports map[string]internal.Report
}

func newReportSet(initial []internal.Report) *reportSet {
	s := &reportSet{reports: make(map[string]internal.Report, len(initial))}
	for _, r := range initial {
		s.reports[r.Filename] = r
	}
	return s
}

// update stores r and returns every report sorted by file name.
func (s *reportSet) update(r internal.Report) []internal.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.Filename] = r
	all := make([]internal.Report, 0, len(s.reports))
	for _, r := range s.reports {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Filename < all[j].Filename })
	return all
}
