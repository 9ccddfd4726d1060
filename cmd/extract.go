package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/laic/formatter"
	"github.com/gnolang/laic/internal"
	"github.com/gnolang/laic/internal/types"
	"github.com/gnolang/laic/preview"
)

var extractJSON bool

var extractCmd = &cobra.Command{
	Use:   "extract [paths...]",
	Short: "List the math fragments found in comments without rendering",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, config, err := preview.New(cfgFile, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize render engine: %w", err)
		}
		return runExtract(logger, engine, args, extractJSON, cmd.OutOrStdout(), excludePatterns(config)...)
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "Output fragments in JSON format")
}

type extractedFragment struct {
	ID     string                `json:"id"`
	File   string                `json:"file"`
	Start  formatter.Location    `json:"start"`
	End    formatter.Location    `json:"end"`
	Kind   types.DelimKind       `json:"kind"`
	Env    string                `json:"env,omitempty"`
	Body   string                `json:"body"`
	Colors types.ColorAnnotation `json:"colors"`
}

func runExtract(logger *zap.Logger, engine preview.PreviewEngine, paths []string, isJSON bool, out io.Writer, exclude ...string) error {
	scans, err := preview.ExtractFiles(logger, engine, paths, exclude...)
	if err != nil {
		return err
	}

	if isJSON {
		fragments := []extractedFragment{}
		for _, s := range scans {
			for _, f := range s.Fragments {
				fragments = append(fragments, extractedFragment{
					ID:     f.ID,
					File:   f.Span.Filename,
					Start:  formatter.Location{Line: f.Span.Start.Line, Column: f.Span.Start.Column},
					End:    formatter.Location{Line: f.Span.End.Line, Column: f.Span.End.Column},
					Kind:   f.Kind,
					Env:    f.Env,
					Body:   f.Body,
					Colors: f.Color,
				})
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(fragments)
	}

	for _, s := range scans {
		source := &internal.SourceCode{Lines: s.Doc.Lines()}
		fmt.Fprint(out, formatter.FormatScan(s, source))
	}
	return nil
}
