package formatter

import (
	"encoding/json"
	"io"

	"github.com/gnolang/laic/internal"
	"github.com/gnolang/laic/internal/types"
)

// Location is a line and column in a source file.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ManifestEntry describes one result for tools that display the images.
type ManifestEntry struct {
	ID       string         `json:"id,omitempty"`
	File     string         `json:"file"`
	Start    Location       `json:"start"`
	End      Location       `json:"end"`
	Kind     string         `json:"kind,omitempty"`
	Key      types.CacheKey `json:"key,omitempty"`
	Image    string         `json:"image,omitempty"`
	Width    int            `json:"width,omitempty"`
	Height   int            `json:"height,omitempty"`
	Depth    int            `json:"depth,omitempty"`
	Category string         `json:"category,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// BuildManifest lists every result of reports in order. image names the
// file an artifact is written to; it is only called for rendered results.
func BuildManifest(reports []internal.Report, image func(types.Result) string) []ManifestEntry {
	entries := []ManifestEntry{}
	for _, report := range reports {
		for _, res := range report.Results {
			file := res.Span.Filename
			if file == "" {
				file = report.Filename
			}
			e := ManifestEntry{
				ID:    res.FragmentID,
				File:  file,
				Start: Location{Line: res.Span.Start.Line, Column: res.Span.Start.Column},
				End:   Location{Line: res.Span.End.Line, Column: res.Span.End.Column},
				Key:   res.Key,
			}
			if res.FragmentID != "" {
				e.Kind = res.Kind.String()
			}
			if res.OK() {
				if image != nil {
					e.Image = image(res)
				}
				e.Width = res.Artifact.Width
				e.Height = res.Artifact.Height
				e.Depth = res.Artifact.Depth
			} else if res.Err != nil {
				e.Category = Category(res.Err)
				e.Error = Message(res.Err)
			}
			entries = append(entries, e)
		}
	}
	return entries
}

// WriteManifest writes entries as indented JSON.
func WriteManifest(w io.Writer, entries []ManifestEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
