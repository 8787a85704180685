// Package report prints the end-of-run recap.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/statistics"
)

// UseColors reports whether colored output is appropriate for the environment.
func UseColors() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return !color.NoColor
}

// Printer writes recaps at a fixed verbosity.
type Printer struct {
	out       io.Writer
	useColors bool
	verbosity int
}

// NewPrinter returns a printer writing to out.
func NewPrinter(out io.Writer, verbosity int, useColors bool) *Printer {
	return &Printer{out: out, useColors: useColors, verbosity: verbosity}
}

// Recap prints the batch outcome. Quiet prints nothing, the default prints the
// summary, warnings adds every non-successful file and all lists every file.
func (p *Printer) Recap(results []compressor.CompressionResult, stats *statistics.Statistics) {
	if p.verbosity <= config.VerbosityQuiet {
		return
	}

	if p.verbosity >= config.VerbosityWarnings {
		var rows []compressor.CompressionResult
		for _, r := range results {
			if p.verbosity >= config.VerbosityAll || r.Status != compressor.StatusSuccess {
				rows = append(rows, r)
			}
		}
		if len(rows) > 0 {
			p.resultTable(rows)
			fmt.Fprintln(p.out)
		}
	}

	p.summary(stats.Snapshot())
}

func (p *Printer) summary(s statistics.Summary) {
	line := fmt.Sprintf("Compressed %d/%d files (%d skipped, %d failed)",
		s.FilesCompressed, s.TotalFiles, s.FilesSkipped, s.FilesWithErrors)
	switch {
	case s.FilesWithErrors > 0:
		p.colorln(color.FgRed, line)
	case s.FilesSkipped > 0:
		p.colorln(color.FgYellow, line)
	default:
		p.colorln(color.FgGreen, line)
	}
	fmt.Fprintf(p.out, "%s -> %s, saved %s (%.1f%%) in %v\n",
		statistics.FormatBytes(s.OriginalBytes),
		statistics.FormatBytes(s.CompressedBytes),
		statistics.FormatBytes(s.SavedBytes),
		s.SavedPercent,
		s.Duration.Round(time.Millisecond))
}

func (p *Printer) resultTable(results []compressor.CompressionResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			p.status(r.Status),
			r.OriginalPath,
			r.OutputPath,
			statistics.FormatBytes(r.OriginalSize),
			statistics.FormatBytes(r.CompressedSize),
			r.Message,
		})
	}
	p.render([]string{"Status", "File", "Output", "Original", "Compressed", "Message"}, rows)
}

// Discovery prints what a scan found.
func (p *Printer) Discovery(d scanner.Discovery) {
	base := d.BasePath
	if base == "" {
		base = "(none)"
	}
	fmt.Fprintf(p.out, "Base path: %s\n", base)
	fmt.Fprintf(p.out, "Files: %d\n", len(d.Files))

	counts := make(map[string]int)
	for _, f := range d.Files {
		counts[f.MIME]++
	}
	mimes := make([]string, 0, len(counts))
	for m := range counts {
		mimes = append(mimes, m)
	}
	sort.Strings(mimes)
	for _, m := range mimes {
		fmt.Fprintf(p.out, "  %s: %d\n", m, counts[m])
	}

	if p.verbosity >= config.VerbosityWarnings && len(d.Files) > 0 {
		fmt.Fprintln(p.out)
		rows := make([][]string, 0, len(d.Files))
		for _, f := range d.Files {
			rows = append(rows, []string{f.Path, f.MIME, statistics.FormatBytes(f.Size)})
		}
		p.render([]string{"Path", "Type", "Size"}, rows)
	}
}

func (p *Printer) status(s compressor.Status) string {
	if !p.useColors {
		return s.String()
	}
	switch s {
	case compressor.StatusSuccess:
		return color.GreenString(s.String())
	case compressor.StatusSkipped:
		return color.YellowString(s.String())
	default:
		return color.RedString(s.String())
	}
}

func (p *Printer) colorln(attr color.Attribute, line string) {
	if p.useColors {
		color.New(attr, color.Bold).Fprintln(p.out, line)
		return
	}
	fmt.Fprintln(p.out, line)
}

func (p *Printer) render(header []string, rows [][]string) {
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoWrap: tw.WrapNone,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{
					ShowHeader: tw.Off,
				},
			},
		}),
	)
	table.Header(header)
	_ = table.Bulk(rows)
	_ = table.Render()
}
