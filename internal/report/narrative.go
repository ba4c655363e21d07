package report

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/traffic.report/internal/stats"
	"github.com/banshee-data/traffic.report/internal/version"
)

// NoResultsLine is printed in place of a narrative section body when the
// active filter excluded every candidate.
const NoResultsLine = "No results match the active filter."

const documentTitle = "Traffic statistics report"

func writeNarrative(w io.Writer, snap *stats.Snapshot, f Filter, sections []Section, generated time.Time) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, documentTitle)
	fmt.Fprintf(bw, "Generated %s by %s\n", generated.UTC().Format(time.RFC3339), version.String())
	fmt.Fprintf(bw, "Run %s at tick %d (simulation time %.2f s)\n", snap.RunID, snap.Tick, snap.Time)

	for _, sec := range sections {
		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "== %s ==\n", sec.Kind.Title())
		fmt.Fprintln(bw, sec.Kind.Description())
		if sec.Kind == Summary {
			fmt.Fprintf(bw, "Filter: not applied (%s)\n", f)
		} else {
			fmt.Fprintf(bw, "Filter: %s\n", f)
		}
		if sec.Empty() {
			fmt.Fprintln(bw, NoResultsLine)
			continue
		}
		for _, line := range sec.Lines {
			fmt.Fprintf(bw, "  %s\n", line)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write narrative report: %w", err)
	}
	return nil
}
