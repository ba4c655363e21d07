package report

import (
	"encoding/csv"
	"fmt"
	"io"
)

// writeTabular writes each section as a "# Kind" marker line, a header row
// and its data rows, with a blank line between sections. A section whose
// filter excluded everything emits only its header row.
func writeTabular(w io.Writer, sections []Section) error {
	for i, sec := range sections {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return fmt.Errorf("failed to write section separator: %w", err)
			}
		}
		if _, err := fmt.Fprintf(w, "# %s\n", sec.Kind); err != nil {
			return fmt.Errorf("failed to write %s marker: %w", sec.Kind, err)
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(sec.Header); err != nil {
			return fmt.Errorf("failed to write %s header: %w", sec.Kind, err)
		}
		if err := cw.WriteAll(sec.Rows); err != nil {
			return fmt.Errorf("failed to write %s rows: %w", sec.Kind, err)
		}
	}
	return nil
}
