package report

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/banshee-data/traffic.report/internal/db"
	"github.com/banshee-data/traffic.report/internal/fsutil"
	"github.com/banshee-data/traffic.report/internal/stats"
	"github.com/banshee-data/traffic.report/internal/timeutil"
	"github.com/banshee-data/traffic.report/internal/units"
	"github.com/banshee-data/traffic.report/internal/version"
)

// SnapshotSource supplies a detached copy of engine state. *stats.Engine
// satisfies it.
type SnapshotSource interface {
	Snapshot() *stats.Snapshot
}

// Options configures an Exporter. Zero values select the OS filesystem,
// the real clock and m/s.
type Options struct {
	FS    fsutil.FileSystem
	Clock timeutil.Clock
	Units string
}

// Exporter renders reports from snapshots of a running engine.
type Exporter struct {
	src   SnapshotSource
	fs    fsutil.FileSystem
	clock timeutil.Clock
	units string
}

// NewExporter returns an Exporter reading from src.
func NewExporter(src SnapshotSource, opts Options) *Exporter {
	e := &Exporter{src: src, fs: opts.FS, clock: opts.Clock, units: opts.Units}
	if e.fs == nil {
		e.fs = fsutil.OSFileSystem{}
	}
	if e.clock == nil {
		e.clock = timeutil.RealClock{}
	}
	if !units.IsValid(e.units) {
		e.units = units.MPS
	}
	return e
}

// Units returns the speed unit reports are rendered in.
func (e *Exporter) Units() string {
	return e.units
}

// Sections builds the filtered sections for kinds from a fresh snapshot.
func (e *Exporter) Sections(f Filter, kinds []Kind) ([]Section, *stats.Snapshot, error) {
	if len(kinds) == 0 {
		return nil, nil, ErrNoKinds
	}
	snap := e.src.Snapshot()
	sections, err := buildSections(snap, f, kinds, e.units)
	if err != nil {
		return nil, nil, err
	}
	return sections, snap, nil
}

// Render writes a report in a streamable format to w. The engine lock is
// held only while the snapshot is copied.
func (e *Exporter) Render(w io.Writer, f Filter, format Format, kinds []Kind) error {
	if format == SQLite {
		return fmt.Errorf("%w: %s", ErrNotStreamable, format)
	}
	if err := checkFormat(format); err != nil {
		return err
	}
	sections, snap, err := e.Sections(f, kinds)
	if err != nil {
		return err
	}
	return e.write(w, snap, f, format, sections)
}

func (e *Exporter) write(w io.Writer, snap *stats.Snapshot, f Filter, format Format, sections []Section) error {
	switch format {
	case Tabular:
		return writeTabular(w, sections)
	case Narrative:
		return writeNarrative(w, snap, f, sections, e.clock.Now())
	case Chart:
		return writeChart(w, f, sections)
	case HTML:
		return writeHTML(w, snap.RunID, f, sections)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Export renders a report to path. File formats are rendered in memory
// and written atomically; the sqlite format appends the run to an archive
// at path. Write failures are returned and leave engine state untouched.
func (e *Exporter) Export(path string, f Filter, format Format, kinds []Kind) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	sections, snap, err := e.Sections(f, kinds)
	if err != nil {
		return err
	}

	if format == SQLite {
		return e.archive(path, snap, f, sections)
	}

	var buf bytes.Buffer
	if err := e.write(&buf, snap, f, format, sections); err != nil {
		return err
	}
	err = fsutil.WriteAtomic(e.fs, path, func(w io.Writer) error {
		if _, err := w.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("export %s report: %w", format, err)
	}
	return nil
}

func (e *Exporter) archive(path string, snap *stats.Snapshot, f Filter, sections []Section) error {
	archive, err := db.Open(path)
	if err != nil {
		return fmt.Errorf("export sqlite report: %w", err)
	}
	defer archive.Close()

	run := db.Run{
		ID:           snap.RunID,
		Tick:         snap.Tick,
		SimTime:      snap.Time,
		ExportedAt:   e.clock.Now(),
		Version:      version.Version,
		Filter:       f.String(),
		Units:        e.units,
		WarningCount: snap.WarningCount,
	}
	records := make([]db.Section, len(sections))
	for i, sec := range sections {
		records[i] = db.Section{
			Kind:   string(sec.Kind),
			Title:  sec.Kind.Title(),
			Header: sec.Header,
			Rows:   sec.Rows,
		}
	}
	if err := archive.RecordExport(context.Background(), run, snap.SpeedHistory, records); err != nil {
		return fmt.Errorf("export sqlite report: %w", err)
	}
	return nil
}

func checkFormat(format Format) error {
	for _, f := range Formats {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
