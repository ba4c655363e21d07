// Package stats aggregates per-tick traffic snapshots into running and
// historical metrics: vehicle lifecycles, average speed, segment density,
// congestion and per-route travel times.
package stats

// EntitySnapshot is one active vehicle as reported by the simulation for a
// single tick. Snapshots are borrowed; anything needed later is copied.
type EntitySnapshot struct {
	ID        string
	Speed     float64
	SegmentID string
	Color     string
	RouteID   string
	Type      string
}

// Segment is a directed road section with a fixed length.
type Segment struct {
	ID     string
	Length float64
}

// Source is the simulation-side collaborator queried once per tick.
// Every call may fail independently; the engine treats failures as
// transient and skips the affected data for that tick.
type Source interface {
	ActiveEntities() ([]EntitySnapshot, error)
	CurrentTime() (float64, error)
	Segments() ([]Segment, error)
	SegmentVehicleCount(segmentID string) (int, error)
	SegmentLength(segmentID string) (float64, error)
	ControlPointCount() (int, error)
}
