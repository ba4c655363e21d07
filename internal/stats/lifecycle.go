package stats

import "sort"

// VehicleRecord is the lifecycle of one tracked vehicle.
type VehicleRecord struct {
	Seq       int // 1-based observation order, issued by the tracker
	ID        string
	RouteID   string
	Color     string
	Type      string
	EntryTick int
	EntryTime float64
	ExitTick  int
	ExitTime  float64
	HasExit   bool
}

// Completed reports whether the vehicle has a positive-length lifecycle.
func (v VehicleRecord) Completed() bool {
	return v.HasExit && v.ExitTime > v.EntryTime
}

// TravelTime returns exit minus entry for completed vehicles, 0 otherwise.
func (v VehicleRecord) TravelTime() float64 {
	if !v.Completed() {
		return 0
	}
	return v.ExitTime - v.EntryTime
}

// LifecycleTracker records first-seen and last-seen simulation time per
// vehicle id. Entry and exit are each latched at most once; records are
// never removed.
type LifecycleTracker struct {
	records map[string]*VehicleRecord
	seq     int
}

// NewLifecycleTracker creates an empty tracker.
func NewLifecycleTracker() *LifecycleTracker {
	return &LifecycleTracker{records: make(map[string]*VehicleRecord)}
}

// Observe folds one tick's active set into the tracker. Entities with an
// empty id must be filtered out by the caller.
func (lt *LifecycleTracker) Observe(tick int, simTime float64, active []EntitySnapshot) {
	present := make(map[string]struct{}, len(active))
	for _, e := range active {
		present[e.ID] = struct{}{}
		if _, ok := lt.records[e.ID]; ok {
			continue
		}
		lt.seq++
		lt.records[e.ID] = &VehicleRecord{
			Seq:       lt.seq,
			ID:        e.ID,
			RouteID:   e.RouteID,
			Color:     e.Color,
			Type:      e.Type,
			EntryTick: tick,
			EntryTime: simTime,
		}
	}

	for id, rec := range lt.records {
		if rec.HasExit {
			continue
		}
		if _, ok := present[id]; ok {
			continue
		}
		rec.HasExit = true
		rec.ExitTick = tick
		rec.ExitTime = simTime
	}
}

// Len returns the number of vehicles ever observed.
func (lt *LifecycleTracker) Len() int {
	return len(lt.records)
}

// Get returns a copy of the record for id.
func (lt *LifecycleTracker) Get(id string) (VehicleRecord, bool) {
	rec, ok := lt.records[id]
	if !ok {
		return VehicleRecord{}, false
	}
	return *rec, true
}

// Records returns copies of all records in observation order.
func (lt *LifecycleTracker) Records() []VehicleRecord {
	out := make([]VehicleRecord, 0, len(lt.records))
	for _, rec := range lt.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
