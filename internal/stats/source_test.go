package stats

import (
	"errors"
	"fmt"
	"sync"
)

// frame is the simulated world for one tick.
type frame struct {
	time     float64
	entities []EntitySnapshot
	segments []Segment
	counts   map[string]int

	entitiesErr error
	timeErr     error
	segmentsErr error
	countErr    map[string]error
	lengthErr   map[string]error
	controlErr  error
	control     int
}

// scriptedSource replays frames; each CurrentTime call advances to the next frame.
type scriptedSource struct {
	mu     sync.Mutex
	frames []frame
	idx    int
}

func newScriptedSource(frames ...frame) *scriptedSource {
	return &scriptedSource{frames: frames, idx: -1}
}

func (s *scriptedSource) cur() frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx < 0 || s.idx >= len(s.frames) {
		return frame{}
	}
	return s.frames[s.idx]
}

func (s *scriptedSource) CurrentTime() (float64, error) {
	s.mu.Lock()
	s.idx++
	s.mu.Unlock()
	f := s.cur()
	return f.time, f.timeErr
}

func (s *scriptedSource) ActiveEntities() ([]EntitySnapshot, error) {
	f := s.cur()
	if f.entitiesErr != nil {
		return nil, f.entitiesErr
	}
	return append([]EntitySnapshot(nil), f.entities...), nil
}

func (s *scriptedSource) Segments() ([]Segment, error) {
	f := s.cur()
	if f.segmentsErr != nil {
		return nil, f.segmentsErr
	}
	return append([]Segment(nil), f.segments...), nil
}

func (s *scriptedSource) SegmentVehicleCount(id string) (int, error) {
	f := s.cur()
	if err := f.countErr[id]; err != nil {
		return 0, err
	}
	if f.counts != nil {
		if n, ok := f.counts[id]; ok {
			return n, nil
		}
	}
	n := 0
	for _, e := range f.entities {
		if e.SegmentID == id {
			n++
		}
	}
	return n, nil
}

func (s *scriptedSource) SegmentLength(id string) (float64, error) {
	f := s.cur()
	if err := f.lengthErr[id]; err != nil {
		return 0, err
	}
	for _, seg := range f.segments {
		if seg.ID == id {
			return seg.Length, nil
		}
	}
	return 0, fmt.Errorf("unknown segment %q", id)
}

func (s *scriptedSource) ControlPointCount() (int, error) {
	f := s.cur()
	return f.control, f.controlErr
}

var errFlaky = errors.New("flaky read")

func vehicles(seg string, n int, speed float64, prefix string) []EntitySnapshot {
	out := make([]EntitySnapshot, n)
	for i := range out {
		out[i] = EntitySnapshot{
			ID:        fmt.Sprintf("%s%d", prefix, i),
			Speed:     speed,
			SegmentID: seg,
			Color:     "Blue",
			RouteID:   "R1",
		}
	}
	return out
}
