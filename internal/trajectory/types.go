// Package trajectory turns raw frame-by-frame tracker output for one clip
// into validated object trajectories: it aggregates points per provisional
// tracker label, splits tracks at anomaly points, merges fragments caused by
// mid-track class relabeling, and fills temporal gaps via projected
// re-detection.
//
// Provisional tracker labels are ephemeral, clip-local names. They are never
// persisted; correspondence to a durable track is re-derived by the track
// builder.
package trajectory

import (
	"sort"
	"time"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/geometry"
	"github.com/google/uuid"
)

// Observation is one tracker box on one frame.
type Observation struct {
	TrackerLabel string       `json:"tracker_label"`
	Box          geometry.Box `json:"box"`
	Confidence   float64      `json:"confidence"`
	Class        string       `json:"class"`
}

// Frame is the tracker output for a single video frame. Frames with no
// observations are skipped.
type Frame struct {
	Time         float64       `json:"time"` // seconds from clip start
	Observations []Observation `json:"observations"`
}

// Clip is the full tracker stream for one video clip.
type Clip struct {
	ID        string    `json:"id"`
	CameraID  string    `json:"camera_id"`
	StartTime time.Time `json:"start_time"`
	Duration  float64   `json:"duration"` // seconds
	FPS       float64   `json:"fps"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Frames    []Frame   `json:"frames"`
}

// Point is a single trajectory sample.
type Point struct {
	Time       float64
	Box        geometry.Box
	Confidence float64
	Class      string
}

// Trajectory is the ordered per-frame path of one provisional tracker label
// within a clip.
type Trajectory struct {
	TrackerLabel  string
	Class         string
	Points        []Point
	AvgConfidence float64

	// Representative is the highest-confidence point; its crop stands in for
	// the whole trajectory during review.
	Representative Point
}

// Start returns the time of the first point.
func (tr *Trajectory) Start() float64 {
	if len(tr.Points) == 0 {
		return 0
	}
	return tr.Points[0].Time
}

// End returns the time of the last point.
func (tr *Trajectory) End() float64 {
	if len(tr.Points) == 0 {
		return 0
	}
	return tr.Points[len(tr.Points)-1].Time
}

// refresh re-sorts points by time and recomputes the derived fields.
func (tr *Trajectory) refresh() {
	sort.SliceStable(tr.Points, func(i, j int) bool {
		return tr.Points[i].Time < tr.Points[j].Time
	})

	if len(tr.Points) == 0 {
		tr.AvgConfidence = 0
		return
	}

	var sum float64
	best := tr.Points[0]
	for _, p := range tr.Points {
		sum += p.Confidence
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	tr.AvgConfidence = sum / float64(len(tr.Points))
	if best.Confidence > tr.Representative.Confidence {
		tr.Representative = best
	}
}

// ToDetection converts a validated trajectory into the detection record that
// enters review: the representative crop with the trajectory's class and
// average confidence, timestamped within the clip.
func (tr *Trajectory) ToDetection(clip *Clip) *datastore.Detection {
	ts := clip.StartTime.Add(time.Duration(tr.Representative.Time * float64(time.Second)))
	return &datastore.Detection{
		ExternalID: uuid.NewString(),
		CameraID:   clip.CameraID,
		ClipID:     clip.ID,
		ClassLabel: tr.Class,
		X:          tr.Representative.Box.X,
		Y:          tr.Representative.Box.Y,
		Width:      tr.Representative.Box.W,
		Height:     tr.Representative.Box.H,
		Confidence: tr.AvgConfidence,
		Timestamp:  ts,
		Status:     datastore.StatusPending,
	}
}
