package trajectory

import (
	"math"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/geometry"
)

// Anomaly thresholds for trajectory splitting. A trajectory is walked in time
// order against a baseline area taken from its first points; any anomaly
// starts a new segment.
const (
	// areaJumpRatio flags a box whose area changed more than 100% from the
	// baseline while the centroid barely moved: the tracker latched onto a
	// stationary occluder.
	areaJumpRatio   = 1.0
	stationaryDrift = 50.0

	// jumpDistance flags a centroid displacement over 300px combined with a
	// large area change against the prior point: a jump to an unrelated
	// object.
	jumpDistance   = 300.0
	jumpAreaChange = 0.5

	// velocityWindow points are examined for a horizontal velocity sign flip
	// with both magnitudes above velocityMin px/interval: track-buffer reuse
	// between an outbound and an inbound object.
	velocityWindow = 6
	velocityMin    = 30.0

	// Trajectories shorter than splitMinPoints skip splitting entirely.
	splitMinPoints = 8
)

// split walks the trajectory looking for anomaly points and cuts it into
// segments. The earliest segment with enough points is kept; later segments
// are logged and discarded, never persisted silently. Returns nil when no
// segment survives.
func (t *Tracker) split(traj *Trajectory) *Trajectory {
	if len(traj.Points) < splitMinPoints {
		return traj
	}

	segments := t.cutSegments(traj.Points)

	if len(segments) == 1 {
		return traj
	}

	var kept *Trajectory
	for _, segment := range segments {
		if kept == nil && len(segment) >= t.settings.MinPoints {
			replacement := &Trajectory{
				TrackerLabel: traj.TrackerLabel,
				Class:        majorityClass(segment),
				Points:       segment,
			}
			replacement.Representative = segment[0]
			replacement.refresh()
			kept = replacement
			continue
		}
		if t.metrics != nil {
			t.metrics.RecordTrajectory("split_discarded")
		}
		t.logger.Info("discarding trajectory segment after split",
			"tracker_label", traj.TrackerLabel,
			"points", len(segment),
			"start", segment[0].Time,
			"end", segment[len(segment)-1].Time)
	}
	return kept
}

// cutSegments returns the trajectory points partitioned at anomaly points.
// The baseline area accumulates over the points already walked, capped at the
// first configured number of points, so a size jump is judged against the
// sizes seen before it rather than diluted by itself.
func (t *Tracker) cutSegments(pts []Point) [][]Point {
	var segments [][]Point
	segmentStart := 0

	for i := 1; i < len(pts); i++ {
		baseline := baselineArea(pts, minInt(i, t.settings.BaselinePoints))
		if t.isAnomaly(pts, i, baseline) {
			segments = append(segments, pts[segmentStart:i])
			segmentStart = i
		}
	}
	segments = append(segments, pts[segmentStart:])
	return segments
}

func (t *Tracker) isAnomaly(pts []Point, i int, baseline float64) bool {
	prev, cur := pts[i-1], pts[i]

	// Stationary occluder: large area change from baseline, little movement.
	if baseline > 0 {
		areaChange := math.Abs(cur.Box.Area()-baseline) / baseline
		if areaChange > areaJumpRatio && geometry.CentroidDistance(prev.Box, cur.Box) < stationaryDrift {
			return true
		}
	}

	// Jump to an unrelated object: big displacement and big size change.
	if geometry.CentroidDistance(prev.Box, cur.Box) > jumpDistance {
		prevArea := prev.Box.Area()
		if prevArea > 0 && math.Abs(cur.Box.Area()-prevArea)/prevArea > jumpAreaChange {
			return true
		}
	}

	// Track-buffer reuse: horizontal velocity flips direction hard within the
	// sliding window.
	if i >= velocityWindow-1 {
		if flip := velocitySignFlip(pts[i-velocityWindow+1 : i+1]); flip {
			return true
		}
	}

	return false
}

// velocitySignFlip compares the mean horizontal velocity of the window's
// leading and trailing intervals.
func velocitySignFlip(window []Point) bool {
	if len(window) < 4 {
		return false
	}
	half := len(window) / 2

	oldV := meanVX(window[:half+1])
	newV := meanVX(window[half:])

	return oldV*newV < 0 &&
		math.Abs(oldV) > velocityMin &&
		math.Abs(newV) > velocityMin
}

func meanVX(pts []Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(pts); i++ {
		cx1, _ := pts[i-1].Box.Center()
		cx2, _ := pts[i].Box.Center()
		sum += cx2 - cx1
	}
	return sum / float64(len(pts)-1)
}

// baselineArea averages the box area over the first n points.
func baselineArea(pts []Point, n int) float64 {
	if n <= 0 {
		n = splitMinPoints
	}
	if n > len(pts) {
		n = len(pts)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += pts[i].Box.Area()
	}
	return sum / float64(n)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

