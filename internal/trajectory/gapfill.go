package trajectory

import (
	"context"
	"math"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/geometry"
)

// Candidate is a single detection returned by a Redetector.
type Candidate struct {
	Box        geometry.Box
	Confidence float64
	Class      string
}

// Redetector runs targeted re-detection on a clip region at a given time.
// Implementations typically decode the frame nearest t and run the detector
// over the window crop only.
type Redetector interface {
	DetectRegion(ctx context.Context, clipID string, t float64, window geometry.Box, minConfidence float64) ([]Candidate, error)
}

const (
	windowScale       = 2.0
	trailingWidening  = 0.5 // extra window scale per elapsed second of trailing gap
	minAcceptIoU      = 0.1
	minAreaRatio      = 0.33
	fullFrameFallback = 2.0 // trailing gaps beyond this many seconds also try full-frame
)

// fillGaps runs re-detection over temporal holes in each trajectory: internal
// gaps between consecutive points and the trailing gap between the last point
// and the end of the clip. Accepted candidates become new trajectory points.
// Detector failures degrade to leaving the gap unfilled.
func (t *Tracker) fillGaps(ctx context.Context, clip *Clip, trajs []Trajectory) []Trajectory {
	for i := range trajs {
		t.fillTrajectory(ctx, clip, &trajs[i])
	}
	return trajs
}

func (t *Tracker) fillTrajectory(ctx context.Context, clip *Clip, traj *Trajectory) {
	if len(traj.Points) == 0 {
		return
	}

	budget := t.settings.FrameBudget
	added := 0

	// Internal gaps first: they are short and cheap to close.
	for i := 0; i+1 < len(traj.Points) && budget > 0; i++ {
		gap := traj.Points[i+1].Time - traj.Points[i].Time
		if gap <= t.settings.InternalGap {
			continue
		}
		n := t.sampleGap(ctx, clip, traj, traj.Points[i].Time, traj.Points[i+1].Time, false, &budget)
		added += n
	}

	// Trailing gap: the object may have kept moving after the tracker lost it.
	trailing := clip.Duration - traj.End()
	if trailing > t.settings.TrailingGap && budget > 0 {
		n := t.sampleGap(ctx, clip, traj, traj.End(), clip.Duration, true, &budget)
		added += n
	}

	if added > 0 {
		traj.refresh()
		if t.metrics != nil {
			t.metrics.RecordGapFillFrames(added)
		}
		t.logger.Debug("gap fill added points",
			"tracker_label", traj.TrackerLabel, "class", traj.Class, "added", added)
	}
}

// sampleGap samples frames at the configured stride through (from, to) and
// attempts re-detection at each, projecting the trajectory forward as points
// are accepted. Returns the number of points added.
func (t *Tracker) sampleGap(ctx context.Context, clip *Clip, traj *Trajectory, from, to float64, trailing bool, budget *int) int {
	added := 0
	for at := from + t.settings.SampleStride; at < to; at += t.settings.SampleStride {
		if *budget <= 0 {
			break
		}
		*budget--

		pt, ok := t.redetectAt(ctx, clip, traj, at, trailing)
		if !ok {
			continue
		}
		traj.Points = append(traj.Points, pt)
		traj.refresh()
		added++
	}
	return added
}

func (t *Tracker) redetectAt(ctx context.Context, clip *Clip, traj *Trajectory, at float64, trailing bool) (Point, bool) {
	proj := extrapolate(traj.Points, at)

	scale := windowScale
	if trailing {
		// The search window widens with elapsed time since the last
		// confirmed point so a moving object stays catchable.
		elapsed := at - traj.End()
		scale += trailingWidening * elapsed
	}
	window := proj.window(scale)
	window = clampToFrame(window, clip)

	cands, err := t.redetect.DetectRegion(ctx, clip.ID, at, window, t.settings.RedetectMinConf)
	if err != nil {
		t.logger.Debug("re-detection failed, leaving gap",
			"clip_id", clip.ID, "time", at, "error", err)
		return Point{}, false
	}

	// Long trailing gaps also try the full frame: the window projection is
	// unreliable that far out, so matching falls back to the nearest
	// compatible-class candidate anywhere in the frame.
	if len(cands) == 0 && trailing && at-traj.End() > fullFrameFallback {
		full := geometry.Box{X: 0, Y: 0, W: clip.Width, H: clip.Height}
		cands, err = t.redetect.DetectRegion(ctx, clip.ID, at, full, t.settings.RedetectMinConf)
		if err != nil {
			return Point{}, false
		}
		best, ok := nearestCompatible(cands, traj.Class, proj)
		if !ok {
			return Point{}, false
		}
		return Point{Time: at, Box: best.Box, Confidence: best.Confidence, Class: best.Class}, true
	}

	best, ok := t.pickCandidate(cands, traj, window, proj)
	if !ok {
		return Point{}, false
	}
	return Point{Time: at, Box: best.Box, Confidence: best.Confidence, Class: best.Class}, true
}

// nearestCompatible picks the candidate closest to the projected position
// whose class is compatible with the trajectory. The full-frame fallback uses
// it instead of pickCandidate because there is no trustworthy search window to
// gate on that far past the last confirmed point. The size sanity check still
// applies.
func nearestCompatible(cands []Candidate, class string, proj projected) (Candidate, bool) {
	refArea := proj.w * proj.h

	var best Candidate
	bestDist := math.Inf(1)
	for _, c := range cands {
		if !c.Box.Valid() || !Compatible(c.Class, class) {
			continue
		}
		if refArea > 0 {
			ratio := c.Box.Area() / refArea
			if ratio < minAreaRatio || ratio > 1/minAreaRatio {
				continue
			}
		}
		cx, cy := c.Box.Center()
		dist := math.Hypot(cx-proj.x, cy-proj.y)
		if dist < bestDist {
			bestDist = dist
			best = c
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// pickCandidate scores candidates against the projected position and returns
// the best acceptable one.
func (t *Tracker) pickCandidate(cands []Candidate, traj *Trajectory, window geometry.Box, proj projected) (Candidate, bool) {
	refArea := proj.w * proj.h

	var best Candidate
	bestScore := -1.0
	for _, c := range cands {
		if !c.Box.Valid() {
			continue
		}

		// Accept by centroid inside the search window, or by minimal overlap
		// with it.
		cx, cy := c.Box.Center()
		if !window.Contains(cx, cy) && geometry.IoU(window, c.Box) < minAcceptIoU {
			continue
		}

		// Size sanity: the candidate should be roughly the projected size.
		if refArea > 0 {
			ratio := c.Box.Area() / refArea
			if ratio < minAreaRatio || ratio > 1/minAreaRatio {
				continue
			}
		}

		score := c.Confidence
		if Compatible(c.Class, traj.Class) {
			score += 0.5
		}
		score += geometry.IoU(window, c.Box)

		// Prefer candidates closest to the projection.
		dx := cx - proj.x
		dy := cy - proj.y
		dist := math.Hypot(dx, dy)
		if window.W > 0 {
			score -= dist / window.W
		}

		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best, bestScore >= 0
}

func clampToFrame(b geometry.Box, clip *Clip) geometry.Box {
	if clip.Width <= 0 || clip.Height <= 0 {
		return b
	}
	fw, fh := float64(clip.Width), float64(clip.Height)
	if b.X < 0 {
		b.W += b.X
		b.X = 0
	}
	if b.Y < 0 {
		b.H += b.Y
		b.Y = 0
	}
	if b.X+b.W > fw {
		b.W = fw - b.X
	}
	if b.Y+b.H > fh {
		b.H = fh - b.Y
	}
	return b
}
