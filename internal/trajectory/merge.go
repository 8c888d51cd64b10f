package trajectory

import (
	"sort"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/geometry"
)

// extrapolationPoints bounds how many trailing points feed the velocity
// estimate used for fragment merging and gap filling.
const extrapolationPoints = 3

// mergeFragments joins trajectory fragments that belong to one object: a
// later fragment B merges into an earlier fragment A when B starts shortly
// after A ends, their classes are compatible, and A's extrapolated position at
// B's start lands near B's first point. Merging repeats to support chains.
func (t *Tracker) mergeFragments(trajs []Trajectory) []Trajectory {
	if len(trajs) < 2 {
		return trajs
	}

	sort.SliceStable(trajs, func(i, j int) bool { return trajs[i].Start() < trajs[j].Start() })

	merged := true
	for merged {
		merged = false
		for i := 0; i < len(trajs) && !merged; i++ {
			for j := i + 1; j < len(trajs); j++ {
				if !t.canMerge(&trajs[i], &trajs[j]) {
					continue
				}
				t.merge(&trajs[i], &trajs[j])
				trajs = append(trajs[:j], trajs[j+1:]...)
				sort.SliceStable(trajs, func(a, b int) bool { return trajs[a].Start() < trajs[b].Start() })
				merged = true
				break
			}
		}
	}
	return trajs
}

func (t *Tracker) canMerge(a, b *Trajectory) bool {
	if len(a.Points) == 0 || len(b.Points) == 0 {
		return false
	}

	// B must start within the merge window after A ends; a small overlap is
	// tolerated for trackers that briefly double-report.
	gap := b.Start() - a.End()
	if gap > t.settings.MergeMaxGap || gap < -t.settings.MergeOverlap {
		return false
	}

	if !Compatible(a.Class, b.Class) {
		return false
	}

	// A's position, linearly extrapolated to B's start, must land near B's
	// first point.
	predicted := extrapolate(a.Points, b.Start())
	bx, by := b.Points[0].Box.Center()
	dx := predicted.x - bx
	dy := predicted.y - by
	distance := dx*dx + dy*dy
	limit := t.settings.MergeMaxDistance * t.settings.MergeMaxDistance
	return distance <= limit
}

// merge folds b into a: concatenate and re-sort points, expand time bounds,
// recompute average confidence, keep the higher-confidence representative.
func (t *Tracker) merge(a, b *Trajectory) {
	a.Points = append(a.Points, b.Points...)
	a.refresh()
	a.Class = majorityClass(a.Points)
	if b.Representative.Confidence > a.Representative.Confidence {
		a.Representative = b.Representative
	}
	if t.metrics != nil {
		t.metrics.RecordTrajectory("merged")
	}
	t.logger.Debug("merged trajectory fragments",
		"into", a.TrackerLabel, "from", b.TrackerLabel,
		"points", len(a.Points))
}

type projected struct {
	x, y float64
	w, h float64
}

// extrapolate estimates position and size at the given time from the velocity
// of the last few points. With a single point the position is held constant.
func extrapolate(pts []Point, at float64) projected {
	last := pts[len(pts)-1]
	lx, ly := last.Box.Center()
	p := projected{x: lx, y: ly, w: last.Box.W, h: last.Box.H}

	n := minInt(len(pts), extrapolationPoints)
	if n < 2 {
		return p
	}

	first := pts[len(pts)-n]
	dt := last.Time - first.Time
	if dt <= 0 {
		return p
	}

	fx, fy := first.Box.Center()
	vx := (lx - fx) / dt
	vy := (ly - fy) / dt

	elapsed := at - last.Time
	p.x = lx + vx*elapsed
	p.y = ly + vy*elapsed
	return p
}

// window builds a search box centered on a projection, scaled from the
// projected size.
func (p projected) window(scale float64) geometry.Box {
	w := p.w * scale
	h := p.h * scale
	return geometry.Box{X: p.x - w/2, Y: p.y - h/2, W: w, H: h}
}
