package trajectory

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/errors"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/logging"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability/metrics"
)

// Tracker validates the raw tracker stream for a clip.
type Tracker struct {
	settings conf.TrajectorySettings
	redetect Redetector
	logger   *slog.Logger
	metrics  *metrics.ConsolidationMetrics
}

// New creates a Tracker. redetect and m may be nil; without a redetector the
// gap-filling step is skipped.
func New(settings *conf.Settings, redetect Redetector, m *metrics.ConsolidationMetrics) *Tracker {
	logger := logging.ForService("trajectory")
	if logger == nil {
		logger = slog.Default().With("service", "trajectory")
	}
	return &Tracker{
		settings: settings.Consolidation.Trajectory,
		redetect: redetect,
		logger:   logger,
		metrics:  m,
	}
}

// Process turns the clip's tracker stream into validated trajectories. A clip
// that cannot be processed yields an empty result and an error; callers skip
// the clip rather than persisting a partial one.
func (t *Tracker) Process(ctx context.Context, clip *Clip) ([]Trajectory, error) {
	if err := validateClip(clip); err != nil {
		return nil, err
	}

	trajectories := t.aggregate(clip)

	kept := make([]Trajectory, 0, len(trajectories))
	for i := range trajectories {
		traj := t.split(&trajectories[i])
		if traj == nil {
			continue
		}
		kept = append(kept, *traj)
	}

	kept = t.mergeFragments(kept)

	if t.redetect != nil {
		kept = t.fillGaps(ctx, clip, kept)
	}

	if t.metrics != nil {
		for range kept {
			t.metrics.RecordTrajectory("kept")
		}
	}

	t.logger.Info("clip processed",
		"clip_id", clip.ID,
		"camera_id", clip.CameraID,
		"trajectories", len(kept))

	return kept, nil
}

func validateClip(clip *Clip) error {
	switch {
	case clip == nil:
		return errors.Newf("nil clip").Component("trajectory").Category(errors.CategoryValidation).Build()
	case clip.ID == "" || clip.CameraID == "":
		return errors.Newf("clip missing id or camera id").
			Component("trajectory").
			Category(errors.CategoryValidation).
			Build()
	case clip.Duration <= 0:
		return errors.Newf("clip %s has invalid duration %f", clip.ID, clip.Duration).
			Component("trajectory").
			Category(errors.CategoryClipDecode).
			Context("clip_id", clip.ID).
			Build()
	case clip.FPS <= 0:
		return errors.Newf("clip %s has invalid frame rate %f", clip.ID, clip.FPS).
			Component("trajectory").
			Category(errors.CategoryClipDecode).
			Context("clip_id", clip.ID).
			Build()
	}
	return nil
}

// aggregate groups frames by provisional tracker label, discards candidates
// with too few observations, resolves the class by majority vote and picks
// the highest-confidence frame as representative.
func (t *Tracker) aggregate(clip *Clip) []Trajectory {
	points := make(map[string][]Point)
	order := make([]string, 0)

	for _, frame := range clip.Frames {
		// Frames with no boxes are skipped.
		for _, obs := range frame.Observations {
			if obs.TrackerLabel == "" || !obs.Box.Valid() {
				continue
			}
			if _, seen := points[obs.TrackerLabel]; !seen {
				order = append(order, obs.TrackerLabel)
			}
			points[obs.TrackerLabel] = append(points[obs.TrackerLabel], Point{
				Time:       frame.Time,
				Box:        obs.Box,
				Confidence: obs.Confidence,
				Class:      obs.Class,
			})
		}
	}

	result := make([]Trajectory, 0, len(order))
	for _, label := range order {
		pts := points[label]
		if len(pts) < t.settings.MinPoints {
			if t.metrics != nil {
				t.metrics.RecordTrajectory("too_short")
			}
			t.logger.Debug("discarding short tracker candidate",
				"clip_id", clip.ID, "tracker_label", label, "points", len(pts))
			continue
		}
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time < pts[j].Time })

		traj := Trajectory{
			TrackerLabel: label,
			Class:        majorityClass(pts),
			Points:       pts,
		}
		traj.Representative = pts[0]
		traj.refresh()
		result = append(result, traj)
	}
	return result
}

// majorityClass resolves mid-track class flip-flopping by vote, breaking ties
// with accumulated confidence.
func majorityClass(pts []Point) string {
	counts := make(map[string]int)
	confidence := make(map[string]float64)
	for _, p := range pts {
		counts[p.Class]++
		confidence[p.Class] += p.Confidence
	}

	best := ""
	for class, count := range counts {
		if best == "" {
			best = class
			continue
		}
		if count > counts[best] || (count == counts[best] && confidence[class] > confidence[best]) {
			best = class
		}
	}
	return best
}

// observe is a small helper for recording pass durations from callers.
func (t *Tracker) observe(start time.Time, err error) {
	if t.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	t.metrics.RecordPass("trajectory", status)
	t.metrics.RecordPassDuration("trajectory", time.Since(start).Seconds())
}

// ProcessAll runs Process over several clips, skipping failed clips, and
// reports created/skipped counts.
func (t *Tracker) ProcessAll(ctx context.Context, clips []*Clip) ([]Trajectory, Summary) {
	var all []Trajectory
	var summary Summary

	for _, clip := range clips {
		start := time.Now()
		trajs, err := t.Process(ctx, clip)
		t.observe(start, err)
		if err != nil {
			// A clip that fails yields an empty result, not a partial one.
			t.logger.Warn("skipping clip", "clip_id", clipID(clip), "error", err)
			summary.Failed++
			continue
		}
		all = append(all, trajs...)
		summary.Created += len(trajs)
	}
	return all, summary
}

// Summary reports the structured outcome of a trajectory pass.
type Summary struct {
	Created int // validated trajectories produced
	Skipped int // discarded segments and short candidates
	Failed  int // clips that could not be processed
}

func clipID(clip *Clip) string {
	if clip == nil {
		return ""
	}
	return clip.ID
}
