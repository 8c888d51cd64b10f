// Package propagation spreads manual review decisions across camera object
// tracks: members of an approved track become auto-approved with downstream
// annotations, members of a rejected track become auto-rejected, and tracks
// whose reviewers disagree are surfaced as conflicts for explicit resolution.
package propagation

import (
	"log/slog"
	"time"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/errors"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/logging"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability/metrics"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/tracks"
)

// Propagator applies track-level consensus to the undecided members of each
// track.
type Propagator struct {
	store   datastore.Interface
	builder *tracks.Builder
	logger  *slog.Logger
	metrics *metrics.ConsolidationMetrics
}

// PassSummary reports the structured outcome of one propagation pass.
type PassSummary struct {
	AutoApproved   int // detections marked auto_approved
	AutoRejected   int // detections marked auto_rejected
	Annotations    int // downstream annotations created
	ConflictTracks int // tracks left untouched pending resolution
}

// New creates a Propagator. m may be nil.
func New(store datastore.Interface, builder *tracks.Builder, _ *conf.Settings, m *metrics.ConsolidationMetrics) *Propagator {
	logger := logging.ForService("propagation")
	if logger == nil {
		logger = slog.Default().With("service", "propagation")
	}
	return &Propagator{
		store:   store,
		builder: builder,
		logger:  logger,
		metrics: m,
	}
}

// Run executes one propagation pass over every track with a manual consensus.
// The pass is idempotent: only pending members change status, and annotation
// creation is at-most-once per detection. Conflicted tracks are counted and
// skipped.
func (p *Propagator) Run() (PassSummary, error) {
	start := time.Now()
	summary, err := p.run()
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordPass("propagation", status)
		p.metrics.RecordPassDuration("propagation", time.Since(start).Seconds())
	}
	return summary, err
}

func (p *Propagator) run() (PassSummary, error) {
	var summary PassSummary

	anchored, err := p.store.TracksWithAnchor(datastore.AnchorApproved, datastore.AnchorRejected, datastore.AnchorConflict)
	if err != nil {
		return summary, errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Build()
	}

	for i := range anchored {
		track := &anchored[i]
		switch track.AnchorStatus {
		case datastore.AnchorApproved:
			approved, annotated, err := p.propagateApproval(track)
			if err != nil {
				return summary, err
			}
			summary.AutoApproved += approved
			summary.Annotations += annotated
		case datastore.AnchorRejected:
			rejected, err := p.propagateRejection(track)
			if err != nil {
				return summary, err
			}
			summary.AutoRejected += rejected
		case datastore.AnchorConflict:
			summary.ConflictTracks++
		}
	}

	if p.metrics != nil {
		p.metrics.SetConflictTracks(summary.ConflictTracks)
	}
	p.logger.Info("propagation pass complete",
		"auto_approved", summary.AutoApproved,
		"auto_rejected", summary.AutoRejected,
		"annotations", summary.Annotations,
		"conflict_tracks", summary.ConflictTracks)
	return summary, nil
}

// propagateApproval marks the track's pending members auto-approved, applies
// the anchor classification to uncorrected members, and creates downstream
// annotations for the newly approved detections.
func (p *Propagator) propagateApproval(track *datastore.CameraObjectTrack) (approved, annotated int, err error) {
	members, err := p.store.TrackMembers(track.ID)
	if err != nil {
		return 0, 0, errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Context("track_id", track.ID).
			Build()
	}

	pending := pendingIDs(members)
	if len(pending) > 0 {
		n, err := p.store.MarkPendingAs(pending, datastore.StatusAutoApproved)
		if err != nil {
			return 0, 0, errors.New(err).
				Component("propagation").
				Category(errors.CategoryPropagation).
				Context("track_id", track.ID).
				Build()
		}
		approved = int(n)

		if track.AnchorClassification != "" && !track.ClassificationConflict {
			if _, err := p.store.SetCorrectedClass(pending, track.AnchorClassification); err != nil {
				return approved, 0, errors.New(err).
					Component("propagation").
					Category(errors.CategoryPropagation).
					Context("track_id", track.ID).
					Build()
			}
		}
	}

	// Reload so annotations carry the propagated corrections.
	members, err = p.store.TrackMembers(track.ID)
	if err != nil {
		return approved, 0, errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Context("track_id", track.ID).
			Build()
	}
	for i := range members {
		m := &members[i]
		if m.Status != datastore.StatusAutoApproved {
			continue
		}
		created, err := p.annotate(m, "propagated")
		if err != nil {
			return approved, annotated, err
		}
		if created {
			annotated++
		}
	}

	if p.metrics != nil && approved > 0 {
		p.metrics.RecordDecisionPropagated(datastore.StatusAutoApproved, approved)
	}
	if approved > 0 || annotated > 0 {
		if err := p.builder.Recompute(track.ID); err != nil {
			return approved, annotated, err
		}
	}
	return approved, annotated, nil
}

// propagateRejection marks the track's pending members auto-rejected.
func (p *Propagator) propagateRejection(track *datastore.CameraObjectTrack) (int, error) {
	members, err := p.store.TrackMembers(track.ID)
	if err != nil {
		return 0, errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Context("track_id", track.ID).
			Build()
	}

	pending := pendingIDs(members)
	if len(pending) == 0 {
		return 0, nil
	}
	n, err := p.store.MarkPendingAs(pending, datastore.StatusAutoRejected)
	if err != nil {
		return 0, errors.New(err).
			Component("propagation").
			Category(errors.CategoryPropagation).
			Context("track_id", track.ID).
			Build()
	}
	if p.metrics != nil && n > 0 {
		p.metrics.RecordDecisionPropagated(datastore.StatusAutoRejected, int(n))
	}
	if n > 0 {
		if err := p.builder.Recompute(track.ID); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

// annotate creates the downstream annotation for an approved detection.
// Creation is at-most-once per detection; created reports whether this call
// inserted the record.
func (p *Propagator) annotate(d *datastore.Detection, source string) (bool, error) {
	x, y, w, h := effectiveCoords(d)
	created, err := p.store.CreateAnnotation(&datastore.Annotation{
		DetectionID: d.ID,
		CameraID:    d.CameraID,
		ClassLabel:  d.EffectiveClass(),
		X:           x,
		Y:           y,
		Width:       w,
		Height:      h,
		Confidence:  d.Confidence,
		Source:      source,
	})
	if err != nil {
		return false, errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Context("detection_id", d.ID).
			Build()
	}
	if created && p.metrics != nil {
		p.metrics.RecordAnnotationCreated()
	}
	return created, nil
}

func pendingIDs(members []datastore.Detection) []uint {
	var ids []uint
	for i := range members {
		if members[i].Status == datastore.StatusPending {
			ids = append(ids, members[i].ID)
		}
	}
	return ids
}

// effectiveCoords returns the reviewer-corrected box coordinates when
// present, otherwise the model's.
func effectiveCoords(d *datastore.Detection) (x, y, w, h float64) {
	x, y, w, h = d.X, d.Y, d.Width, d.Height
	if d.CorrectedX != nil {
		x = *d.CorrectedX
	}
	if d.CorrectedY != nil {
		y = *d.CorrectedY
	}
	if d.CorrectedWidth != nil {
		w = *d.CorrectedWidth
	}
	if d.CorrectedHeight != nil {
		h = *d.CorrectedHeight
	}
	return x, y, w, h
}
