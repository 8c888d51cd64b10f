package propagation

import (
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/errors"
)

// Decision is a reviewer verdict on a detection or a whole track.
type Decision struct {
	Approve        bool
	CorrectedClass string // optional class correction, approvals only
	Note           string // optional reviewer note, logged only
}

// ApplyDecision records a manual review decision on one detection, identified
// by its supplier-assigned id. Approvals create a manual downstream
// annotation. The detection's track aggregates are recomputed afterwards so
// the next propagation pass sees the new consensus.
func (p *Propagator) ApplyDecision(externalID string, decision Decision) error {
	d, err := p.store.GetDetectionByExternalID(externalID)
	if err != nil {
		return errors.New(err).
			Component("propagation").
			Category(errors.CategoryNotFound).
			Context("external_id", externalID).
			Build()
	}

	status := datastore.StatusRejected
	if decision.Approve {
		status = datastore.StatusApproved
	}
	d.Status = status
	if decision.Approve && decision.CorrectedClass != "" && decision.CorrectedClass != d.ClassLabel {
		d.CorrectedClass = &decision.CorrectedClass
	}
	if err := p.store.SaveDetection(&d); err != nil {
		return errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Context("external_id", externalID).
			Build()
	}

	if decision.Approve {
		if _, err := p.annotate(&d, "manual"); err != nil {
			return err
		}
	}

	p.logger.Info("manual decision recorded",
		"external_id", externalID,
		"status", status,
		"corrected_class", decision.CorrectedClass,
		"note", decision.Note)

	if d.TrackID != nil {
		return p.builder.Recompute(*d.TrackID)
	}
	return nil
}

// ApplyTrackDecision records a manual verdict at track granularity: the
// track's representative detection receives the manual decision, and the
// resulting consensus is immediately propagated to the remaining undecided
// members. Re-applying the same decision is a no-op.
func (p *Propagator) ApplyTrackDecision(trackID uint, decision Decision) (PassSummary, error) {
	var summary PassSummary

	track, err := p.store.GetTrack(trackID)
	if err != nil {
		return summary, errors.New(err).
			Component("propagation").
			Category(errors.CategoryNotFound).
			Context("track_id", trackID).
			Build()
	}

	rep, err := p.store.GetDetection(track.RepresentativeID)
	if err != nil {
		return summary, errors.New(err).
			Component("propagation").
			Category(errors.CategoryNotFound).
			Context("track_id", trackID).
			Context("detection_id", track.RepresentativeID).
			Build()
	}
	if err := p.ApplyDecision(rep.ExternalID, decision); err != nil {
		return summary, err
	}

	track, err = p.store.GetTrack(trackID)
	if err != nil {
		return summary, errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Context("track_id", trackID).
			Build()
	}
	switch track.AnchorStatus {
	case datastore.AnchorApproved:
		approved, annotated, err := p.propagateApproval(&track)
		if err != nil {
			return summary, err
		}
		summary.AutoApproved = approved
		summary.Annotations = annotated
	case datastore.AnchorRejected:
		rejected, err := p.propagateRejection(&track)
		if err != nil {
			return summary, err
		}
		summary.AutoRejected = rejected
	case datastore.AnchorConflict:
		// The new decision disagrees with an earlier manual one; leave the
		// members alone and let the reviewer resolve explicitly.
		summary.ConflictTracks = 1
	}
	return summary, nil
}

// ListConflicts returns the tracks whose manual reviewers disagree, ordered
// by id.
func (p *Propagator) ListConflicts() ([]datastore.CameraObjectTrack, error) {
	conflicts, err := p.store.TracksWithAnchor(datastore.AnchorConflict)
	if err != nil {
		return nil, errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Build()
	}
	return conflicts, nil
}
