package propagation

import (
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/errors"
)

// Resolution is an explicit reviewer ruling on a conflicted track.
type Resolution struct {
	Approve bool
	Class   string // optional classification the ruling settles on
}

// Resolve applies an explicit ruling to a conflicted track: the still-pending
// members are decided per the ruling, approvals gain annotations, and the
// track's anchor is overridden to the ruled status with the conflict flags
// cleared. The instigating manual decisions on individual members are left
// untouched, so a later full rebuild will surface the disagreement again
// unless those decisions are revised.
func (p *Propagator) Resolve(trackID uint, res Resolution) (PassSummary, error) {
	var summary PassSummary

	track, err := p.store.GetTrack(trackID)
	if err != nil {
		return summary, errors.New(err).
			Component("propagation").
			Category(errors.CategoryNotFound).
			Context("track_id", trackID).
			Build()
	}
	if track.AnchorStatus != datastore.AnchorConflict && !track.ClassificationConflict {
		return summary, errors.Newf("track %d has no conflict to resolve", trackID).
			Component("propagation").
			Category(errors.CategoryState).
			Context("track_id", trackID).
			Context("anchor_status", track.AnchorStatus).
			Build()
	}

	members, err := p.store.TrackMembers(trackID)
	if err != nil {
		return summary, errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Context("track_id", trackID).
			Build()
	}

	pending := pendingIDs(members)
	if len(pending) > 0 {
		status := datastore.StatusAutoRejected
		if res.Approve {
			status = datastore.StatusAutoApproved
		}
		n, err := p.store.MarkPendingAs(pending, status)
		if err != nil {
			return summary, errors.New(err).
				Component("propagation").
				Category(errors.CategoryPropagation).
				Context("track_id", trackID).
				Build()
		}
		if res.Approve {
			summary.AutoApproved = int(n)
			if res.Class != "" {
				if _, err := p.store.SetCorrectedClass(pending, res.Class); err != nil {
					return summary, errors.New(err).
						Component("propagation").
						Category(errors.CategoryPropagation).
						Context("track_id", trackID).
						Build()
				}
			}
		} else {
			summary.AutoRejected = int(n)
		}
	}

	if res.Approve {
		members, err = p.store.TrackMembers(trackID)
		if err != nil {
			return summary, errors.New(err).
				Component("propagation").
				Category(errors.CategoryDatabase).
				Context("track_id", trackID).
				Build()
		}
		for i := range members {
			m := &members[i]
			if m.Status != datastore.StatusAutoApproved {
				continue
			}
			created, err := p.annotate(m, "propagated")
			if err != nil {
				return summary, err
			}
			if created {
				summary.Annotations++
			}
		}
	}

	// Recompute the aggregates from the members, then pin the anchor to the
	// ruling: the member-level disagreement still exists, so the recomputed
	// consensus would report conflict again.
	if err := p.builder.Recompute(trackID); err != nil {
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
	if res.Approve {
		track.AnchorStatus = datastore.AnchorApproved
	} else {
		track.AnchorStatus = datastore.AnchorRejected
	}
	if res.Class != "" {
		track.AnchorClassification = res.Class
	}
	track.ClassificationConflict = false
	if err := p.store.SaveTrack(&track); err != nil {
		return summary, errors.New(err).
			Component("propagation").
			Category(errors.CategoryDatabase).
			Context("track_id", trackID).
			Build()
	}

	p.logger.Info("track conflict resolved",
		"track_id", trackID,
		"approve", res.Approve,
		"class", res.Class,
		"auto_approved", summary.AutoApproved,
		"auto_rejected", summary.AutoRejected)
	return summary, nil
}
