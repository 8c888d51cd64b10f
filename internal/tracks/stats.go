package tracks

import (
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
)

// computeTrackStats recomputes every derived field of a track from its member
// detections. The anchor status reflects manual decisions only; propagated
// statuses never feed back into consensus.
func computeTrackStats(track *datastore.CameraObjectTrack, members []datastore.Detection) {
	track.MemberCount = len(members)
	track.ApprovedCount = 0
	track.RejectedCount = 0
	track.PendingCount = 0
	track.AutoApprovedCount = 0
	track.AutoRejectedCount = 0

	if len(members) == 0 {
		track.AnchorStatus = datastore.AnchorPending
		track.AnchorClassification = ""
		track.ClassificationConflict = false
		track.RepresentativeID = 0
		track.MinConfidence = 0
		track.MaxConfidence = 0
		return
	}

	var sumX, sumY, sumW, sumH float64
	classVotes := make(map[string]int)

	first := members[0]
	track.MinConfidence = first.Confidence
	track.MaxConfidence = first.Confidence
	track.FirstSeen = first.Timestamp
	track.LastSeen = first.Timestamp
	track.RepresentativeID = first.ID

	for i := range members {
		m := &members[i]
		switch m.Status {
		case datastore.StatusApproved:
			track.ApprovedCount++
			// Only a reviewer-supplied correction votes on the anchor
			// classification. Uncorrected model labels stay out so one
			// correction is not outvoted by the label it fixes.
			if m.CorrectedClass != nil && *m.CorrectedClass != "" {
				classVotes[*m.CorrectedClass]++
			}
		case datastore.StatusRejected:
			track.RejectedCount++
		case datastore.StatusAutoApproved:
			track.AutoApprovedCount++
		case datastore.StatusAutoRejected:
			track.AutoRejectedCount++
		default:
			track.PendingCount++
		}

		box := effectiveBox(m)
		sumX += box.X
		sumY += box.Y
		sumW += box.W
		sumH += box.H

		if m.Confidence < track.MinConfidence {
			track.MinConfidence = m.Confidence
		}
		if m.Confidence > track.MaxConfidence {
			track.MaxConfidence = m.Confidence
			track.RepresentativeID = m.ID
		}
		if m.Timestamp.Before(track.FirstSeen) {
			track.FirstSeen = m.Timestamp
		}
		if m.Timestamp.After(track.LastSeen) {
			track.LastSeen = m.Timestamp
		}
	}

	n := float64(len(members))
	track.AvgX = sumX / n
	track.AvgY = sumY / n
	track.AvgWidth = sumW / n
	track.AvgHeight = sumH / n

	track.AnchorStatus = anchorStatus(track.ApprovedCount, track.RejectedCount)
	track.AnchorClassification, track.ClassificationConflict = anchorClassification(classVotes)
}

// anchorStatus derives the track consensus from manual decisions only.
// Disagreement between reviewers is surfaced as a conflict, never resolved
// silently.
func anchorStatus(approved, rejected int) string {
	switch {
	case approved > 0 && rejected > 0:
		return datastore.AnchorConflict
	case approved > 0:
		return datastore.AnchorApproved
	case rejected > 0:
		return datastore.AnchorRejected
	default:
		return datastore.AnchorPending
	}
}

// anchorClassification returns the plurality class among reviewer-corrected
// tags on manually approved members. The conflict flag records that correcting
// reviewers disagreed on the class; a conflicting classification is never
// propagated.
func anchorClassification(votes map[string]int) (string, bool) {
	if len(votes) == 0 {
		return "", false
	}

	best := ""
	for class, count := range votes {
		if best == "" || count > votes[best] || (count == votes[best] && class < best) {
			best = class
		}
	}
	return best, len(votes) > 1
}
