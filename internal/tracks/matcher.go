package tracks

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/errors"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/geometry"
)

// Match incrementally folds unassigned detections into the existing tracks.
// The join rule is the same as the full rebuild's. Detections that match no
// track stay unassigned until the next full rebuild, which clusters them with
// full chronological context. Review statuses are never modified. An empty
// cameraID matches across every camera.
func (b *Builder) Match(cameraID string) (Summary, error) {
	unlock := b.locks.lock(cameraID)
	defer unlock()

	start := time.Now()
	summary, err := b.matchUnassigned(cameraID)
	b.observe("match", start, err)
	return summary, err
}

func (b *Builder) matchUnassigned(cameraID string) (Summary, error) {
	var summary Summary

	dets, err := b.store.UnassignedDetections(cameraID)
	if err != nil {
		return summary, errors.New(err).
			Component("tracks").
			Category(errors.CategoryDatabase).
			Context("camera_id", cameraID).
			Build()
	}
	if b.metrics != nil {
		b.metrics.RecordDetectionsProcessed("tracks", len(dets))
	}

	for i := range dets {
		det := &dets[i]
		box := effectiveBox(det)
		if det.CameraID == "" || !box.Valid() {
			summary.Skipped++
			continue
		}

		track, err := b.findTrack(det, box)
		if err != nil {
			return summary, err
		}
		if track == nil {
			// Creating a track here, outside chronological replay, could
			// fragment what a rebuild would cluster. The detection waits
			// for the next full rebuild instead.
			summary.Skipped++
			continue
		}

		if err := b.store.AssignTrack([]uint{det.ID}, track.ID); err != nil {
			return summary, errors.New(err).
				Component("tracks").
				Category(errors.CategoryDatabase).
				Context("track_id", track.ID).
				Build()
		}
		if err := b.Recompute(track.ID); err != nil {
			return summary, err
		}
		summary.Assigned++
	}

	if summary.Assigned > 0 || summary.Skipped > 0 {
		b.logger.Info("incremental track match complete",
			"camera_id", cameraID,
			"assigned", summary.Assigned,
			"skipped", summary.Skipped)
	}
	return summary, nil
}

// findTrack returns the best matching persisted track for the detection, or
// nil when nothing qualifies.
func (b *Builder) findTrack(det *datastore.Detection, box geometry.Box) (*datastore.CameraObjectTrack, error) {
	candidates, err := b.partitionTracks(det.CameraID, det.EffectiveClass())
	if err != nil {
		return nil, err
	}

	window := time.Duration(b.settings.AdjacencyWindow(det.CameraID)) * time.Second

	var best *datastore.CameraObjectTrack
	bestIoU := 0.0
	for i := range candidates {
		track := &candidates[i]
		gap := det.Timestamp.Sub(track.LastSeen)
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		avg := geometry.Box{X: track.AvgX, Y: track.AvgY, W: track.AvgWidth, H: track.AvgHeight}
		iou := geometry.IoU(box, avg)
		if iou >= b.settings.IoUThreshold && iou > bestIoU {
			best = track
			bestIoU = iou
		}
	}
	return best, nil
}

// partitionTracks returns the track aggregates for one (camera, class)
// partition, served from the cache when fresh.
func (b *Builder) partitionTracks(cameraID, class string) ([]datastore.CameraObjectTrack, error) {
	key := cacheKey(cameraID, class)
	if cached, ok := b.cache.Get(key); ok {
		if tracks, ok := cached.([]datastore.CameraObjectTrack); ok {
			return tracks, nil
		}
	}

	tracks, err := b.store.TracksByCameraClass(cameraID, class)
	if err != nil {
		return nil, errors.New(err).
			Component("tracks").
			Category(errors.CategoryDatabase).
			Context("camera_id", cameraID).
			Build()
	}
	b.cache.Set(key, tracks, gocache.DefaultExpiration)
	return tracks, nil
}
