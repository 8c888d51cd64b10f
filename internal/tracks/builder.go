// Package tracks builds durable camera object tracks: status-agnostic
// clusters of detections believed to be one physical object seen over time on
// one camera. Tracks are the propagation unit for review decisions.
package tracks

import (
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/errors"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/geometry"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/logging"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability/metrics"
)

// Builder assembles camera object tracks from detections of every review
// status.
type Builder struct {
	store    datastore.Interface
	settings conf.TrackSettings
	logger   *slog.Logger
	metrics  *metrics.ConsolidationMetrics

	// cache holds per-partition track aggregates for incremental matching.
	cache *gocache.Cache
	locks *cameraLocks
}

// Summary reports the structured outcome of a track pass.
type Summary struct {
	Created  int // tracks created
	Assigned int // detections assigned to a track
	Skipped  int // malformed detections, or unmatched ones awaiting a rebuild
}

// New creates a Builder. m may be nil.
func New(store datastore.Interface, settings *conf.Settings, m *metrics.ConsolidationMetrics) *Builder {
	logger := logging.ForService("tracks")
	if logger == nil {
		logger = slog.Default().With("service", "tracks")
	}
	ttl := time.Duration(settings.Consolidation.Tracks.CacheTTL) * time.Second
	return &Builder{
		store:    store,
		settings: settings.Consolidation.Tracks,
		logger:   logger,
		metrics:  m,
		cache:    gocache.New(ttl, 2*ttl),
		locks:    newCameraLocks(),
	}
}

// partition identifies one (camera, effective class) replay scope.
type partition struct {
	cameraID string
	class    string
}

// trackState is the in-memory accumulator for one track during replay.
type trackState struct {
	box      geometry.Box // running-average box
	count    int
	lastSeen time.Time
	members  []uint
}

// Rebuild drops the tracks in scope and rebuilds them from scratch by
// chronological replay. Review statuses on the member detections are never
// touched. An empty cameraID rebuilds every camera.
func (b *Builder) Rebuild(cameraID string) (Summary, error) {
	unlock := b.locks.lock(cameraID)
	defer unlock()

	start := time.Now()
	summary, err := b.rebuild(cameraID)
	b.observe("rebuild", start, err)
	return summary, err
}

func (b *Builder) rebuild(cameraID string) (Summary, error) {
	var summary Summary

	if err := b.store.DeleteTracks(cameraID); err != nil {
		return summary, errors.New(err).
			Component("tracks").
			Category(errors.CategoryDatabase).
			Context("camera_id", cameraID).
			Build()
	}
	b.flushCache(cameraID)

	dets, err := b.store.DetectionsForRebuild(cameraID)
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

	// Chronological replay per partition. DetectionsForRebuild returns
	// timestamp order, so each partition's slice stays ordered.
	states := make(map[partition][]*trackState)
	order := make([]partition, 0)
	for i := range dets {
		det := &dets[i]
		box := effectiveBox(det)
		if det.CameraID == "" || !box.Valid() {
			summary.Skipped++
			continue
		}
		key := partition{cameraID: det.CameraID, class: det.EffectiveClass()}
		if _, seen := states[key]; !seen {
			order = append(order, key)
		}
		state := b.match(states[key], det, box)
		if state == nil {
			state = &trackState{}
			states[key] = append(states[key], state)
		}
		state.absorb(det, box)
		summary.Assigned++
	}

	for _, key := range order {
		for _, state := range states[key] {
			if err := b.persist(key, state); err != nil {
				return summary, err
			}
			summary.Created++
		}
	}

	b.logger.Info("track rebuild complete",
		"camera_id", cameraID,
		"tracks", summary.Created,
		"detections", summary.Assigned,
		"skipped", summary.Skipped)
	return summary, nil
}

// match returns the best existing track state the detection joins, or nil.
// The join rule is box overlap with the running average plus temporal
// adjacency to the most recent member.
func (b *Builder) match(candidates []*trackState, det *datastore.Detection, box geometry.Box) *trackState {
	window := time.Duration(b.settings.AdjacencyWindow(det.CameraID)) * time.Second

	var best *trackState
	bestIoU := 0.0
	for _, state := range candidates {
		if det.Timestamp.Sub(state.lastSeen) > window {
			continue
		}
		iou := geometry.IoU(box, state.box)
		if iou >= b.settings.IoUThreshold && iou > bestIoU {
			best = state
			bestIoU = iou
		}
	}
	return best
}

// absorb folds a detection into the running average with weight 1/n.
func (s *trackState) absorb(det *datastore.Detection, box geometry.Box) {
	s.count++
	n := float64(s.count)
	s.box.X += (box.X - s.box.X) / n
	s.box.Y += (box.Y - s.box.Y) / n
	s.box.W += (box.W - s.box.W) / n
	s.box.H += (box.H - s.box.H) / n
	s.lastSeen = det.Timestamp
	s.members = append(s.members, det.ID)
}

// persist writes one replayed track: create the record, assign members, then
// recompute the aggregate fields from the persisted membership.
func (b *Builder) persist(key partition, state *trackState) error {
	track := &datastore.CameraObjectTrack{
		CameraID:   key.cameraID,
		ClassLabel: key.class,
	}
	if err := b.store.SaveTrack(track); err != nil {
		return errors.New(err).
			Component("tracks").
			Category(errors.CategoryDatabase).
			Context("camera_id", key.cameraID).
			Build()
	}
	if err := b.store.AssignTrack(state.members, track.ID); err != nil {
		return errors.New(err).
			Component("tracks").
			Category(errors.CategoryDatabase).
			Context("track_id", track.ID).
			Build()
	}
	if err := b.Recompute(track.ID); err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.RecordTrackCreated()
	}
	return nil
}

// Recompute reloads a track's members and recomputes every derived field,
// including the anchor status. Aggregates are always rebuilt from members,
// never incremented.
func (b *Builder) Recompute(trackID uint) error {
	track, err := b.store.GetTrack(trackID)
	if err != nil {
		return errors.New(err).
			Component("tracks").
			Category(errors.CategoryNotFound).
			Context("track_id", trackID).
			Build()
	}
	members, err := b.store.TrackMembers(trackID)
	if err != nil {
		return errors.New(err).
			Component("tracks").
			Category(errors.CategoryDatabase).
			Context("track_id", trackID).
			Build()
	}
	computeTrackStats(&track, members)
	if err := b.store.SaveTrack(&track); err != nil {
		return errors.New(err).
			Component("tracks").
			Category(errors.CategoryDatabase).
			Context("track_id", trackID).
			Build()
	}
	b.cache.Delete(cacheKey(track.CameraID, track.ClassLabel))
	return nil
}

// effectiveBox returns the reviewer-corrected box when present, otherwise the
// model box.
func effectiveBox(d *datastore.Detection) geometry.Box {
	box := geometry.Box{X: d.X, Y: d.Y, W: d.Width, H: d.Height}
	if d.CorrectedX != nil {
		box.X = *d.CorrectedX
	}
	if d.CorrectedY != nil {
		box.Y = *d.CorrectedY
	}
	if d.CorrectedWidth != nil {
		box.W = *d.CorrectedWidth
	}
	if d.CorrectedHeight != nil {
		box.H = *d.CorrectedHeight
	}
	return box
}

func cacheKey(cameraID, class string) string {
	return fmt.Sprintf("%s|%s", cameraID, class)
}

func (b *Builder) flushCache(cameraID string) {
	if cameraID == "" {
		b.cache.Flush()
		return
	}
	for key := range b.cache.Items() {
		if len(key) > len(cameraID) && key[:len(cameraID)+1] == cameraID+"|" {
			b.cache.Delete(key)
		}
	}
}

func (b *Builder) observe(pass string, start time.Time, err error) {
	if b.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	b.metrics.RecordPass("tracks_"+pass, status)
	b.metrics.RecordPassDuration("tracks_"+pass, time.Since(start).Seconds())
}
