package propagation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/tracks"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Consolidation.Tracks = conf.TrackSettings{
		IoUThreshold:  0.3,
		DefaultWindow: 7200,
		CacheTTL:      600,
	}
	return s
}

func newFixture(t *testing.T) (datastore.Interface, *tracks.Builder, *Propagator) {
	t.Helper()
	store := datastore.NewTestStore(t)
	settings := testSettings()
	builder := tracks.New(store, settings, nil)
	return store, builder, New(store, builder, settings, nil)
}

func det(camera string, status string, ts time.Time) *datastore.Detection {
	return &datastore.Detection{
		ExternalID: uuid.NewString(),
		CameraID:   camera,
		ClipID:     "clip-1",
		ClassLabel: "car",
		X:          100, Y: 100, Width: 80, Height: 60,
		Confidence: 0.8,
		Timestamp:  ts,
		Status:     status,
	}
}

func saveAll(t *testing.T, store datastore.Interface, dets ...*datastore.Detection) {
	t.Helper()
	for _, d := range dets {
		require.NoError(t, store.SaveDetection(d))
	}
}

func statusCounts(t *testing.T, store datastore.Interface, trackID uint) map[string]int {
	t.Helper()
	members, err := store.TrackMembers(trackID)
	require.NoError(t, err)
	counts := make(map[string]int)
	for _, m := range members {
		counts[m.Status]++
	}
	return counts
}

func soleTrack(t *testing.T, store datastore.Interface, camera string) datastore.CameraObjectTrack {
	t.Helper()
	tracks, err := store.TracksByCameraClass(camera, "car")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	return tracks[0]
}

func TestRunPropagatesApprovalWithAnnotations(t *testing.T) {
	store, builder, prop := newFixture(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	// One manual approval and four pending members on one track: after the
	// pass all five are approved and exactly four annotations exist.
	saveAll(t, store,
		det("cam-lot", datastore.StatusApproved, base),
		det("cam-lot", datastore.StatusPending, base.Add(1*time.Minute)),
		det("cam-lot", datastore.StatusPending, base.Add(2*time.Minute)),
		det("cam-lot", datastore.StatusPending, base.Add(3*time.Minute)),
		det("cam-lot", datastore.StatusPending, base.Add(4*time.Minute)),
	)
	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)

	summary, err := prop.Run()
	require.NoError(t, err)
	assert.Equal(t, 4, summary.AutoApproved)
	assert.Equal(t, 4, summary.Annotations)
	assert.Equal(t, 0, summary.AutoRejected)

	track := soleTrack(t, store, "cam-lot")
	counts := statusCounts(t, store, track.ID)
	assert.Equal(t, 1, counts[datastore.StatusApproved])
	assert.Equal(t, 4, counts[datastore.StatusAutoApproved])
	assert.Equal(t, 0, counts[datastore.StatusPending])

	total, err := store.AnnotationCount()
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)

	// No reviewer supplied a correction, so none may be manufactured from
	// the model labels.
	members, err := store.TrackMembers(track.ID)
	require.NoError(t, err)
	for _, m := range members {
		assert.Nil(t, m.CorrectedClass)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store, builder, prop := newFixture(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	saveAll(t, store,
		det("cam-lot", datastore.StatusApproved, base),
		det("cam-lot", datastore.StatusPending, base.Add(time.Minute)),
	)
	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)

	first, err := prop.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, first.AutoApproved)
	assert.Equal(t, 1, first.Annotations)

	second, err := prop.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, second.AutoApproved)
	assert.Equal(t, 0, second.Annotations)

	total, err := store.AnnotationCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestRunPropagatesRejection(t *testing.T) {
	store, builder, prop := newFixture(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	saveAll(t, store,
		det("cam-lot", datastore.StatusRejected, base),
		det("cam-lot", datastore.StatusPending, base.Add(time.Minute)),
		det("cam-lot", datastore.StatusPending, base.Add(2*time.Minute)),
	)
	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)

	summary, err := prop.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.AutoRejected)
	assert.Equal(t, 0, summary.Annotations)

	total, err := store.AnnotationCount()
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestRunSkipsConflictedTracks(t *testing.T) {
	store, builder, prop := newFixture(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	saveAll(t, store,
		det("cam-lot", datastore.StatusApproved, base),
		det("cam-lot", datastore.StatusRejected, base.Add(time.Minute)),
		det("cam-lot", datastore.StatusPending, base.Add(2*time.Minute)),
	)
	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)

	summary, err := prop.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ConflictTracks)
	assert.Equal(t, 0, summary.AutoApproved)
	assert.Equal(t, 0, summary.AutoRejected)

	track := soleTrack(t, store, "cam-lot")
	counts := statusCounts(t, store, track.ID)
	assert.Equal(t, 1, counts[datastore.StatusPending], "conflicted track members stay pending")

	conflicts, err := prop.ListConflicts()
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, track.ID, conflicts[0].ID)
}

func TestRunAppliesAnchorClassification(t *testing.T) {
	store, builder, prop := newFixture(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	truck := "truck"
	approved := det("cam-lot", datastore.StatusApproved, base)
	approved.CorrectedClass = &truck
	pending := det("cam-lot", datastore.StatusPending, base.Add(time.Minute))
	saveAll(t, store, approved, pending)

	// The corrected class moves the approval into the "truck" partition, so
	// force both onto one track for the classification propagation check.
	track := datastore.CameraObjectTrack{CameraID: "cam-lot", ClassLabel: "truck"}
	require.NoError(t, store.SaveTrack(&track))
	require.NoError(t, store.AssignTrack([]uint{approved.ID, pending.ID}, track.ID))
	require.NoError(t, builder.Recompute(track.ID))

	summary, err := prop.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AutoApproved)

	stored, err := store.GetDetection(pending.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CorrectedClass)
	assert.Equal(t, "truck", *stored.CorrectedClass)
	assert.Equal(t, "truck", stored.EffectiveClass())

	annotations, err := store.AnnotationCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, annotations)
}

func TestResolveApprovesConflictedTrack(t *testing.T) {
	store, builder, prop := newFixture(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	saveAll(t, store,
		det("cam-lot", datastore.StatusApproved, base),
		det("cam-lot", datastore.StatusRejected, base.Add(time.Minute)),
		det("cam-lot", datastore.StatusPending, base.Add(2*time.Minute)),
	)
	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)
	track := soleTrack(t, store, "cam-lot")
	require.Equal(t, datastore.AnchorConflict, track.AnchorStatus)

	summary, err := prop.Resolve(track.ID, Resolution{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AutoApproved)
	assert.Equal(t, 1, summary.Annotations)

	resolved, err := store.GetTrack(track.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.AnchorApproved, resolved.AnchorStatus)
	assert.False(t, resolved.ClassificationConflict)

	// The resolved track no longer blocks propagation.
	after, err := prop.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, after.ConflictTracks)
}

func TestResolveRejectsTrackWithoutConflict(t *testing.T) {
	store, builder, prop := newFixture(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	saveAll(t, store, det("cam-lot", datastore.StatusApproved, base))
	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)
	track := soleTrack(t, store, "cam-lot")

	_, err = prop.Resolve(track.ID, Resolution{Approve: false})
	require.Error(t, err)
}

func TestApplyDecisionRecordsManualReview(t *testing.T) {
	store, builder, prop := newFixture(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	d := det("cam-lot", datastore.StatusPending, base)
	saveAll(t, store, d)
	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)

	require.NoError(t, prop.ApplyDecision(d.ExternalID, Decision{Approve: true, CorrectedClass: "truck"}))

	stored, err := store.GetDetectionByExternalID(d.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusApproved, stored.Status)
	require.NotNil(t, stored.CorrectedClass)
	assert.Equal(t, "truck", *stored.CorrectedClass)

	require.NotNil(t, stored.TrackID)
	track, err := store.GetTrack(*stored.TrackID)
	require.NoError(t, err)
	assert.Equal(t, datastore.AnchorApproved, track.AnchorStatus)
	assert.Equal(t, "truck", track.AnchorClassification)

	total, err := store.AnnotationCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestApplyTrackDecisionPropagatesImmediately(t *testing.T) {
	store, builder, prop := newFixture(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	saveAll(t, store,
		det("cam-lot", datastore.StatusPending, base),
		det("cam-lot", datastore.StatusPending, base.Add(time.Minute)),
		det("cam-lot", datastore.StatusPending, base.Add(2*time.Minute)),
	)
	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)
	track := soleTrack(t, store, "cam-lot")

	summary, err := prop.ApplyTrackDecision(track.ID, Decision{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.AutoApproved)
	assert.Equal(t, 2, summary.Annotations)

	counts := statusCounts(t, store, track.ID)
	assert.Equal(t, 1, counts[datastore.StatusApproved])
	assert.Equal(t, 2, counts[datastore.StatusAutoApproved])

	// The manual approval earned its own annotation, so the track has three.
	total, err := store.AnnotationCount()
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	// Re-applying the same decision changes nothing.
	again, err := prop.ApplyTrackDecision(track.ID, Decision{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, 0, again.AutoApproved)
	assert.Equal(t, 0, again.Annotations)
}

func TestApplyDecisionRejectsUnknownDetection(t *testing.T) {
	_, _, prop := newFixture(t)
	err := prop.ApplyDecision("no-such-id", Decision{Approve: true})
	require.Error(t, err)
}
