package tracks

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Consolidation.Tracks = conf.TrackSettings{
		IoUThreshold:  0.3,
		Profiles:      map[string]string{"cam-road": "roadway", "cam-lot": "parking"},
		Windows:       map[string]int{"roadway": 120, "parking": 7200},
		DefaultWindow: 300,
		CacheTTL:      600,
	}
	return s
}

func det(camera, class string, x, y, w, h float64, status string, ts time.Time) *datastore.Detection {
	return &datastore.Detection{
		ExternalID: uuid.NewString(),
		CameraID:   camera,
		ClipID:     "clip-1",
		ClassLabel: class,
		X:          x, Y: y, Width: w, Height: h,
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

func TestRebuildJoinsOverlappingDetectionsAcrossStatuses(t *testing.T) {
	store := datastore.NewTestStore(t)
	builder := New(store, testSettings(), nil)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	// Three near-identical boxes with different review statuses must land in
	// one track; a distant box forms its own.
	saveAll(t, store,
		det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusApproved, base),
		det("cam-lot", "car", 102, 101, 80, 60, datastore.StatusPending, base.Add(30*time.Minute)),
		det("cam-lot", "car", 98, 99, 80, 60, datastore.StatusRejected, base.Add(time.Hour)),
		det("cam-lot", "car", 900, 700, 80, 60, datastore.StatusPending, base.Add(time.Minute)),
	)

	summary, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 4, summary.Assigned)

	tracks, err := store.TracksByCameraClass("cam-lot", "car")
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	var big datastore.CameraObjectTrack
	for _, tr := range tracks {
		if tr.MemberCount == 3 {
			big = tr
		}
	}
	require.Equal(t, 3, big.MemberCount)
	assert.Equal(t, 1, big.ApprovedCount)
	assert.Equal(t, 1, big.RejectedCount)
	assert.Equal(t, 1, big.PendingCount)
	assert.Equal(t, datastore.AnchorConflict, big.AnchorStatus)
}

func TestRebuildSeparatesByAdjacencyWindow(t *testing.T) {
	store := datastore.NewTestStore(t)
	builder := New(store, testSettings(), nil)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	// Same spot on a roadway camera: the 120s window splits sightings three
	// minutes apart into separate tracks.
	saveAll(t, store,
		det("cam-road", "car", 100, 100, 80, 60, datastore.StatusPending, base),
		det("cam-road", "car", 100, 100, 80, 60, datastore.StatusPending, base.Add(3*time.Minute)),
	)

	summary, err := builder.Rebuild("cam-road")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)

	// The same spacing on a parking camera stays one track.
	saveAll(t, store,
		det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusPending, base),
		det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusPending, base.Add(3*time.Minute)),
	)
	summary, err = builder.Rebuild("cam-lot")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
}

func TestRebuildPartitionsByEffectiveClass(t *testing.T) {
	store := datastore.NewTestStore(t)
	builder := New(store, testSettings(), nil)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	corrected := "truck"
	a := det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusApproved, base)
	a.CorrectedClass = &corrected
	b := det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusPending, base.Add(time.Minute))
	saveAll(t, store, a, b)

	summary, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created, "corrected class moves the detection to its own partition")
}

func TestRebuildIsIdempotent(t *testing.T) {
	store := datastore.NewTestStore(t)
	builder := New(store, testSettings(), nil)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	saveAll(t, store,
		det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusApproved, base),
		det("cam-lot", "car", 102, 100, 80, 60, datastore.StatusPending, base.Add(time.Minute)),
	)

	first, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)
	second, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	tracks, err := store.TracksByCameraClass("cam-lot", "car")
	require.NoError(t, err)
	assert.Len(t, tracks, 1)
}

func TestRebuildNeverChangesReviewStatus(t *testing.T) {
	store := datastore.NewTestStore(t)
	builder := New(store, testSettings(), nil)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	d := det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusAutoApproved, base)
	saveAll(t, store, d)

	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)

	stored, err := store.GetDetection(d.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusAutoApproved, stored.Status)
}

func TestMatchFoldsIntoExistingTrack(t *testing.T) {
	store := datastore.NewTestStore(t)
	builder := New(store, testSettings(), nil)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	seed := det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusApproved, base)
	saveAll(t, store, seed)
	_, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)

	late := det("cam-lot", "car", 103, 100, 80, 60, datastore.StatusPending, base.Add(5*time.Minute))
	saveAll(t, store, late)

	summary, err := builder.Match("cam-lot")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.Assigned)

	tracks, err := store.TracksByCameraClass("cam-lot", "car")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, 2, tracks[0].MemberCount)
	assert.Equal(t, datastore.AnchorApproved, tracks[0].AnchorStatus)
}

func TestMatchLeavesUnmatchedForNextRebuild(t *testing.T) {
	store := datastore.NewTestStore(t)
	builder := New(store, testSettings(), nil)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	d := det("cam-lot", "deer", 400, 400, 60, 60, datastore.StatusPending, base)
	saveAll(t, store, d)

	summary, err := builder.Match("cam-lot")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created, "matching never creates tracks")
	assert.Equal(t, 0, summary.Assigned)
	assert.Equal(t, 1, summary.Skipped)

	stored, err := store.GetDetection(d.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.TrackID, "detection stays unassigned until a rebuild")

	// The next full rebuild picks it up with chronological context.
	rebuilt, err := builder.Rebuild("cam-lot")
	require.NoError(t, err)
	assert.Equal(t, 1, rebuilt.Created)
	assert.Equal(t, 1, rebuilt.Assigned)
}

func TestAnchorStatusFromManualDecisionsOnly(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all pending", []string{datastore.StatusPending, datastore.StatusPending}, datastore.AnchorPending},
		{"one approval", []string{datastore.StatusApproved, datastore.StatusPending}, datastore.AnchorApproved},
		{"one rejection", []string{datastore.StatusRejected, datastore.StatusPending}, datastore.AnchorRejected},
		{"disagreement", []string{datastore.StatusApproved, datastore.StatusRejected}, datastore.AnchorConflict},
		{"auto statuses ignored", []string{datastore.StatusAutoApproved, datastore.StatusAutoRejected}, datastore.AnchorPending},
	}
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var members []datastore.Detection
			for i, status := range tc.statuses {
				d := det("cam-lot", "car", 100, 100, 80, 60, status, base.Add(time.Duration(i)*time.Minute))
				d.ID = uint(i + 1)
				members = append(members, *d)
			}
			var track datastore.CameraObjectTrack
			computeTrackStats(&track, members)
			assert.Equal(t, tc.want, track.AnchorStatus)
		})
	}
}

func TestAnchorClassificationFromManualCorrectionsOnly(t *testing.T) {
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	truck := "truck"
	van := "van"

	a := det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusApproved, base)
	b := det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusApproved, base.Add(time.Minute))
	c := det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusApproved, base.Add(2*time.Minute))
	c.CorrectedClass = &truck

	// One genuine correction among uncorrected approvals wins; the model
	// labels it fixes do not outvote it.
	var track datastore.CameraObjectTrack
	computeTrackStats(&track, []datastore.Detection{*a, *b, *c})
	assert.Equal(t, "truck", track.AnchorClassification)
	assert.False(t, track.ClassificationConflict)

	// No corrections at all: no anchor classification is manufactured.
	track = datastore.CameraObjectTrack{}
	computeTrackStats(&track, []datastore.Detection{*a, *b})
	assert.Empty(t, track.AnchorClassification)
	assert.False(t, track.ClassificationConflict)

	// Correcting reviewers disagreeing is a conflict; the plurality class
	// with lexicographic tie-break is still recorded.
	d := det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusApproved, base.Add(3*time.Minute))
	d.CorrectedClass = &van
	track = datastore.CameraObjectTrack{}
	computeTrackStats(&track, []datastore.Detection{*c, *d})
	assert.Equal(t, "truck", track.AnchorClassification)
	assert.True(t, track.ClassificationConflict)
}

func TestComputeTrackStatsAggregates(t *testing.T) {
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	a := det("cam-lot", "car", 100, 100, 80, 60, datastore.StatusPending, base)
	a.ID = 1
	a.Confidence = 0.6
	b := det("cam-lot", "car", 120, 100, 80, 60, datastore.StatusPending, base.Add(time.Minute))
	b.ID = 2
	b.Confidence = 0.9

	var track datastore.CameraObjectTrack
	computeTrackStats(&track, []datastore.Detection{*a, *b})

	assert.Equal(t, 2, track.MemberCount)
	assert.InDelta(t, 110, track.AvgX, 1e-9)
	assert.InDelta(t, 0.6, track.MinConfidence, 1e-9)
	assert.InDelta(t, 0.9, track.MaxConfidence, 1e-9)
	assert.Equal(t, uint(2), track.RepresentativeID)
	assert.Equal(t, base, track.FirstSeen)
	assert.Equal(t, base.Add(time.Minute), track.LastSeen)
}
