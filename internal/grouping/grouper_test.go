package grouping

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
	s.Consolidation.Grouping = conf.GroupingSettings{
		IoUThreshold:   0.3,
		CentroidFactor: 0.5,
	}
	return s
}

func det(camera, class string, x, y, w, h float64, conf float64, ts time.Time) datastore.Detection {
	return datastore.Detection{
		ExternalID: uuid.NewString(),
		CameraID:   camera,
		ClipID:     "clip-1",
		ClassLabel: class,
		X:          x, Y: y, Width: w, Height: h,
		Confidence: conf,
		Timestamp:  ts,
		Status:     datastore.StatusPending,
	}
}

func TestCluster_OverlappingPairShareGroup(t *testing.T) {
	g := New(nil, testSettings(), nil)
	now := time.Now()

	dets := []datastore.Detection{
		det("cam-1", "car", 100, 100, 100, 100, 0.9, now),
		det("cam-1", "car", 120, 110, 100, 100, 0.8, now), // IoU well above 0.3
		det("cam-1", "car", 900, 900, 50, 50, 0.7, now),   // far away
	}

	components := g.cluster(dets)
	require.Len(t, components, 2)
	assert.ElementsMatch(t, []int{0, 1}, components[0])
	assert.Equal(t, []int{2}, components[1])
}

func TestCluster_CentroidFallbackAtZeroIoU(t *testing.T) {
	g := New(nil, testSettings(), nil)
	now := time.Now()

	// Tall narrow boxes with no overlap: centroids 34px apart against a 70px
	// average dimension, so the moving-object fallback must merge them.
	dets := []datastore.Detection{
		det("cam-1", "person", 100, 100, 30, 110, 0.9, now),
		det("cam-1", "person", 134, 100, 30, 110, 0.8, now.Add(time.Second)),
	}
	assert.Len(t, g.cluster(dets), 1)

	// Centroids farther than half the average dimension stay apart.
	dets[1].X = 180
	assert.Len(t, g.cluster(dets), 2)
}

func TestCluster_TransitiveChain(t *testing.T) {
	g := New(nil, testSettings(), nil)
	now := time.Now()

	// A overlaps B, B overlaps C, A and C do not overlap. Union-find must put
	// all three in one group.
	dets := []datastore.Detection{
		det("cam-1", "car", 0, 0, 100, 100, 0.9, now),
		det("cam-1", "car", 60, 0, 100, 100, 0.8, now),
		det("cam-1", "car", 120, 0, 100, 100, 0.7, now),
	}
	assert.Len(t, g.cluster(dets), 1)
}

func TestRun_CreatesGroupsPerPartition(t *testing.T) {
	store := datastore.NewTestStore(t)
	now := time.Now().UTC()

	dets := []datastore.Detection{
		det("cam-1", "car", 100, 100, 100, 100, 0.9, now),
		det("cam-1", "car", 120, 110, 100, 100, 0.95, now),
		det("cam-1", "person", 100, 100, 40, 80, 0.7, now), // same spot, different class
	}
	ptrs := make([]*datastore.Detection, len(dets))
	for i := range dets {
		ptrs[i] = &dets[i]
	}
	require.NoError(t, store.SaveDetections(ptrs))

	g := New(store, testSettings(), nil)
	summary, err := g.Run("cam-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)

	groups, err := store.OpenGroups("cam-1")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	for _, grp := range groups {
		if grp.ClassLabel == "car" {
			assert.Equal(t, 2, grp.MemberCount)
			// Representative is the max-confidence member.
			assert.Equal(t, dets[1].ID, grp.RepresentativeID)
			assert.InDelta(t, 0.9, grp.MinConfidence, 1e-9)
			assert.InDelta(t, 0.95, grp.MaxConfidence, 1e-9)
		} else {
			assert.Equal(t, 1, grp.MemberCount)
		}
	}
}

func TestRun_IncrementalFoldsIntoOpenGroup(t *testing.T) {
	store := datastore.NewTestStore(t)
	now := time.Now().UTC()
	g := New(store, testSettings(), nil)

	first := det("cam-1", "car", 100, 100, 100, 100, 0.9, now)
	require.NoError(t, store.SaveDetection(&first))
	summary, err := g.Run("cam-1")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Created)

	// A later arrival overlapping the group's aggregate box extends the group
	// instead of opening a new one.
	second := det("cam-1", "car", 110, 105, 100, 100, 0.95, now.Add(time.Minute))
	require.NoError(t, store.SaveDetection(&second))
	summary, err = g.Run("cam-1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.Updated)

	groups, err := store.OpenGroups("cam-1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].MemberCount)
	assert.Equal(t, second.ID, groups[0].RepresentativeID)
}

func TestRegroup_Idempotent(t *testing.T) {
	store := datastore.NewTestStore(t)
	now := time.Now().UTC()
	g := New(store, testSettings(), nil)

	dets := []datastore.Detection{
		det("cam-1", "car", 100, 100, 100, 100, 0.9, now),
		det("cam-1", "car", 120, 110, 100, 100, 0.8, now),
		det("cam-1", "car", 900, 900, 50, 50, 0.7, now),
	}
	ptrs := make([]*datastore.Detection, len(dets))
	for i := range dets {
		ptrs[i] = &dets[i]
	}
	require.NoError(t, store.SaveDetections(ptrs))

	firstPass, err := g.Regroup("cam-1")
	require.NoError(t, err)
	require.Equal(t, 2, firstPass.Created)

	groupsBefore, err := store.OpenGroups("cam-1")
	require.NoError(t, err)

	secondPass, err := g.Regroup("cam-1")
	require.NoError(t, err)
	assert.Equal(t, firstPass.Created, secondPass.Created)

	groupsAfter, err := store.OpenGroups("cam-1")
	require.NoError(t, err)
	require.Len(t, groupsAfter, len(groupsBefore))
	for i := range groupsAfter {
		assert.Equal(t, groupsBefore[i].MemberCount, groupsAfter[i].MemberCount)
		assert.InDelta(t, groupsBefore[i].CenterX, groupsAfter[i].CenterX, 1e-9)
		assert.InDelta(t, groupsBefore[i].CenterY, groupsAfter[i].CenterY, 1e-9)
	}
}

func TestRun_SkipsMalformedDetections(t *testing.T) {
	store := datastore.NewTestStore(t)
	now := time.Now().UTC()
	g := New(store, testSettings(), nil)

	bad := det("cam-1", "car", 100, 100, 0, 100, 0.9, now) // zero-area box
	good := det("cam-1", "car", 100, 100, 100, 100, 0.9, now)
	require.NoError(t, store.SaveDetections([]*datastore.Detection{&bad, &good}))

	summary, err := g.Run("cam-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Skipped)
}
