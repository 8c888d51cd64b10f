// Package grouping clusters new, undecided detections into prediction groups
// for batch review. Detections are partitioned by (camera, class) and joined
// via union-find when their boxes overlap, with a centroid-distance fallback
// for moving objects whose boxes no longer intersect between captures.
package grouping

import (
	"log/slog"
	"time"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/errors"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/geometry"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/logging"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability/metrics"
)

// Summary reports the structured outcome of a grouping pass.
type Summary struct {
	Created int // groups created
	Updated int // existing groups extended
	Skipped int // detections excluded as malformed or already grouped
	Failed  int // persistence failures, logged and skipped
}

// Grouper clusters pending detections into prediction groups.
type Grouper struct {
	store    datastore.Interface
	settings conf.GroupingSettings
	logger   *slog.Logger
	metrics  *metrics.ConsolidationMetrics
}

// New creates a Grouper. metrics may be nil.
func New(store datastore.Interface, settings *conf.Settings, m *metrics.ConsolidationMetrics) *Grouper {
	logger := logging.ForService("grouping")
	if logger == nil {
		logger = slog.Default().With("service", "grouping")
	}
	return &Grouper{
		store:    store,
		settings: settings.Consolidation.Grouping,
		logger:   logger,
		metrics:  m,
	}
}

// partitionKey identifies one (camera, class) clustering scope.
type partitionKey struct {
	camera string
	class  string
}

// Run folds new pending detections into already-open groups, then clusters
// the remainder via union-find. Restricting to one camera is optional; an
// empty cameraID means all cameras.
func (g *Grouper) Run(cameraID string) (Summary, error) {
	start := time.Now()
	summary, err := g.run(cameraID, false)
	g.observe("group", start, err)
	return summary, err
}

// Regroup discards all pending-group assignments in scope and rebuilds from
// scratch. Atomic from the caller's perspective: the clear happens in one
// transaction before the rebuild.
func (g *Grouper) Regroup(cameraID string) (Summary, error) {
	start := time.Now()
	summary, err := g.run(cameraID, true)
	g.observe("regroup", start, err)
	return summary, err
}

func (g *Grouper) observe(pass string, start time.Time, err error) {
	if g.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordPass(pass, status)
	g.metrics.RecordPassDuration(pass, time.Since(start).Seconds())
}

func (g *Grouper) run(cameraID string, regroup bool) (Summary, error) {
	var summary Summary

	if regroup {
		if err := g.store.ClearGrouping(cameraID); err != nil {
			return summary, errors.New(err).
				Component("grouping").
				Category(errors.CategoryDatabase).
				Context("camera_id", cameraID).
				Build()
		}
	}

	dets, err := g.store.PendingUngrouped(cameraID)
	if err != nil {
		return summary, errors.New(err).
			Component("grouping").
			Category(errors.CategoryDatabase).
			Context("camera_id", cameraID).
			Build()
	}

	// Malformed input is excluded silently, never fatal.
	valid := make([]datastore.Detection, 0, len(dets))
	for i := range dets {
		if dets[i].CameraID == "" || !detectionBox(&dets[i]).Valid() {
			summary.Skipped++
			continue
		}
		valid = append(valid, dets[i])
	}

	if g.metrics != nil {
		g.metrics.RecordDetectionsProcessed("group", len(valid))
	}

	groups, err := g.store.OpenGroups(cameraID)
	if err != nil {
		return summary, errors.New(err).
			Component("grouping").
			Category(errors.CategoryDatabase).
			Build()
	}

	// Fold new detections into already-open groups before creating new ones.
	remainder := g.extendOpenGroups(groups, valid, &summary)

	// Fresh union-find pass over whatever did not match an open group.
	g.clusterRemainder(remainder, &summary)

	g.logger.Info("grouping pass finished",
		"camera_id", cameraID,
		"regroup", regroup,
		"created", summary.Created,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"failed", summary.Failed)

	return summary, nil
}

// extendOpenGroups matches detections against open groups' aggregate boxes and
// returns the detections that matched nothing.
func (g *Grouper) extendOpenGroups(groups []datastore.PredictionGroup, dets []datastore.Detection, summary *Summary) []datastore.Detection {
	if len(groups) == 0 {
		return dets
	}

	byPartition := make(map[partitionKey][]*datastore.PredictionGroup)
	for i := range groups {
		key := partitionKey{camera: groups[i].CameraID, class: groups[i].ClassLabel}
		byPartition[key] = append(byPartition[key], &groups[i])
	}

	newMembers := make(map[uint][]uint) // group id -> new detection ids
	dirty := make(map[uint]*datastore.PredictionGroup)
	remainder := make([]datastore.Detection, 0, len(dets))

	for i := range dets {
		det := &dets[i]
		key := partitionKey{camera: det.CameraID, class: det.ClassLabel}
		var matched *datastore.PredictionGroup
		bestIoU := g.settings.IoUThreshold
		for _, grp := range byPartition[key] {
			if v := geometry.IoU(groupBox(grp), detectionBox(det)); v >= bestIoU {
				bestIoU = v
				matched = grp
			}
		}
		if matched == nil {
			remainder = append(remainder, *det)
			continue
		}
		newMembers[matched.ID] = append(newMembers[matched.ID], det.ID)
		dirty[matched.ID] = matched
	}

	for groupID, ids := range newMembers {
		if err := g.store.AssignGroup(ids, groupID); err != nil {
			g.logger.Error("failed to extend group",
				"group_id", groupID, "detections", len(ids), "error", err)
			summary.Failed += len(ids)
			delete(dirty, groupID)
			continue
		}
	}

	// A matched detection triggers recomputation of that group's aggregates.
	for groupID, grp := range dirty {
		members, err := g.store.GroupMembers(groupID)
		if err != nil {
			g.logger.Error("failed to load group members", "group_id", groupID, "error", err)
			summary.Failed++
			continue
		}
		computeAggregates(grp, members)
		if err := g.store.SaveGroup(grp); err != nil {
			g.logger.Error("failed to save group aggregates", "group_id", groupID, "error", err)
			summary.Failed++
			continue
		}
		summary.Updated++
	}

	return remainder
}

// clusterRemainder runs union-find over each (camera, class) partition and
// persists one group per resulting component.
func (g *Grouper) clusterRemainder(dets []datastore.Detection, summary *Summary) {
	partitions := make(map[partitionKey][]datastore.Detection)
	order := make([]partitionKey, 0)
	for i := range dets {
		key := partitionKey{camera: dets[i].CameraID, class: dets[i].ClassLabel}
		if _, seen := partitions[key]; !seen {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], dets[i])
	}

	for _, key := range order {
		members := partitions[key]
		for _, component := range g.cluster(members) {
			group := &datastore.PredictionGroup{
				CameraID:   key.camera,
				ClassLabel: key.class,
			}
			clusterDets := make([]datastore.Detection, len(component))
			ids := make([]uint, len(component))
			for i, idx := range component {
				clusterDets[i] = members[idx]
				ids[i] = members[idx].ID
			}
			computeAggregates(group, clusterDets)

			// Persistence failure is logged with enough context to retry and
			// does not block sibling groups.
			if err := g.store.SaveGroup(group); err != nil {
				g.logger.Error("failed to create group",
					"camera_id", key.camera, "class", key.class,
					"members", len(ids), "error", err)
				summary.Failed += len(ids)
				continue
			}
			if err := g.store.AssignGroup(ids, group.ID); err != nil {
				g.logger.Error("failed to assign group members",
					"group_id", group.ID, "members", len(ids), "error", err)
				summary.Failed += len(ids)
				continue
			}
			summary.Created++
			if g.metrics != nil {
				g.metrics.RecordGroupCreated()
			}
		}
	}
}

// cluster partitions same-scope detections with union-find. Two detections
// join when their IoU clears the threshold, or when their centroids are closer
// than the configured fraction of their average box dimension. The fallback
// can chain-merge a line of evenly-spaced same-class objects; that is accepted
// over-merge behavior.
func (g *Grouper) cluster(dets []datastore.Detection) [][]int {
	u := newUnionFind(len(dets))
	for i := 0; i < len(dets); i++ {
		boxI := detectionBox(&dets[i])
		for j := i + 1; j < len(dets); j++ {
			boxJ := detectionBox(&dets[j])
			if geometry.IoU(boxI, boxJ) >= g.settings.IoUThreshold {
				u.union(i, j)
				continue
			}
			maxDist := g.settings.CentroidFactor * geometry.AvgDimension(boxI, boxJ)
			if geometry.CentroidDistance(boxI, boxJ) < maxDist {
				u.union(i, j)
			}
		}
	}
	return u.components()
}

func detectionBox(d *datastore.Detection) geometry.Box {
	return geometry.Box{X: d.X, Y: d.Y, W: d.Width, H: d.Height}
}

func groupBox(g *datastore.PredictionGroup) geometry.Box {
	return geometry.Box{
		X: g.CenterX - g.AvgWidth/2,
		Y: g.CenterY - g.AvgHeight/2,
		W: g.AvgWidth,
		H: g.AvgHeight,
	}
}

// computeAggregates recomputes every derived group attribute from the member
// set. Aggregates are never patched incrementally.
func computeAggregates(group *datastore.PredictionGroup, members []datastore.Detection) {
	if len(members) == 0 {
		group.MemberCount = 0
		return
	}

	var sumCX, sumCY, sumW, sumH, sumConf float64
	group.MinConfidence = members[0].Confidence
	group.MaxConfidence = members[0].Confidence
	group.FirstSeen = members[0].Timestamp
	group.LastSeen = members[0].Timestamp
	group.RepresentativeID = members[0].ID
	bestConf := members[0].Confidence

	for i := range members {
		m := &members[i]
		cx, cy := detectionBox(m).Center()
		sumCX += cx
		sumCY += cy
		sumW += m.Width
		sumH += m.Height
		sumConf += m.Confidence

		if m.Confidence < group.MinConfidence {
			group.MinConfidence = m.Confidence
		}
		if m.Confidence > group.MaxConfidence {
			group.MaxConfidence = m.Confidence
		}
		if m.Confidence > bestConf {
			bestConf = m.Confidence
			group.RepresentativeID = m.ID
		}
		if m.Timestamp.Before(group.FirstSeen) {
			group.FirstSeen = m.Timestamp
		}
		if m.Timestamp.After(group.LastSeen) {
			group.LastSeen = m.Timestamp
		}
	}

	n := float64(len(members))
	group.CenterX = sumCX / n
	group.CenterY = sumCY / n
	group.AvgWidth = sumW / n
	group.AvgHeight = sumH / n
	group.AvgConfidence = sumConf / n
	group.MemberCount = len(members)
}
