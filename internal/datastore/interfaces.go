// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Interface abstracts the underlying database implementation and defines the
// operations the consolidation passes need.
type Interface interface {
	Open() error
	Close() error

	// Detections
	SaveDetection(d *Detection) error
	SaveDetections(batch []*Detection) error
	GetDetection(id uint) (Detection, error)
	GetDetectionByExternalID(externalID string) (Detection, error)

	// Pending-review grouping
	PendingUngrouped(cameraID string) ([]Detection, error)
	OpenGroups(cameraID string) ([]PredictionGroup, error)
	GroupMembers(groupID uint) ([]Detection, error)
	SaveGroup(g *PredictionGroup) error
	AssignGroup(detectionIDs []uint, groupID uint) error
	ClearGrouping(cameraID string) error

	// Cross-status tracks
	DetectionsForRebuild(cameraID string) ([]Detection, error)
	UnassignedDetections(cameraID string) ([]Detection, error)
	DeleteTracks(cameraID string) error
	SaveTrack(t *CameraObjectTrack) error
	GetTrack(id uint) (CameraObjectTrack, error)
	TracksByCameraClass(cameraID, classLabel string) ([]CameraObjectTrack, error)
	TracksWithAnchor(statuses ...string) ([]CameraObjectTrack, error)
	TrackMembers(trackID uint) ([]Detection, error)
	AssignTrack(detectionIDs []uint, trackID uint) error

	// Review decisions and propagation
	MarkPendingAs(detectionIDs []uint, status string) (int64, error)
	SetCorrectedClass(detectionIDs []uint, classLabel string) (int64, error)
	CreateAnnotation(a *Annotation) (bool, error)
	AnnotationCount() (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new store instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// SaveDetection stores a single detection.
func (ds *DataStore) SaveDetection(d *Detection) error {
	if err := ds.DB.Save(d).Error; err != nil {
		return fmt.Errorf("saving detection: %w", err)
	}
	return nil
}

// SaveDetections stores a batch of detections in one transaction.
func (ds *DataStore) SaveDetections(batch []*Detection) error {
	if len(batch) == 0 {
		return nil
	}
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		for _, d := range batch {
			if err := tx.Save(d).Error; err != nil {
				return fmt.Errorf("saving detection %s: %w", d.ExternalID, err)
			}
		}
		return nil
	})
}

// GetDetection retrieves a detection by its ID.
func (ds *DataStore) GetDetection(id uint) (Detection, error) {
	var d Detection
	if err := ds.DB.First(&d, id).Error; err != nil {
		return Detection{}, fmt.Errorf("getting detection %d: %w", id, err)
	}
	return d, nil
}

// GetDetectionByExternalID retrieves a detection by its supplier-assigned id.
func (ds *DataStore) GetDetectionByExternalID(externalID string) (Detection, error) {
	var d Detection
	if err := ds.DB.Where("external_id = ?", externalID).First(&d).Error; err != nil {
		return Detection{}, fmt.Errorf("getting detection %s: %w", externalID, err)
	}
	return d, nil
}

// PendingUngrouped returns pending detections with no group assignment,
// optionally restricted to one camera. Ordered by timestamp for deterministic
// clustering.
func (ds *DataStore) PendingUngrouped(cameraID string) ([]Detection, error) {
	var dets []Detection
	q := ds.DB.Where("status = ? AND group_id IS NULL", StatusPending)
	if cameraID != "" {
		q = q.Where("camera_id = ?", cameraID)
	}
	if err := q.Order("timestamp ASC, id ASC").Find(&dets).Error; err != nil {
		return nil, fmt.Errorf("querying pending ungrouped detections: %w", err)
	}
	return dets, nil
}

// OpenGroups returns the prediction groups in scope.
func (ds *DataStore) OpenGroups(cameraID string) ([]PredictionGroup, error) {
	var groups []PredictionGroup
	q := ds.DB
	if cameraID != "" {
		q = q.Where("camera_id = ?", cameraID)
	}
	if err := q.Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("querying open groups: %w", err)
	}
	return groups, nil
}

// GroupMembers returns the detections assigned to the given group.
func (ds *DataStore) GroupMembers(groupID uint) ([]Detection, error) {
	var dets []Detection
	if err := ds.DB.Where("group_id = ?", groupID).Order("timestamp ASC, id ASC").Find(&dets).Error; err != nil {
		return nil, fmt.Errorf("querying members of group %d: %w", groupID, err)
	}
	return dets, nil
}

// SaveGroup creates or updates a prediction group.
func (ds *DataStore) SaveGroup(g *PredictionGroup) error {
	if err := ds.DB.Save(g).Error; err != nil {
		return fmt.Errorf("saving group: %w", err)
	}
	return nil
}

// AssignGroup sets the group membership for the given detections.
func (ds *DataStore) AssignGroup(detectionIDs []uint, groupID uint) error {
	if len(detectionIDs) == 0 {
		return nil
	}
	err := ds.DB.Model(&Detection{}).
		Where("id IN ?", detectionIDs).
		Update("group_id", groupID).Error
	if err != nil {
		return fmt.Errorf("assigning %d detections to group %d: %w", len(detectionIDs), groupID, err)
	}
	return nil
}

// ClearGrouping discards all pending-group assignments in scope and deletes
// the groups, atomically. Used by the full regroup.
func (ds *DataStore) ClearGrouping(cameraID string) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		detQ := tx.Model(&Detection{}).Where("group_id IS NOT NULL")
		groupQ := tx.Where("1 = 1")
		if cameraID != "" {
			detQ = detQ.Where("camera_id = ?", cameraID)
			groupQ = tx.Where("camera_id = ?", cameraID)
		}
		if err := detQ.Update("group_id", nil).Error; err != nil {
			return fmt.Errorf("clearing group assignments: %w", err)
		}
		if err := groupQ.Delete(&PredictionGroup{}).Error; err != nil {
			return fmt.Errorf("deleting groups: %w", err)
		}
		return nil
	})
}

// DetectionsForRebuild returns every detection in scope regardless of status,
// in chronological order for track replay.
func (ds *DataStore) DetectionsForRebuild(cameraID string) ([]Detection, error) {
	var dets []Detection
	q := ds.DB
	if cameraID != "" {
		q = q.Where("camera_id = ?", cameraID)
	}
	if err := q.Order("timestamp ASC, id ASC").Find(&dets).Error; err != nil {
		return nil, fmt.Errorf("querying detections for rebuild: %w", err)
	}
	return dets, nil
}

// UnassignedDetections returns detections with no track membership, in
// chronological order. Input for incremental matching.
func (ds *DataStore) UnassignedDetections(cameraID string) ([]Detection, error) {
	var dets []Detection
	q := ds.DB.Where("track_id IS NULL")
	if cameraID != "" {
		q = q.Where("camera_id = ?", cameraID)
	}
	if err := q.Order("timestamp ASC, id ASC").Find(&dets).Error; err != nil {
		return nil, fmt.Errorf("querying unassigned detections: %w", err)
	}
	return dets, nil
}

// DeleteTracks removes tracks in scope and clears member references,
// atomically. Used by the full rebuild.
func (ds *DataStore) DeleteTracks(cameraID string) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		detQ := tx.Model(&Detection{}).Where("track_id IS NOT NULL")
		trackQ := tx.Where("1 = 1")
		if cameraID != "" {
			detQ = detQ.Where("camera_id = ?", cameraID)
			trackQ = tx.Where("camera_id = ?", cameraID)
		}
		if err := detQ.Update("track_id", nil).Error; err != nil {
			return fmt.Errorf("clearing track assignments: %w", err)
		}
		if err := trackQ.Delete(&CameraObjectTrack{}).Error; err != nil {
			return fmt.Errorf("deleting tracks: %w", err)
		}
		return nil
	})
}

// SaveTrack creates or updates a camera object track.
func (ds *DataStore) SaveTrack(t *CameraObjectTrack) error {
	if err := ds.DB.Save(t).Error; err != nil {
		return fmt.Errorf("saving track: %w", err)
	}
	return nil
}

// GetTrack retrieves a track by its ID.
func (ds *DataStore) GetTrack(id uint) (CameraObjectTrack, error) {
	var t CameraObjectTrack
	if err := ds.DB.First(&t, id).Error; err != nil {
		return CameraObjectTrack{}, fmt.Errorf("getting track %d: %w", id, err)
	}
	return t, nil
}

// TracksByCameraClass returns the tracks for one (camera, class) partition.
func (ds *DataStore) TracksByCameraClass(cameraID, classLabel string) ([]CameraObjectTrack, error) {
	var tracks []CameraObjectTrack
	err := ds.DB.Where("camera_id = ? AND class_label = ?", cameraID, classLabel).
		Order("last_seen ASC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("querying tracks for camera %s class %s: %w", cameraID, classLabel, err)
	}
	return tracks, nil
}

// TracksWithAnchor returns all tracks whose anchor status is one of the given
// values.
func (ds *DataStore) TracksWithAnchor(statuses ...string) ([]CameraObjectTrack, error) {
	var tracks []CameraObjectTrack
	if err := ds.DB.Where("anchor_status IN ?", statuses).Order("id ASC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("querying tracks by anchor status: %w", err)
	}
	return tracks, nil
}

// TrackMembers returns the detections assigned to the given track.
func (ds *DataStore) TrackMembers(trackID uint) ([]Detection, error) {
	var dets []Detection
	if err := ds.DB.Where("track_id = ?", trackID).Order("timestamp ASC, id ASC").Find(&dets).Error; err != nil {
		return nil, fmt.Errorf("querying members of track %d: %w", trackID, err)
	}
	return dets, nil
}

// AssignTrack sets the track membership for the given detections.
func (ds *DataStore) AssignTrack(detectionIDs []uint, trackID uint) error {
	if len(detectionIDs) == 0 {
		return nil
	}
	err := ds.DB.Model(&Detection{}).
		Where("id IN ?", detectionIDs).
		Update("track_id", trackID).Error
	if err != nil {
		return fmt.Errorf("assigning %d detections to track %d: %w", len(detectionIDs), trackID, err)
	}
	return nil
}

// MarkPendingAs transitions still-pending detections to the given status and
// reports how many rows changed. The status guard makes repeated propagation
// runs no-ops for already-decided detections.
func (ds *DataStore) MarkPendingAs(detectionIDs []uint, status string) (int64, error) {
	if len(detectionIDs) == 0 {
		return 0, nil
	}
	res := ds.DB.Model(&Detection{}).
		Where("id IN ? AND status = ?", detectionIDs, StatusPending).
		Update("status", status)
	if res.Error != nil {
		return 0, fmt.Errorf("marking detections %s: %w", status, res.Error)
	}
	return res.RowsAffected, nil
}

// SetCorrectedClass applies a classification to detections that lack one.
func (ds *DataStore) SetCorrectedClass(detectionIDs []uint, classLabel string) (int64, error) {
	if len(detectionIDs) == 0 {
		return 0, nil
	}
	res := ds.DB.Model(&Detection{}).
		Where("id IN ? AND corrected_class IS NULL", detectionIDs).
		Update("corrected_class", classLabel)
	if res.Error != nil {
		return 0, fmt.Errorf("setting corrected class: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CreateAnnotation inserts an annotation record unless one already exists for
// the detection. Returns true when a new record was created.
func (ds *DataStore) CreateAnnotation(a *Annotation) (bool, error) {
	res := ds.DB.Where("detection_id = ?", a.DetectionID).FirstOrCreate(a)
	if res.Error != nil {
		return false, fmt.Errorf("creating annotation for detection %d: %w", a.DetectionID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AnnotationCount returns the total number of annotation records.
func (ds *DataStore) AnnotationCount() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Annotation{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting annotations: %w", err)
	}
	return count, nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Detection{}, &PredictionGroup{}, &CameraObjectTrack{}, &Annotation{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
