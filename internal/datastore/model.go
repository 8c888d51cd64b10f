// model.go this code defines the data model for the application
package datastore

import (
	"time"
)

// Review status values for a Detection. Manual decisions are "approved" and
// "rejected"; propagated decisions carry the auto_ prefix and never count
// toward track consensus.
const (
	StatusPending      = "pending"
	StatusApproved     = "approved"
	StatusRejected     = "rejected"
	StatusAutoApproved = "auto_approved"
	StatusAutoRejected = "auto_rejected"
)

// Anchor status values derived for a CameraObjectTrack from its members'
// manual decisions.
const (
	AnchorPending  = "pending"
	AnchorApproved = "approved"
	AnchorRejected = "rejected"
	AnchorConflict = "conflict"
)

// IsDecided reports whether a review status represents a decision, manual or
// propagated.
func IsDecided(status string) bool {
	return status != StatusPending && status != ""
}

// IsManual reports whether a review status was set by a human reviewer.
func IsManual(status string) bool {
	return status == StatusApproved || status == StatusRejected
}

// Detection represents a single candidate observation emitted by a detection
// model. It is mutated by review and propagation, never silently deleted.
type Detection struct {
	ID         uint   `gorm:"primaryKey"`
	ExternalID string `gorm:"uniqueIndex;size:64"` // supplier-assigned id, uuid
	CameraID   string `gorm:"index:idx_detections_camera_class;size:64"`
	ClipID     string `gorm:"index;size:64"`
	ClassLabel string `gorm:"index:idx_detections_camera_class;size:64"`

	X      float64
	Y      float64
	Width  float64
	Height float64

	Confidence float64
	Timestamp  time.Time `gorm:"index"`

	Status string `gorm:"index;size:20;default:pending"`

	// Optional human corrections. A nil pointer means no correction.
	CorrectedClass  *string `gorm:"size:64"`
	CorrectedX      *float64
	CorrectedY      *float64
	CorrectedWidth  *float64
	CorrectedHeight *float64

	GroupID *uint `gorm:"index"` // pending-review group membership
	TrackID *uint `gorm:"index"` // durable camera object track membership

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveClass returns the corrected class when a reviewer supplied one,
// otherwise the model's class label.
func (d *Detection) EffectiveClass() string {
	if d.CorrectedClass != nil && *d.CorrectedClass != "" {
		return *d.CorrectedClass
	}
	return d.ClassLabel
}

// PredictionGroup is a spatial cluster of pending detections sharing a
// camera+class context, assembled for batch review. Aggregates are derived
// cache state, fully recomputable from member detections.
type PredictionGroup struct {
	ID         uint   `gorm:"primaryKey"`
	CameraID   string `gorm:"index:idx_groups_camera_class;size:64"`
	ClassLabel string `gorm:"index:idx_groups_camera_class;size:64"`

	RepresentativeID uint // member with max confidence

	CenterX   float64
	CenterY   float64
	AvgWidth  float64
	AvgHeight float64

	MinConfidence float64
	MaxConfidence float64
	AvgConfidence float64

	FirstSeen time.Time
	LastSeen  time.Time

	MemberCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CameraObjectTrack is a durable, status-agnostic cluster of detections
// believed to be one physical object seen over time on one camera.
type CameraObjectTrack struct {
	ID         uint   `gorm:"primaryKey"`
	CameraID   string `gorm:"index:idx_tracks_camera_class;size:64"`
	ClassLabel string `gorm:"index:idx_tracks_camera_class;size:64"`

	// Running-average box used for matching; derived, regenerable.
	AvgX      float64
	AvgY      float64
	AvgWidth  float64
	AvgHeight float64

	MemberCount       int
	ApprovedCount     int
	RejectedCount     int
	PendingCount      int
	AutoApprovedCount int
	AutoRejectedCount int

	// AnchorStatus is computed only from manual approvals/rejections.
	AnchorStatus string `gorm:"index;size:20;default:pending"`

	// AnchorClassification carries the plurality corrected tag; the conflict
	// flag records that reviewers disagreed.
	AnchorClassification   string `gorm:"size:64"`
	ClassificationConflict bool

	RepresentativeID uint

	MinConfidence float64
	MaxConfidence float64

	FirstSeen time.Time
	LastSeen  time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Annotation is the downstream accepted-annotation record created for each
// approved detection. The unique index on DetectionID makes creation
// at-most-once under repeated propagation runs.
type Annotation struct {
	ID          uint   `gorm:"primaryKey"`
	DetectionID uint   `gorm:"uniqueIndex"`
	CameraID    string `gorm:"index;size:64"`
	ClassLabel  string `gorm:"size:64"`

	X      float64
	Y      float64
	Width  float64
	Height float64

	Confidence float64
	Source     string `gorm:"size:20"` // "manual" or "propagated"

	CreatedAt time.Time
}
