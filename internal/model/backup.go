package model

import "time"

// Backup is one row in the backup registry. Name doubles as the primary key
// and the on-disk directory name of the bundle.
type Backup struct {
	Name         string     `json:"name"`
	Origin       string     `json:"origin"`
	Status       string     `json:"status"`
	Path         string     `json:"path,omitempty"`
	SizeBytes    int64      `json:"size_bytes"`
	Includes     Includes   `json:"includes"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Includes records which components a backup covers.
type Includes struct {
	Database bool `json:"database"`
	Storage  bool `json:"storage"`
	Config   bool `json:"config"`
}

// Any reports whether at least one component is selected.
func (i Includes) Any() bool {
	return i.Database || i.Storage || i.Config
}

const (
	BackupStatusPending   = "pending"
	BackupStatusRunning   = "running"
	BackupStatusCompleted = "completed"
	BackupStatusFailed    = "failed"
)

const (
	OriginManual     = "manual"
	OriginScheduled  = "scheduled"
	OriginPreRestore = "pre_restore"
)

// Restorable reports whether the backup can be used as a restore target.
// Only completed backups with an archive on record qualify.
func (b *Backup) Restorable() bool {
	return b.Status == BackupStatusCompleted && b.Path != ""
}
