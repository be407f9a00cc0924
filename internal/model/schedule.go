package model

import "time"

// BackupSchedule describes a recurring backup. Name is the primary key;
// scheduled backups derive their own names from the trigger time, not from
// the schedule.
type BackupSchedule struct {
	Name           string     `json:"name"`
	Enabled        bool       `json:"enabled"`
	CronExpression string     `json:"cron_expression"`
	Includes       Includes   `json:"includes"`
	RetentionDays  int        `json:"retention_days"`
	CreatedBy      string     `json:"created_by,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
