package request

type CreateBackup struct {
	// Name is optional; omitted names are derived from the trigger time.
	Name            string `json:"name" validate:"omitempty,backup_name"`
	IncludeDatabase bool   `json:"include_database"`
	IncludeStorage  bool   `json:"include_storage"`
	IncludeConfig   bool   `json:"include_config"`
}

type RestoreBackup struct {
	RestoreDatabase     bool   `json:"restore_database"`
	RestoreAuthDatabase bool   `json:"restore_auth_database"`
	RestoreStorage      bool   `json:"restore_storage"`
	RestoreConfig       bool   `json:"restore_config"`
	SkipPreBackup       bool   `json:"skip_pre_backup"`
	InitiatedBy         string `json:"initiated_by" validate:"required"`
}

type Cleanup struct {
	RetentionDays int `json:"retention_days" validate:"required,min=1"`
}
