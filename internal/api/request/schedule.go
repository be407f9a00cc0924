package request

type CreateSchedule struct {
	Name            string `json:"name" validate:"required,backup_name"`
	Enabled         bool   `json:"enabled"`
	CronExpression  string `json:"cron_expression" validate:"required"`
	IncludeDatabase bool   `json:"include_database"`
	IncludeStorage  bool   `json:"include_storage"`
	IncludeConfig   bool   `json:"include_config"`
	RetentionDays   int    `json:"retention_days" validate:"min=0"`
	CreatedBy       string `json:"created_by"`
}

type UpdateSchedule struct {
	Enabled         bool   `json:"enabled"`
	CronExpression  string `json:"cron_expression" validate:"required"`
	IncludeDatabase bool   `json:"include_database"`
	IncludeStorage  bool   `json:"include_storage"`
	IncludeConfig   bool   `json:"include_config"`
	RetentionDays   int    `json:"retention_days" validate:"min=0"`
}
