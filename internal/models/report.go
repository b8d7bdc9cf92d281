package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ReportStatus describes the lifecycle of a generated report
type ReportStatus string

const (
	StatusCompleted ReportStatus = "completed"
	StatusFailed    ReportStatus = "failed"
)

// GeneratedReport is a record of a spreadsheet produced from Grafana panels
type GeneratedReport struct {
	ID             uint           `json:"id" gorm:"primarykey"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
	Title          string         `json:"title" gorm:"size:255;not null"`
	CompanyName    string         `json:"company_name,omitempty" gorm:"size:255"`
	Status         ReportStatus   `json:"status" gorm:"size:50;not null;default:'completed'"`
	Filename       string         `json:"filename" gorm:"size:255"`
	FileKey        string         `json:"file_key,omitempty" gorm:"size:512"`
	TimeFrom       string         `json:"time_from" gorm:"size:64"`
	TimeTo         string         `json:"time_to" gorm:"size:64"`
	DashboardCount int            `json:"dashboard_count"`
	PanelCount     int            `json:"panel_count"`
	FailedPanels   int            `json:"failed_panels"`
	Parameters     JSON           `json:"parameters,omitempty" gorm:"type:jsonb"`
}

// JSON is a custom type for handling JSONB data
type JSON map[string]interface{}

// Value implements the driver.Valuer interface for JSON
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSON
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON", value)
	}

	return json.Unmarshal(bytes, j)
}

// TableName specifies the table name for the GeneratedReport model
func (GeneratedReport) TableName() string {
	return "generated_reports"
}

// IsCompleted returns true if the file was rendered and stored
func (r *GeneratedReport) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// HasFile reports whether the stored spreadsheet can be fetched
func (r *GeneratedReport) HasFile() bool {
	return r.FileKey != ""
}
