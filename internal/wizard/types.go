package wizard

import (
	"slices"
	"time"

	"report_wizard/internal/models"
)

const (
	// StorageKeyData holds the serialized FormData
	StorageKeyData = "reportWizardData"
	// StorageKeyTemplates holds the serialized template list
	StorageKeyTemplates = "reportWizardTemplates"

	DefaultTitle        = "Security Report"
	DefaultQuickRange   = "24h"
	DefaultDownloadName = "security_report.xlsx"
	ReportFormat        = "xlsx"

	MaxHistory  = 5
	MaxLogoSize = 10 * 1024 * 1024
)

// QuickRanges are the relative presets offered on the time range step.
var QuickRanges = []string{"1h", "6h", "12h", "24h", "7d", "30d", "90d"}

// LogoContentTypes lists the accepted logo MIME types.
var LogoContentTypes = []string{"image/png", "image/jpeg", "image/jpg", "image/svg+xml"}

// Step is a wizard page, 1 through 5.
type Step int

const (
	StepSelect Step = iota + 1
	StepTimeRange
	StepDetails
	StepReview
	StepGenerate
)

// FirstStep and LastStep bound every step value.
const (
	FirstStep = StepSelect
	LastStep  = StepGenerate
)

func (s Step) String() string {
	switch s {
	case StepSelect:
		return "Dashboards & Panels"
	case StepTimeRange:
		return "Time Range"
	case StepDetails:
		return "Report Details"
	case StepReview:
		return "Review"
	case StepGenerate:
		return "Generate"
	default:
		return "Unknown"
	}
}

// ClampStep forces n into the valid step range.
func ClampStep(n int) Step {
	if n < int(FirstStep) {
		return FirstStep
	}
	if n > int(LastStep) {
		return LastStep
	}
	return Step(n)
}

// TimeRange is either a quick preset or an explicit from/to pair.
type TimeRange struct {
	Quick string `json:"quick,omitempty" yaml:"quick,omitempty"`
	From  string `json:"from,omitempty" yaml:"from,omitempty"`
	To    string `json:"to,omitempty" yaml:"to,omitempty"`
}

// DefaultTimeRange is the last 24 hours.
func DefaultTimeRange() TimeRange {
	return TimeRange{Quick: DefaultQuickRange}
}

// IsQuick reports whether the range is a known preset.
func (t TimeRange) IsQuick() bool {
	return t.Quick != "" && slices.Contains(QuickRanges, t.Quick)
}

// Valid reports whether the range resolves to something meaningful.
func (t TimeRange) Valid() bool {
	return t.IsQuick() || (t.From != "" && t.To != "")
}

// Resolve converts the range to the Grafana form sent to the backend.
func (t TimeRange) Resolve() models.TimeRange {
	if t.IsQuick() {
		return models.TimeRange{From: "now-" + t.Quick, To: "now"}
	}
	if t.From != "" && t.To != "" {
		return models.TimeRange{From: t.From, To: t.To}
	}
	return DefaultTimeRange().Resolve()
}

// Label is a short human description of the range.
func (t TimeRange) Label() string {
	if t.IsQuick() {
		return "Last " + t.Quick
	}
	r := t.Resolve()
	return r.From + " to " + r.To
}

// Selection maps a dashboard UID to its selected panel IDs.
// An absent key means nothing is selected; reads on a nil Selection are safe.
type Selection map[string][]int

// Has reports whether panel id is selected on dashboard uid.
func (s Selection) Has(uid string, id int) bool {
	return slices.Contains(s[uid], id)
}

// Count is the number of panels selected on one dashboard.
func (s Selection) Count(uid string) int {
	return len(s[uid])
}

// Total is the number of panels selected across all dashboards.
func (s Selection) Total() int {
	n := 0
	for _, ids := range s {
		n += len(ids)
	}
	return n
}

// Toggle flips membership of id and reports whether it is now selected.
func (s Selection) Toggle(uid string, id int) bool {
	ids := s[uid]
	if i := slices.Index(ids, id); i >= 0 {
		s[uid] = slices.Delete(slices.Clone(ids), i, i+1)
		return false
	}
	s[uid] = append(slices.Clone(ids), id)
	return true
}

// Clone returns a deep copy. A nil Selection clones to an empty one.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for uid, ids := range s {
		out[uid] = append([]int{}, ids...)
	}
	return out
}

// HistoryEntry is a display-only record of a generated report.
type HistoryEntry struct {
	Title          string    `json:"title"`
	Format         string    `json:"format"`
	Filename       string    `json:"filename,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	DashboardCount int       `json:"dashboardCount"`
	PanelCount     int       `json:"panelCount"`
}

// FormData is the persisted wizard configuration.
type FormData struct {
	Dashboards     []string       `json:"dashboards"`
	SelectedPanels Selection      `json:"selectedPanels"`
	TimeRange      TimeRange      `json:"timeRange"`
	ReportTitle    string         `json:"reportTitle"`
	ReportSubtitle string         `json:"reportSubtitle"`
	CompanyName    string         `json:"companyName"`
	LogoPath       string         `json:"logoPath"`
	CurrentStep    Step           `json:"currentStep"`
	HighestStep    Step           `json:"highestStep"`
	ReportHistory  []HistoryEntry `json:"reportHistory"`
}

// DefaultFormData is the state of a fresh wizard.
func DefaultFormData() FormData {
	return FormData{
		Dashboards:     []string{},
		SelectedPanels: Selection{},
		TimeRange:      DefaultTimeRange(),
		ReportTitle:    DefaultTitle,
		CurrentStep:    FirstStep,
		HighestStep:    FirstStep,
		ReportHistory:  []HistoryEntry{},
	}
}

// Clone returns a copy sharing no slices or maps with f.
func (f FormData) Clone() FormData {
	out := f
	out.Dashboards = append([]string{}, f.Dashboards...)
	out.SelectedPanels = f.SelectedPanels.Clone()
	out.ReportHistory = append([]HistoryEntry{}, f.ReportHistory...)
	return out
}

// HasDashboard reports whether uid is selected.
func (f FormData) HasDashboard(uid string) bool {
	return slices.Contains(f.Dashboards, uid)
}

// ActiveDashboards returns the selected dashboards that have at least one panel selected, in order.
func (f FormData) ActiveDashboards() []string {
	var out []string
	for _, uid := range f.Dashboards {
		if f.SelectedPanels.Count(uid) > 0 {
			out = append(out, uid)
		}
	}
	return out
}

// Template is a named snapshot of a selection and time range.
type Template struct {
	Name       string    `json:"name" yaml:"name"`
	Dashboards []string  `json:"dashboards" yaml:"dashboards"`
	Panels     Selection `json:"panels" yaml:"panels"`
	TimeRange  TimeRange `json:"timeRange" yaml:"time_range"`
	CreatedAt  time.Time `json:"createdAt" yaml:"created_at"`
}

// DashboardPanels is one entry of the generation payload.
type DashboardPanels struct {
	UID    string `json:"uid"`
	Panels []int  `json:"panels"`
}

// GenerateRequest is what the backend needs to build a report.
type GenerateRequest struct {
	Dashboards []DashboardPanels
	// DashboardUID and PanelIDs are the legacy single-dashboard pair.
	DashboardUID string
	PanelIDs     []int
	TimeRange    models.TimeRange
	Title        string
	CompanyName  string
	LogoPath     string
}

// Report is a generated file as returned by the backend.
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}

// LogoFile is a logo chosen by the user, validated before upload.
type LogoFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadedLogo is the backend's reply to a logo upload.
type UploadedLogo struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}
