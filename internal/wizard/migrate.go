package wizard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// storedForm accepts every shape FormData has been persisted in.
type storedForm struct {
	Dashboards     json.RawMessage `json:"dashboards"`
	Dashboard      json.RawMessage `json:"dashboard"`
	SelectedPanels json.RawMessage `json:"selectedPanels"`
	TimeRange      *TimeRange      `json:"timeRange"`
	ReportTitle    *string         `json:"reportTitle"`
	ReportSubtitle *string         `json:"reportSubtitle"`
	CompanyName    *string         `json:"companyName"`
	LogoPath       *string         `json:"logoPath"`
	CurrentStep    *int            `json:"currentStep"`
	HighestStep    *int            `json:"highestStep"`
	ReportHistory  []HistoryEntry  `json:"reportHistory"`
}

// Migrate decodes any previously persisted form and merges it over the defaults.
//
// Legacy shapes: a single "dashboard" string becomes the dashboards list, and a flat
// "selectedPanels" list is attributed to the dashboard only when exactly one was selected.
// Selection entries for unselected dashboards are dropped and steps are clamped.
func Migrate(raw []byte) (FormData, error) {
	form := DefaultFormData()

	var stored storedForm
	if err := json.Unmarshal(raw, &stored); err != nil {
		return form, fmt.Errorf("decode form data: %w", err)
	}

	dashboards, err := decodeDashboards(stored.Dashboards)
	if err != nil {
		return form, err
	}
	if dashboards == nil {
		legacy, err := decodeDashboards(stored.Dashboard)
		if err != nil {
			return form, err
		}
		dashboards = legacy
	}
	if dashboards != nil {
		form.Dashboards = dashboards
	}

	selection, err := decodeSelection(stored.SelectedPanels, form.Dashboards)
	if err != nil {
		return form, err
	}
	form.SelectedPanels = selection

	if stored.TimeRange != nil && stored.TimeRange.Valid() {
		form.TimeRange = *stored.TimeRange
		if form.TimeRange.IsQuick() {
			form.TimeRange.From, form.TimeRange.To = "", ""
		} else {
			form.TimeRange.Quick = ""
		}
	}
	if stored.ReportTitle != nil {
		form.ReportTitle = *stored.ReportTitle
	}
	if stored.ReportSubtitle != nil {
		form.ReportSubtitle = *stored.ReportSubtitle
	}
	if stored.CompanyName != nil {
		form.CompanyName = *stored.CompanyName
	}
	if stored.LogoPath != nil {
		form.LogoPath = *stored.LogoPath
	}

	if stored.CurrentStep != nil {
		form.CurrentStep = ClampStep(*stored.CurrentStep)
	}
	if stored.HighestStep != nil {
		form.HighestStep = ClampStep(*stored.HighestStep)
	}
	form.HighestStep = max(form.HighestStep, form.CurrentStep)

	if stored.ReportHistory != nil {
		form.ReportHistory = stored.ReportHistory
		if len(form.ReportHistory) > MaxHistory {
			form.ReportHistory = form.ReportHistory[:MaxHistory]
		}
	}

	return form, nil
}

// decodeDashboards accepts a list of UIDs or a single UID string. It returns nil when absent.
func decodeDashboards(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return dedupe(list), nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("decode dashboards: %w", err)
	}
	if single == "" {
		return []string{}, nil
	}
	return []string{single}, nil
}

// decodeSelection accepts the per-dashboard map or the legacy flat list.
func decodeSelection(raw json.RawMessage, dashboards []string) (Selection, error) {
	selection := Selection{}
	for _, uid := range dashboards {
		selection[uid] = []int{}
	}
	if isNull(raw) {
		return selection, nil
	}

	switch raw[firstNonSpace(raw)] {
	case '[':
		ids, err := decodeIDs(raw)
		if err != nil {
			return nil, err
		}
		// A flat list cannot be attributed when several dashboards were selected
		if len(dashboards) == 1 {
			selection[dashboards[0]] = ids
		}
	case '{':
		var byDashboard map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byDashboard); err != nil {
			return nil, fmt.Errorf("decode selected panels: %w", err)
		}
		for uid, value := range byDashboard {
			if !slices.Contains(dashboards, uid) {
				continue
			}
			ids, err := decodeIDs(value)
			if err != nil {
				return nil, err
			}
			selection[uid] = ids
		}
	default:
		return nil, fmt.Errorf("decode selected panels: unexpected value %s", string(raw))
	}
	return selection, nil
}

// decodeIDs reads panel IDs stored as integral numbers or numeric strings.
func decodeIDs(raw json.RawMessage) ([]int, error) {
	if isNull(raw) {
		return []int{}, nil
	}

	var values []interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode panel ids: %w", err)
	}

	ids := make([]int, 0, len(values))
	for _, v := range values {
		var id int
		switch val := v.(type) {
		case float64:
			if val != math.Trunc(val) || val < math.MinInt || val >= math.MaxInt {
				return nil, fmt.Errorf("decode panel ids: %v is not a valid panel id", val)
			}
			id = int(val)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("decode panel ids: %q is not a number", val)
			}
			id = n
		default:
			return nil, fmt.Errorf("decode panel ids: unexpected %T", v)
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// decodeTemplates reads the persisted template list.
func decodeTemplates(raw []byte) ([]Template, error) {
	var templates []Template
	if err := json.Unmarshal(raw, &templates); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	for i := range templates {
		if templates[i].Panels == nil {
			templates[i].Panels = Selection{}
		}
		if templates[i].Dashboards == nil {
			templates[i].Dashboards = []string{}
		}
	}
	return templates, nil
}

func dedupe(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func firstNonSpace(raw json.RawMessage) int {
	return len(raw) - len(bytes.TrimLeft(raw, " \t\r\n"))
}
