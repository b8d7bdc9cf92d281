package wizard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		dashboards []string
		selection  Selection
	}{
		{
			name:       "current shape",
			raw:        `{"dashboards":["abc","def"],"selectedPanels":{"abc":[1,2],"def":[]}}`,
			dashboards: []string{"abc", "def"},
			selection:  Selection{"abc": {1, 2}, "def": {}},
		},
		{
			name:       "legacy single dashboard with flat list",
			raw:        `{"dashboard":"abc","selectedPanels":[3,"4"]}`,
			dashboards: []string{"abc"},
			selection:  Selection{"abc": {3, 4}},
		},
		{
			name:       "flat list with several dashboards is dropped",
			raw:        `{"dashboards":["abc","def"],"selectedPanels":[1,2]}`,
			dashboards: []string{"abc", "def"},
			selection:  Selection{"abc": {}, "def": {}},
		},
		{
			name:       "flat list without dashboards is dropped",
			raw:        `{"selectedPanels":[1]}`,
			dashboards: []string{},
			selection:  Selection{},
		},
		{
			name:       "entries of unselected dashboards are dropped",
			raw:        `{"dashboards":["abc"],"selectedPanels":{"abc":[1],"zzz":[9]}}`,
			dashboards: []string{"abc"},
			selection:  Selection{"abc": {1}},
		},
		{
			name:       "dashboards given as a string",
			raw:        `{"dashboards":"abc","selectedPanels":{"abc":[5,5]}}`,
			dashboards: []string{"abc"},
			selection:  Selection{"abc": {5}},
		},
		{
			name:       "empty legacy dashboard",
			raw:        `{"dashboard":"","selectedPanels":[1]}`,
			dashboards: []string{},
			selection:  Selection{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form, err := Migrate([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.dashboards, form.Dashboards)
			assert.Equal(t, tt.selection, form.SelectedPanels)
		})
	}
}

func TestMigrateMergesOverDefaults(t *testing.T) {
	form, err := Migrate([]byte(`{"companyName":"Acme"}`))
	require.NoError(t, err)

	want := DefaultFormData()
	want.CompanyName = "Acme"
	assert.Equal(t, want, form)

	form, err = Migrate([]byte(`{"reportTitle":""}`))
	require.NoError(t, err)
	assert.Equal(t, "", form.ReportTitle, "a saved empty title is kept")
}

func TestMigrateSteps(t *testing.T) {
	tests := []struct {
		raw     string
		current Step
		highest Step
	}{
		{raw: `{"currentStep":3,"highestStep":4}`, current: 3, highest: 4},
		{raw: `{"currentStep":9}`, current: 5, highest: 5},
		{raw: `{"currentStep":0,"highestStep":-2}`, current: 1, highest: 1},
		{raw: `{"currentStep":4,"highestStep":2}`, current: 4, highest: 4},
	}

	for _, tt := range tests {
		form, err := Migrate([]byte(tt.raw))
		require.NoError(t, err)
		assert.Equal(t, tt.current, form.CurrentStep, tt.raw)
		assert.Equal(t, tt.highest, form.HighestStep, tt.raw)
	}
}

func TestMigrateTimeRangeAndHistory(t *testing.T) {
	form, err := Migrate([]byte(`{"timeRange":{"quick":"2w"}}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeRange(), form.TimeRange, "unknown preset falls back to the default")

	form, err = Migrate([]byte(`{"timeRange":{"quick":"bogus","from":"now-3d","to":"now-1d"}}`))
	require.NoError(t, err)
	assert.Equal(t, TimeRange{From: "now-3d", To: "now-1d"}, form.TimeRange)

	history := make([]HistoryEntry, 8)
	for i := range history {
		history[i].Title = string(rune('a' + i))
	}
	raw, err := json.Marshal(map[string]interface{}{"reportHistory": history})
	require.NoError(t, err)

	form, err = Migrate(raw)
	require.NoError(t, err)
	assert.Len(t, form.ReportHistory, MaxHistory)
	assert.Equal(t, "a", form.ReportHistory[0].Title)
}

func TestMigrateMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"currentStep":"two"}`,
		`{"dashboards":[1,2]}`,
		`{"dashboards":["abc"],"selectedPanels":{"abc":["x"]}}`,
		`{"dashboards":["abc"],"selectedPanels":"abc"}`,
		`{"dashboards":["abc"],"selectedPanels":{"abc":[1.5]}}`,
		`{"dashboards":["abc"],"selectedPanels":{"abc":[1e30]}}`,
		`{"dashboard":"abc","selectedPanels":[2, 2.25]}`,
	} {
		_, err := Migrate([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestMigrateIntegralFloatIDs(t *testing.T) {
	form, err := Migrate([]byte(`{"dashboards":["abc"],"selectedPanels":{"abc":[3.0, "4", 3]}}`))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, form.SelectedPanels["abc"])
}

func TestMigrateRoundTrip(t *testing.T) {
	form := DefaultFormData()
	form.Dashboards = []string{"abc", "def"}
	form.SelectedPanels = Selection{"abc": {2, 1}, "def": {}}
	form.TimeRange = TimeRange{From: "2026-01-01T00:00:00Z", To: "2026-02-01T00:00:00Z"}
	form.CurrentStep, form.HighestStep = StepReview, StepGenerate

	raw, err := json.Marshal(form)
	require.NoError(t, err)

	restored, err := Migrate(raw)
	require.NoError(t, err)
	assert.Equal(t, form, restored)
}

func TestTimeRangeResolve(t *testing.T) {
	for _, q := range QuickRanges {
		tr := TimeRange{Quick: q}
		assert.Equal(t, "now-"+q, tr.Resolve().From)
		assert.Equal(t, "now", tr.Resolve().To)
	}
	assert.Equal(t, "now-24h", TimeRange{}.Resolve().From)
	assert.Equal(t, "Last 7d", TimeRange{Quick: "7d"}.Label())
	assert.Equal(t, "a to b", TimeRange{From: "a", To: "b"}.Label())
}

func TestSelectionHelpers(t *testing.T) {
	var nilSel Selection
	assert.False(t, nilSel.Has("abc", 1))
	assert.Equal(t, 0, nilSel.Count("abc"))
	assert.Equal(t, 0, nilSel.Total())
	assert.Equal(t, Selection{}, nilSel.Clone())

	sel := Selection{"abc": {}}
	assert.True(t, sel.Toggle("abc", 4))
	assert.True(t, sel.Toggle("abc", 5))
	assert.True(t, sel.Has("abc", 4))
	assert.Equal(t, 2, sel.Total())

	clone := sel.Clone()
	assert.False(t, sel.Toggle("abc", 4))
	assert.Equal(t, []int{5}, sel["abc"])
	assert.Equal(t, []int{4, 5}, clone["abc"], "clone is independent")
}
