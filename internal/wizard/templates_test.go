package wizard

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"report_wizard/internal/kvstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndApplyTemplate(t *testing.T) {
	h := newHarness(t, 0)
	h.selectWithPanels(t, "abc", 1)
	h.selectWithPanels(t, "def", 7)
	require.NoError(t, h.wizard.SetQuickRange("30d"))

	assert.ErrorIs(t, h.wizard.SaveTemplate("  "), ErrInvalidTemplate)
	require.NoError(t, h.wizard.SaveTemplate("Weekly SOC"))

	h.wizard.Reset()
	h.selectWithPanels(t, "zzz")

	toLoad, err := h.wizard.ApplyTemplate(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def"}, toLoad)

	form := h.wizard.Form()
	assert.Equal(t, []string{"abc", "def"}, form.Dashboards)
	assert.Equal(t, Selection{"abc": {1}, "def": {7}}, form.SelectedPanels)
	assert.Equal(t, "30d", form.TimeRange.Quick)
	assert.Nil(t, h.wizard.Panels("zzz"), "panels of dashboards outside the template are dropped")

	for _, uid := range toLoad {
		require.NoError(t, h.wizard.LoadPanels(context.Background(), uid))
	}
	assert.Len(t, h.wizard.Panels("abc"), 2)

	_, err = h.wizard.ApplyTemplate(3)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestTemplatesPersistAndDelete(t *testing.T) {
	store := kvstore.NewMemory()
	h := newHarnessWithStore(t, store, 0)
	require.NoError(t, h.wizard.SaveTemplate("one"))
	require.NoError(t, h.wizard.SaveTemplate("two"))
	require.NoError(t, h.wizard.SaveTemplate("three"))

	require.NoError(t, h.wizard.DeleteTemplate(1))
	assert.ErrorIs(t, h.wizard.DeleteTemplate(5), ErrInvalidTemplate)

	reloaded := newHarnessWithStore(t, store, 0)
	names := []string{}
	for _, tpl := range reloaded.wizard.Templates() {
		names = append(names, tpl.Name)
	}
	assert.Equal(t, []string{"one", "three"}, names)
}

func TestExportImportTemplates(t *testing.T) {
	h := newHarness(t, 0)
	h.selectWithPanels(t, "abc", 2)
	require.NoError(t, h.wizard.SetCustomRange("now-3d", "now-1d"))
	require.NoError(t, h.wizard.SaveTemplate("Incident"))

	var buf bytes.Buffer
	require.NoError(t, h.wizard.ExportTemplates(&buf))
	assert.Contains(t, buf.String(), "templates:")
	assert.Contains(t, buf.String(), "name: Incident")
	assert.Contains(t, buf.String(), "time_range:")

	other := newHarness(t, 0)
	added, err := other.wizard.ImportTemplates(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	imported := other.wizard.Templates()
	require.Len(t, imported, 1)
	assert.Equal(t, "Incident", imported[0].Name)
	assert.Equal(t, []string{"abc"}, imported[0].Dashboards)
	assert.Equal(t, Selection{"abc": {2}}, imported[0].Panels)
	assert.Equal(t, TimeRange{From: "now-3d", To: "now-1d"}, imported[0].TimeRange)
	assert.True(t, imported[0].CreatedAt.Equal(h.wizard.Templates()[0].CreatedAt))
}

func TestImportTemplatesSkipsInvalid(t *testing.T) {
	h := newHarness(t, 0)

	doc := `
templates:
  - name: ""
    dashboards: [abc]
  - name: Minimal
    dashboards: [abc, abc]
`
	added, err := h.wizard.ImportTemplates(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	tpl := h.wizard.Templates()[0]
	assert.Equal(t, []string{"abc"}, tpl.Dashboards)
	assert.Equal(t, Selection{}, tpl.Panels)
	assert.False(t, tpl.CreatedAt.IsZero())

	added, err = h.wizard.ImportTemplates(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	_, err = h.wizard.ImportTemplates(strings.NewReader("templates: [oops"))
	assert.Error(t, err)
}
