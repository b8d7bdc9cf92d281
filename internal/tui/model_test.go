package tui

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"report_wizard/internal/kvstore"
	"report_wizard/internal/models"
	"report_wizard/internal/wizard"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu       sync.Mutex
	requests []wizard.GenerateRequest
	uploads  []wizard.LogoFile
	panelErr error
}

func (b *stubBackend) Dashboards(ctx context.Context) ([]models.Dashboard, error) {
	return []models.Dashboard{
		{UID: "a", Title: "Alpha Dashboard"},
		{UID: "b", Title: "Beta Dashboard"},
	}, nil
}

func (b *stubBackend) Panels(ctx context.Context, uid string) ([]models.Panel, error) {
	if b.panelErr != nil {
		return nil, b.panelErr
	}
	return []models.Panel{
		{ID: 1, Title: "Failed Logins", Type: "timeseries"},
		{ID: 2, Title: "Alerts by Severity", Type: "piechart"},
	}, nil
}

func (b *stubBackend) UploadLogo(ctx context.Context, logo wizard.LogoFile) (wizard.UploadedLogo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, logo)
	return wizard.UploadedLogo{Path: "/static/uploads/logo.png", Filename: "logo.png"}, nil
}

func (b *stubBackend) GenerateReport(ctx context.Context, req wizard.GenerateRequest) (*wizard.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	return &wizard.Report{Filename: "Security_Report.xlsx", Data: []byte("xlsx")}, nil
}

type stubDownloader struct {
	files map[string][]byte
}

func (d *stubDownloader) Download(filename string, data []byte) (string, error) {
	d.files[filename] = data
	return "/tmp/reports/" + filename, nil
}

type testEnv struct {
	model      *Model
	wiz        *wizard.Wizard
	backend    *stubBackend
	downloader *stubDownloader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	backend := &stubBackend{}
	downloader := &stubDownloader{files: make(map[string][]byte)}
	alerts := &Notifier{}

	wiz, err := wizard.New(wizard.Config{
		Backend:    backend,
		Store:      kvstore.NewMemory(),
		Notifier:   alerts,
		Downloader: downloader,
		Logger:     logger,
		Now:        func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	require.NoError(t, err)

	m := New(Options{
		Wizard: wiz,
		Alerts: alerts,
		ReadLogo: func(path string) (wizard.LogoFile, error) {
			if path != "logo.png" {
				return wizard.LogoFile{}, errors.New("no such file")
			}
			return wizard.LogoFile{Name: "logo.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}, nil
		},
	})

	env := &testEnv{model: m, wiz: wiz, backend: backend, downloader: downloader}
	env.run(m.Init())
	return env
}

// run executes cmd and feeds every resulting message back into the model.
// Spinner ticks are dropped so the loop terminates.
func (e *testEnv) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			e.run(c)
		}
	case spinner.TickMsg, tea.QuitMsg, nil:
	default:
		_, next := e.model.Update(msg)
		e.run(next)
	}
}

func (e *testEnv) press(keys ...string) {
	for _, k := range keys {
		_, cmd := e.model.Update(keyMsg(k))
		e.run(cmd)
	}
}

func (e *testEnv) typeText(s string) {
	_, cmd := e.model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	e.run(cmd)
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// completeFirstStep selects dashboard "a" and its first panel.
func (e *testEnv) completeFirstStep() {
	e.press(" ", "down", " ")
}

func TestInitLoadsDashboards(t *testing.T) {
	env := newTestEnv(t)

	view := env.model.View()
	assert.Contains(t, view, "Alpha Dashboard")
	assert.Contains(t, view, "Beta Dashboard")
	assert.Contains(t, view, "Loaded 2 dashboards")
}

func TestToggleDashboardLoadsPanels(t *testing.T) {
	env := newTestEnv(t)

	env.press(" ")
	assert.Equal(t, []string{"a"}, env.wiz.Form().Dashboards)
	assert.Len(t, env.wiz.Panels("a"), 2)
	assert.Contains(t, env.model.View(), "Failed Logins")

	env.press("down", " ")
	assert.Equal(t, []int{1}, env.wiz.Form().SelectedPanels["a"])

	env.press("up", " ")
	assert.Empty(t, env.wiz.Form().Dashboards)
	assert.NotContains(t, env.model.View(), "Failed Logins")
}

func TestSelectAllAndClearPanels(t *testing.T) {
	env := newTestEnv(t)

	env.press(" ", "a")
	assert.Equal(t, []int{1, 2}, env.wiz.Form().SelectedPanels["a"])

	env.press("c")
	assert.Empty(t, env.wiz.Form().SelectedPanels["a"])
}

func TestPanelLoadFailureShowsAlert(t *testing.T) {
	env := newTestEnv(t)
	env.backend.panelErr = errors.New("boom")

	env.press(" ")
	assert.True(t, env.model.statusErr)
	assert.Contains(t, env.model.status, "Failed to load panels")
}

func TestNextBlockedUntilPanelSelected(t *testing.T) {
	env := newTestEnv(t)

	env.press("n")
	assert.Equal(t, wizard.StepSelect, env.wiz.CurrentStep())
	assert.True(t, env.model.statusErr)
	assert.Contains(t, env.model.status, wizard.ErrStepIncomplete.Error())

	env.completeFirstStep()
	env.press("n")
	assert.Equal(t, wizard.StepTimeRange, env.wiz.CurrentStep())
}

func TestJumpToUnreachedStepRefused(t *testing.T) {
	env := newTestEnv(t)

	env.press("3")
	assert.Equal(t, wizard.StepSelect, env.wiz.CurrentStep())
	assert.Contains(t, env.model.status, wizard.ErrStepUnavailable.Error())

	env.completeFirstStep()
	env.press("n", "n", "1", "3")
	assert.Equal(t, wizard.StepDetails, env.wiz.CurrentStep())
}

func TestQuickAndCustomRange(t *testing.T) {
	env := newTestEnv(t)
	env.completeFirstStep()
	env.press("n")

	env.press(" ")
	assert.Equal(t, wizard.TimeRange{Quick: "1h"}, env.wiz.Form().TimeRange)

	for range wizard.QuickRanges {
		env.press("down")
	}
	env.press("enter")
	require.Equal(t, fieldFrom, env.model.editing)

	env.typeText("now-2d")
	env.press("enter")
	require.Equal(t, fieldTo, env.model.editing)
	env.typeText("now")
	env.press("enter")

	assert.Equal(t, noField, env.model.editing)
	assert.Equal(t, wizard.TimeRange{From: "now-2d", To: "now"}, env.wiz.Form().TimeRange)
}

func TestEditDetails(t *testing.T) {
	env := newTestEnv(t)
	env.completeFirstStep()
	env.press("n", "n")
	require.Equal(t, wizard.StepDetails, env.wiz.CurrentStep())

	env.press("down", "down", "enter")
	env.typeText("Acme")
	// navigation keys are typed while editing
	env.typeText("n")
	env.press("enter")
	assert.Equal(t, "Acmen", env.wiz.Form().CompanyName)
	assert.Equal(t, wizard.StepDetails, env.wiz.CurrentStep())

	env.press("up", "enter", "esc")
	assert.Equal(t, noField, env.model.editing)
	assert.Equal(t, "", env.wiz.Form().ReportSubtitle)
}

func TestUploadLogo(t *testing.T) {
	env := newTestEnv(t)
	env.completeFirstStep()
	env.press("n", "n", "down", "down", "down", "enter")

	env.typeText("logo.png")
	env.press("enter")
	assert.Equal(t, "/static/uploads/logo.png", env.wiz.Form().LogoPath)
	assert.Equal(t, "Logo uploaded", env.model.status)
	require.Len(t, env.backend.uploads, 1)

	env.press("x")
	assert.Empty(t, env.wiz.Form().LogoPath)

	env.press("enter")
	env.typeText("missing.png")
	env.press("enter")
	assert.True(t, env.model.statusErr)
	assert.Contains(t, env.model.status, "Failed to read logo")
	assert.Len(t, env.backend.uploads, 1)
}

func TestTemplatesOnReview(t *testing.T) {
	env := newTestEnv(t)
	env.completeFirstStep()
	env.press("n", "n", "n")
	require.Equal(t, wizard.StepReview, env.wiz.CurrentStep())

	env.press("s")
	env.typeText("weekly")
	env.press("enter")
	require.Len(t, env.wiz.Templates(), 1)
	assert.Equal(t, "weekly", env.wiz.Templates()[0].Name)
	assert.Contains(t, env.model.View(), "weekly")

	env.press("1", "up", " ")
	assert.Empty(t, env.wiz.Form().Dashboards)

	env.press("4", "enter")
	assert.Equal(t, []string{"a"}, env.wiz.Form().Dashboards)
	assert.Equal(t, []int{1}, env.wiz.Form().SelectedPanels["a"])
	assert.Len(t, env.wiz.Panels("a"), 2)

	env.press("d")
	assert.Empty(t, env.wiz.Templates())
}

func TestGenerateSavesReport(t *testing.T) {
	env := newTestEnv(t)
	env.completeFirstStep()
	env.press("n", "n", "n", "n")
	require.Equal(t, wizard.StepGenerate, env.wiz.CurrentStep())

	env.press("enter")

	assert.Equal(t, "Report saved to /tmp/reports/Security_Report.xlsx", env.model.status)
	assert.Equal(t, []byte("xlsx"), env.downloader.files["Security_Report.xlsx"])
	require.Len(t, env.backend.requests, 1)
	assert.Equal(t, "a", env.backend.requests[0].DashboardUID)

	history := env.wiz.Form().ReportHistory
	require.Len(t, history, 1)
	assert.Equal(t, wizard.DefaultTitle, history[0].Title)
	assert.Contains(t, env.model.View(), "Recent reports")

	env.press("R")
	assert.Equal(t, wizard.StepSelect, env.wiz.CurrentStep())
	assert.Empty(t, env.wiz.Form().ReportHistory)
}

func TestQuit(t *testing.T) {
	env := newTestEnv(t)

	_, cmd := env.model.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.True(t, env.model.Quitting())
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, env.model.View())
}

func TestNotifierDrain(t *testing.T) {
	n := &Notifier{}
	n.Alert("first")
	n.Alert("second")

	assert.Equal(t, []string{"first", "second"}, n.Drain())
	assert.Empty(t, n.Drain())
}
