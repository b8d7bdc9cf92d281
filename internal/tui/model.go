// Package tui is the interactive terminal front end of the report wizard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"report_wizard/internal/wizard"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type field int

const (
	fieldTitle field = iota
	fieldSubtitle
	fieldCompany
	fieldLogo
	fieldFrom
	fieldTo
	fieldTemplate
	fieldCount

	noField field = -1
)

// detailFields are the rows of the report details step, in display order.
var detailFields = []field{fieldTitle, fieldSubtitle, fieldCompany, fieldLogo}

type dashboardsLoadedMsg struct{ err error }

type panelsLoadedMsg struct {
	uid string
	err error
}

type logoUploadedMsg struct{ err error }

type generatedMsg struct {
	path string
	err  error
}

// Options wires the model to a wizard. Alerts must be the Notifier the wizard was built with.
type Options struct {
	Context  context.Context
	Wizard   *wizard.Wizard
	Alerts   *Notifier
	ReadLogo func(path string) (wizard.LogoFile, error)
}

// Model is the bubbletea model of the wizard.
type Model struct {
	ctx      context.Context
	wiz      *wizard.Wizard
	alerts   *Notifier
	readLogo func(path string) (wizard.LogoFile, error)

	spinner spinner.Model
	inputs  []textinput.Model
	editing field
	step    wizard.Step
	cursor  int

	status    string
	statusErr bool
	quitting  bool
}

func New(opts Options) *Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Alerts == nil {
		opts.Alerts = &Notifier{}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	m := &Model{
		ctx:      opts.Context,
		wiz:      opts.Wizard,
		alerts:   opts.Alerts,
		readLogo: opts.ReadLogo,
		spinner:  s,
		inputs:   make([]textinput.Model, fieldCount),
		editing:  noField,
		step:     opts.Wizard.CurrentStep(),
	}

	for i := range m.inputs {
		t := textinput.New()
		t.Cursor.Style = focusedStyle
		t.Cursor.SetMode(cursor.CursorStatic)
		t.CharLimit = 256
		t.Prompt = "> "

		switch field(i) {
		case fieldTitle:
			t.Placeholder = wizard.DefaultTitle
		case fieldCompany:
			t.Placeholder = "optional"
		case fieldLogo:
			t.Placeholder = "path to a PNG, JPEG or SVG file"
		case fieldFrom:
			t.Placeholder = "now-7d or 2024-01-01T00:00:00Z"
		case fieldTo:
			t.Placeholder = "now"
		case fieldTemplate:
			t.Placeholder = "template name"
			t.CharLimit = 64
		}
		m.inputs[i] = t
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.loadDashboards()}
	// panels of a restored selection
	for _, uid := range m.wiz.Form().Dashboards {
		cmds = append(cmds, m.loadPanels(uid))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if m.editing != noField {
			cmd = m.handleEditKey(msg)
		} else {
			cmd = m.handleKey(msg)
		}

	case dashboardsLoadedMsg:
		if msg.err == nil {
			m.setStatus(fmt.Sprintf("Loaded %d dashboards", len(m.wiz.Snapshot().Dashboards)), false)
		}

	case panelsLoadedMsg:
		// failures arrive through the notifier

	case logoUploadedMsg:
		if msg.err == nil {
			m.setStatus("Logo uploaded", false)
		}

	case generatedMsg:
		switch {
		case msg.err == nil:
			m.setStatus("Report saved to "+msg.path, false)
		case errors.Is(msg.err, wizard.ErrBusy):
			m.setStatus("A report is already being generated", true)
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
	}

	m.syncStep()
	m.collectAlerts()

	if m.quitting {
		return m, tea.Quit
	}
	return m, cmd
}

// Quitting reports whether the user asked to leave.
func (m *Model) Quitting() bool {
	return m.quitting
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m *Model) collectAlerts() {
	alerts := m.alerts.Drain()
	if len(alerts) > 0 {
		m.setStatus(alerts[len(alerts)-1], true)
	}
}

// syncStep resets per-step UI state after navigation.
func (m *Model) syncStep() {
	step := m.wiz.CurrentStep()
	if step != m.step {
		m.step = step
		m.cursor = 0
		m.stopEdit()
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()

	switch key {
	case "q":
		m.quitting = true
		return tea.Quit
	case "n", "right":
		_ = m.wiz.NextStep()
		return nil
	case "b", "left":
		m.wiz.PrevStep()
		return nil
	case "1", "2", "3", "4", "5":
		if err := m.wiz.GoToStep(int(key[0] - '0')); err != nil {
			m.setStatus(err.Error(), true)
		}
		return nil
	case "up", "k":
		m.moveCursor(-1)
		return nil
	case "down", "j":
		m.moveCursor(1)
		return nil
	}

	switch m.step {
	case wizard.StepSelect:
		return m.selectKey(key)
	case wizard.StepTimeRange:
		return m.timeRangeKey(key)
	case wizard.StepDetails:
		return m.detailsKey(key)
	case wizard.StepReview:
		return m.reviewKey(key)
	case wizard.StepGenerate:
		return m.generateKey(key)
	}
	return nil
}

func (m *Model) rowCount() int {
	switch m.step {
	case wizard.StepSelect:
		return len(selectRows(m.wiz.Snapshot()))
	case wizard.StepTimeRange:
		return len(wizard.QuickRanges) + 1
	case wizard.StepDetails:
		return len(detailFields)
	case wizard.StepReview:
		return len(m.wiz.Templates())
	}
	return 0
}

func (m *Model) moveCursor(delta int) {
	n := m.rowCount()
	if n == 0 {
		m.cursor = 0
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
}

// Step 1

func (m *Model) selectKey(key string) tea.Cmd {
	if key == "r" {
		return m.loadDashboards()
	}

	rows := selectRows(m.wiz.Snapshot())
	if m.cursor >= len(rows) {
		return nil
	}
	r := rows[m.cursor]

	switch key {
	case " ", "enter":
		if r.isPanel {
			m.wiz.TogglePanel(r.uid, r.panelID)
			return nil
		}
		if m.wiz.ToggleDashboard(r.uid) {
			return m.loadPanels(r.uid)
		}
		m.moveCursor(0)
	case "a":
		m.wiz.SelectAllPanels(r.uid)
	case "c":
		m.wiz.ClearPanels(r.uid)
	}
	return nil
}

// Step 2

func (m *Model) timeRangeKey(key string) tea.Cmd {
	if key != " " && key != "enter" {
		return nil
	}
	if m.cursor < len(wizard.QuickRanges) {
		if err := m.wiz.SetQuickRange(wizard.QuickRanges[m.cursor]); err != nil {
			m.setStatus(err.Error(), true)
		}
		return nil
	}

	tr := m.wiz.Form().TimeRange
	m.inputs[fieldTo].SetValue(tr.To)
	return m.startEdit(fieldFrom, tr.From)
}

// Step 3

func (m *Model) detailsKey(key string) tea.Cmd {
	f := detailFields[m.cursor]
	form := m.wiz.Form()

	switch key {
	case "enter", " ":
		switch f {
		case fieldTitle:
			return m.startEdit(f, form.ReportTitle)
		case fieldSubtitle:
			return m.startEdit(f, form.ReportSubtitle)
		case fieldCompany:
			return m.startEdit(f, form.CompanyName)
		case fieldLogo:
			return m.startEdit(f, "")
		}
	case "x":
		if f == fieldLogo {
			m.wiz.ClearLogo()
			m.setStatus("Logo removed", false)
		}
	}
	return nil
}

// Step 4

func (m *Model) reviewKey(key string) tea.Cmd {
	if key == "s" {
		return m.startEdit(fieldTemplate, "")
	}

	templates := m.wiz.Templates()
	if m.cursor >= len(templates) {
		return nil
	}

	switch key {
	case "enter":
		uids, err := m.wiz.ApplyTemplate(m.cursor)
		if err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.setStatus(fmt.Sprintf("Applied template %q", templates[m.cursor].Name), false)
		cmds := make([]tea.Cmd, 0, len(uids))
		for _, uid := range uids {
			cmds = append(cmds, m.loadPanels(uid))
		}
		return tea.Batch(cmds...)
	case "d":
		if err := m.wiz.DeleteTemplate(m.cursor); err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.setStatus(fmt.Sprintf("Deleted template %q", templates[m.cursor].Name), false)
		m.moveCursor(0)
	}
	return nil
}

// Step 5

func (m *Model) generateKey(key string) tea.Cmd {
	switch key {
	case "enter", "g":
		return m.generate()
	case "R":
		m.wiz.Reset()
		m.setStatus("Form reset", false)
	}
	return nil
}

// Text editing

func (m *Model) startEdit(f field, value string) tea.Cmd {
	m.inputs[f].SetValue(value)
	m.inputs[f].CursorEnd()
	return m.focus(f)
}

func (m *Model) focus(f field) tea.Cmd {
	if m.editing != noField {
		m.inputs[m.editing].Blur()
	}
	m.editing = f
	return m.inputs[f].Focus()
}

func (m *Model) stopEdit() {
	if m.editing != noField {
		m.inputs[m.editing].Blur()
		m.editing = noField
	}
}

func (m *Model) handleEditKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.stopEdit()
		return nil
	case "tab", "shift+tab":
		switch m.editing {
		case fieldFrom:
			return m.focus(fieldTo)
		case fieldTo:
			return m.focus(fieldFrom)
		}
		return nil
	case "enter":
		return m.commitEdit()
	}

	var cmd tea.Cmd
	m.inputs[m.editing], cmd = m.inputs[m.editing].Update(msg)
	return cmd
}

func (m *Model) commitEdit() tea.Cmd {
	value := m.inputs[m.editing].Value()

	switch m.editing {
	case fieldTitle:
		m.wiz.SetTitle(value)
	case fieldSubtitle:
		m.wiz.SetSubtitle(value)
	case fieldCompany:
		m.wiz.SetCompanyName(value)
	case fieldLogo:
		m.stopEdit()
		path := strings.TrimSpace(value)
		if path == "" {
			return nil
		}
		return m.uploadLogo(path)
	case fieldFrom, fieldTo:
		if m.editing == fieldFrom && strings.TrimSpace(m.inputs[fieldTo].Value()) == "" {
			return m.focus(fieldTo)
		}
		if err := m.wiz.SetCustomRange(m.inputs[fieldFrom].Value(), m.inputs[fieldTo].Value()); err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
	case fieldTemplate:
		if err := m.wiz.SaveTemplate(value); err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.setStatus(fmt.Sprintf("Saved template %q", strings.TrimSpace(value)), false)
	}

	m.stopEdit()
	return nil
}

// Commands. Each runs a wizard call off the UI goroutine.

func (m *Model) loadDashboards() tea.Cmd {
	ctx, wiz := m.ctx, m.wiz
	return func() tea.Msg {
		return dashboardsLoadedMsg{err: wiz.LoadDashboards(ctx)}
	}
}

func (m *Model) loadPanels(uid string) tea.Cmd {
	ctx, wiz := m.ctx, m.wiz
	return func() tea.Msg {
		return panelsLoadedMsg{uid: uid, err: wiz.LoadPanels(ctx, uid)}
	}
}

func (m *Model) uploadLogo(path string) tea.Cmd {
	ctx, wiz, alerts, read := m.ctx, m.wiz, m.alerts, m.readLogo
	return func() tea.Msg {
		if read == nil {
			err := errors.New("logo upload is not available")
			alerts.Alert(err.Error())
			return logoUploadedMsg{err: err}
		}
		logo, err := read(path)
		if err != nil {
			alerts.Alert(fmt.Sprintf("Failed to read logo: %v", err))
			return logoUploadedMsg{err: err}
		}
		return logoUploadedMsg{err: wiz.UploadLogo(ctx, logo)}
	}
}

func (m *Model) generate() tea.Cmd {
	ctx, wiz := m.ctx, m.wiz
	return func() tea.Msg {
		path, err := wiz.Generate(ctx)
		return generatedMsg{path: path, err: err}
	}
}
