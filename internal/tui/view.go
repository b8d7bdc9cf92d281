package tui

import (
	"fmt"
	"strings"

	"report_wizard/internal/wizard"
)

// row is one line of the dashboards step: a dashboard, or a panel of a selected dashboard.
type row struct {
	uid       string
	title     string
	isPanel   bool
	panelID   int
	panelType string
}

func selectRows(s wizard.Snapshot) []row {
	var rows []row
	seen := make(map[string]bool)

	add := func(uid, title string) {
		seen[uid] = true
		rows = append(rows, row{uid: uid, title: title})
		if !s.Form.HasDashboard(uid) {
			return
		}
		for _, p := range s.Panels[uid] {
			rows = append(rows, row{uid: uid, title: p.Title, isPanel: true, panelID: p.ID, panelType: p.Type})
		}
	}

	for _, d := range s.Dashboards {
		add(d.UID, d.Title)
	}
	// selected before the list loaded, or no longer listed
	for _, uid := range s.Form.Dashboards {
		if !seen[uid] {
			add(uid, uid)
		}
	}
	return rows
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	s := m.wiz.Snapshot()
	var b strings.Builder

	b.WriteString("\n  " + titleStyle.Render("Security Report Wizard") + "\n")
	b.WriteString("  " + stepBar(s.Form) + "\n\n")

	switch s.Form.CurrentStep {
	case wizard.StepSelect:
		m.viewSelect(&b, s)
	case wizard.StepTimeRange:
		m.viewTimeRange(&b, s)
	case wizard.StepDetails:
		m.viewDetails(&b, s)
	case wizard.StepReview:
		m.viewReview(&b, s)
	case wizard.StepGenerate:
		m.viewGenerate(&b, s)
	}

	b.WriteString("\n  " + helpStyle.Render(m.help()) + "\n")
	if m.status != "" {
		style := successStyle
		if m.statusErr {
			style = errorStyle
		}
		b.WriteString("  " + style.Render(m.status) + "\n")
	}
	return b.String()
}

func stepBar(form wizard.FormData) string {
	parts := make([]string, 0, int(wizard.LastStep))
	for step := wizard.FirstStep; step <= wizard.LastStep; step++ {
		label := fmt.Sprintf("%d %s", int(step), step)
		switch {
		case step == form.CurrentStep:
			parts = append(parts, currentStyle.Render("["+label+"]"))
		case step <= form.HighestStep:
			parts = append(parts, reachedStyle.Render(label))
		default:
			parts = append(parts, blurredStyle.Render(label))
		}
	}
	return strings.Join(parts, blurredStyle.Render(" › "))
}

func (m *Model) pointer(i int) string {
	if i == m.cursor && m.editing == noField {
		return focusedStyle.Render("> ")
	}
	return "  "
}

func (m *Model) viewSelect(b *strings.Builder, s wizard.Snapshot) {
	b.WriteString("  " + headingStyle.Render("Select dashboards and panels") + "\n\n")

	if s.LoadingDashboards {
		fmt.Fprintf(b, "  %s Loading dashboards...\n", m.spinner.View())
	}

	rows := selectRows(s)
	if len(rows) == 0 && !s.LoadingDashboards {
		b.WriteString("  " + dimStyle.Render("No dashboards found. Press r to reload.") + "\n")
	}

	for i, r := range rows {
		if r.isPanel {
			fmt.Fprintf(b, "  %s    %s %s %s\n", m.pointer(i), checkbox(s.Form.SelectedPanels.Has(r.uid, r.panelID)),
				r.title, dimStyle.Render("("+r.panelType+")"))
			continue
		}

		selected := s.Form.HasDashboard(r.uid)
		line := fmt.Sprintf("  %s%s %s", m.pointer(i), checkbox(selected), r.title)
		if selected {
			line += dimStyle.Render(fmt.Sprintf("  %d/%d panels", s.Form.SelectedPanels.Count(r.uid), len(s.Panels[r.uid])))
		}
		if s.LoadingPanels[r.uid] {
			line += " " + m.spinner.View()
		}
		b.WriteString(line + "\n")
	}

	fmt.Fprintf(b, "\n  %d dashboards, %d panels selected\n", len(s.Form.Dashboards), s.Form.SelectedPanels.Total())
}

func (m *Model) viewTimeRange(b *strings.Builder, s wizard.Snapshot) {
	b.WriteString("  " + headingStyle.Render("Time range") + "\n\n")

	tr := s.Form.TimeRange
	for i, q := range wizard.QuickRanges {
		fmt.Fprintf(b, "  %s%s Last %s\n", m.pointer(i), radio(tr.IsQuick() && tr.Quick == q), q)
	}

	custom := len(wizard.QuickRanges)
	label := "Custom range"
	if !tr.IsQuick() && tr.Valid() {
		label += dimStyle.Render(fmt.Sprintf("  %s to %s", tr.From, tr.To))
	}
	fmt.Fprintf(b, "  %s%s %s\n", m.pointer(custom), radio(!tr.IsQuick()), label)

	if m.editing == fieldFrom || m.editing == fieldTo {
		fmt.Fprintf(b, "\n    From %s\n    To   %s\n", m.inputs[fieldFrom].View(), m.inputs[fieldTo].View())
	}
}

func (m *Model) viewDetails(b *strings.Builder, s wizard.Snapshot) {
	b.WriteString("  " + headingStyle.Render("Report details") + "\n\n")

	labels := map[field]string{
		fieldTitle:    "Title",
		fieldSubtitle: "Subtitle",
		fieldCompany:  "Company",
		fieldLogo:     "Logo",
	}
	values := map[field]string{
		fieldTitle:    s.Form.ReportTitle,
		fieldSubtitle: s.Form.ReportSubtitle,
		fieldCompany:  s.Form.CompanyName,
		fieldLogo:     s.Form.LogoPath,
	}

	for i, f := range detailFields {
		value := values[f]
		if m.editing == f {
			value = m.inputs[f].View()
		} else if value == "" {
			value = dimStyle.Render("none")
		}
		if f == fieldLogo && s.Uploading {
			value += " " + m.spinner.View() + " uploading"
		}
		fmt.Fprintf(b, "  %s%-9s %s\n", m.pointer(i), labels[f], value)
	}
}

func (m *Model) viewReview(b *strings.Builder, s wizard.Snapshot) {
	b.WriteString("  " + headingStyle.Render("Review") + "\n\n")

	titles := make(map[string]string, len(s.Dashboards))
	for _, d := range s.Dashboards {
		titles[d.UID] = d.Title
	}
	for _, uid := range s.Form.Dashboards {
		title := titles[uid]
		if title == "" {
			title = uid
		}
		fmt.Fprintf(b, "  • %s %s\n", title, dimStyle.Render(fmt.Sprintf("(%d panels)", s.Form.SelectedPanels.Count(uid))))
	}

	fmt.Fprintf(b, "\n  Time range  %s\n", s.Form.TimeRange.Label())
	fmt.Fprintf(b, "  Title       %s\n", s.Form.ReportTitle)
	if s.Form.ReportSubtitle != "" {
		fmt.Fprintf(b, "  Subtitle    %s\n", s.Form.ReportSubtitle)
	}
	if s.Form.CompanyName != "" {
		fmt.Fprintf(b, "  Company     %s\n", s.Form.CompanyName)
	}
	if s.Form.LogoPath != "" {
		fmt.Fprintf(b, "  Logo        %s\n", s.Form.LogoPath)
	}

	b.WriteString("\n  " + headingStyle.Render("Templates") + "\n")
	if len(s.Templates) == 0 {
		b.WriteString("  " + dimStyle.Render("No saved templates") + "\n")
	}
	for i, t := range s.Templates {
		fmt.Fprintf(b, "  %s%s %s\n", m.pointer(i), t.Name,
			dimStyle.Render(fmt.Sprintf("%d dashboards, %s", len(t.Dashboards), t.TimeRange.Label())))
	}
	if m.editing == fieldTemplate {
		fmt.Fprintf(b, "\n    Save as %s\n", m.inputs[fieldTemplate].View())
	}
}

func (m *Model) viewGenerate(b *strings.Builder, s wizard.Snapshot) {
	b.WriteString("  " + headingStyle.Render("Generate") + "\n\n")

	switch {
	case s.Generating:
		fmt.Fprintf(b, "  %s Generating report...\n", m.spinner.View())
	case len(s.Form.ActiveDashboards()) == 0 || strings.TrimSpace(s.Form.ReportTitle) == "":
		b.WriteString("  " + errorStyle.Render("Please "+wizard.ErrNotReady.Error()) + "\n")
	default:
		b.WriteString("  Press enter to generate the " + wizard.ReportFormat + " report\n")
	}

	b.WriteString("\n  " + headingStyle.Render("Recent reports") + "\n")
	if len(s.Form.ReportHistory) == 0 {
		b.WriteString("  " + dimStyle.Render("None yet") + "\n")
	}
	for _, h := range s.Form.ReportHistory {
		fmt.Fprintf(b, "  %s  %s  %s\n", h.Timestamp.Local().Format("2006-01-02 15:04"), h.Title,
			dimStyle.Render(fmt.Sprintf("%s, %d dashboards, %d panels", h.Format, h.DashboardCount, h.PanelCount)))
	}
}

func (m *Model) help() string {
	if m.editing != noField {
		if m.editing == fieldFrom || m.editing == fieldTo {
			return "enter apply • tab switch field • esc cancel"
		}
		return "enter save • esc cancel"
	}

	nav := "n next • b back • 1-5 jump • q quit"
	switch m.step {
	case wizard.StepSelect:
		return "space toggle • a all panels • c clear • r reload • " + nav
	case wizard.StepTimeRange:
		return "enter choose • " + nav
	case wizard.StepDetails:
		return "enter edit • x remove logo • " + nav
	case wizard.StepReview:
		return "s save template • enter apply • d delete • " + nav
	case wizard.StepGenerate:
		return "enter generate • R reset • " + nav
	}
	return nav
}
