package main

import (
	"fmt"
	"strconv"
	"strings"

	"report_wizard/internal/client"

	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report without the interactive UI",
		Long: `Generate a report from the saved form, optionally overriding parts of it.

Each --select replaces the saved selection with a dashboard and its panels:

  wizard generate --select abc=1,2,3 --select def=7 --range 7d --title "Weekly Report"

Overrides are saved, so the next interactive run starts from them.`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}

	flags := cmd.Flags()
	flags.StringArray("select", nil, "dashboard and panels as uid=id,id,... (repeatable)")
	flags.String("title", "", "report title")
	flags.String("subtitle", "", "report subtitle")
	flags.String("company", "", "company name")
	flags.String("range", "", "quick time range (1h, 6h, 12h, 24h, 7d, 30d, 90d)")
	flags.String("from", "", "explicit range start, used with --to")
	flags.String("to", "", "explicit range end, used with --from")
	flags.String("logo", "", "logo image to upload")
	return cmd
}

// dashboardSelection is one parsed --select value.
type dashboardSelection struct {
	UID    string
	Panels []int
}

func parseSelection(value string) (dashboardSelection, error) {
	uid, ids, ok := strings.Cut(value, "=")
	uid = strings.TrimSpace(uid)
	if !ok || uid == "" {
		return dashboardSelection{}, fmt.Errorf("invalid --select %q: want uid=id,id,...", value)
	}

	sel := dashboardSelection{UID: uid}
	for _, part := range strings.Split(ids, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return dashboardSelection{}, fmt.Errorf("invalid panel id %q in --select %q", part, value)
		}
		sel.Panels = append(sel.Panels, id)
	}
	if len(sel.Panels) == 0 {
		return dashboardSelection{}, fmt.Errorf("--select %q names no panels", value)
	}
	return sel, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	var selections []dashboardSelection
	values, _ := flags.GetStringArray("select")
	for _, v := range values {
		sel, err := parseSelection(v)
		if err != nil {
			return err
		}
		selections = append(selections, sel)
	}

	s, err := openSession(cmd, sessionOptions{logOut: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer s.Close()

	wiz := s.wiz
	if len(selections) > 0 {
		for _, uid := range wiz.Form().Dashboards {
			wiz.DeselectDashboard(uid)
		}
		for _, sel := range selections {
			wiz.SelectDashboard(sel.UID)
			for _, id := range sel.Panels {
				if !wiz.Form().SelectedPanels.Has(sel.UID, id) {
					wiz.TogglePanel(sel.UID, id)
				}
			}
		}
	}

	if flags.Changed("title") {
		title, _ := flags.GetString("title")
		wiz.SetTitle(title)
	}
	if flags.Changed("subtitle") {
		subtitle, _ := flags.GetString("subtitle")
		wiz.SetSubtitle(subtitle)
	}
	if flags.Changed("company") {
		company, _ := flags.GetString("company")
		wiz.SetCompanyName(company)
	}

	quick, _ := flags.GetString("range")
	from, _ := flags.GetString("from")
	to, _ := flags.GetString("to")
	switch {
	case quick != "" && (from != "" || to != ""):
		return fmt.Errorf("--range cannot be combined with --from/--to")
	case quick != "":
		if err := wiz.SetQuickRange(quick); err != nil {
			return err
		}
	case from != "" || to != "":
		if err := wiz.SetCustomRange(from, to); err != nil {
			return err
		}
	}

	if path, _ := flags.GetString("logo"); path != "" {
		logo, err := client.ReadLogoFile(path)
		if err != nil {
			return err
		}
		if err := wiz.UploadLogo(cmd.Context(), logo); err != nil {
			return err
		}
	}

	saved, err := wiz.Generate(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), saved)
	return nil
}
