package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the most recently generated reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, sessionOptions{logOut: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer s.Close()

			history := s.wiz.Form().ReportHistory
			if len(history) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No reports generated yet")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GENERATED\tTITLE\tFORMAT\tDASHBOARDS\tPANELS\tFILE")
			for _, h := range history {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", h.Timestamp.Local().Format("2006-01-02 15:04"),
					h.Title, h.Format, h.DashboardCount, h.PanelCount, h.Filename)
			}
			return w.Flush()
		},
	}
}
