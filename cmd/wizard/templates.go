package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage saved selection templates",
	}
	cmd.AddCommand(newTemplatesListCmd(), newTemplatesExportCmd(), newTemplatesImportCmd(), newTemplatesDeleteCmd())
	return cmd
}

func newTemplatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, sessionOptions{logOut: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer s.Close()

			templates := s.wiz.Templates()
			if len(templates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved templates")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tNAME\tDASHBOARDS\tTIME RANGE\tCREATED")
			for i, t := range templates {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", i, t.Name, len(t.Dashboards), t.TimeRange.Label(),
					t.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newTemplatesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write templates as YAML to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, sessionOptions{logOut: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 0 {
				return s.wiz.ExportTemplates(cmd.OutOrStdout())
			}

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := s.wiz.ExportTemplates(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
}

func newTemplatesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Append templates from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := openSession(cmd, sessionOptions{logOut: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.wiz.ImportTemplates(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d templates\n", n)
			return nil
		},
	}
}

func newTemplatesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete a template by its index in the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}

			s, err := openSession(cmd, sessionOptions{logOut: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer s.Close()

			return s.wiz.DeleteTemplate(i)
		},
	}
}
