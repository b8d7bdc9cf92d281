package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"report_wizard/internal/client"
	"report_wizard/internal/config"
	"report_wizard/internal/kvstore"
	"report_wizard/internal/tui"
	"report_wizard/internal/wizard"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Build security reports from Grafana dashboards",
		Long: `wizard walks through the report wizard in the terminal: pick dashboards and
panels, choose a time range, fill in the report details, review and generate.

Form state, templates and the report history are kept in a local state file
between runs. Use --ephemeral to start from a clean form and keep nothing.`,
		SilenceUsage: true,
		RunE:         runInteractive,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default: config.yaml in ., ./config or /etc/report-wizard)")
	flags.String("api", "", "report API base URL")
	flags.String("state", "", "state file")
	flags.String("out", "", "directory generated reports are saved to")
	flags.Bool("ephemeral", false, "keep state in memory only")
	flags.String("log-file", "", "write logs to this file (interactive mode discards them otherwise)")

	_ = viper.BindPFlag("wizard.api_url", flags.Lookup("api"))
	_ = viper.BindPFlag("wizard.state_path", flags.Lookup("state"))
	_ = viper.BindPFlag("wizard.download_dir", flags.Lookup("out"))

	cmd.Flags().Int("step", 0, "open the wizard at this step (1-5)")

	cmd.AddCommand(newGenerateCmd(), newTemplatesCmd(), newHistoryCmd())
	return cmd
}

// session is everything a command needs to drive the wizard.
type session struct {
	cfg    config.Config
	logger *logrus.Logger
	wiz    *wizard.Wizard
	closer io.Closer
}

func (s *session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

type sessionOptions struct {
	notifier    wizard.Notifier
	logOut      io.Writer
	initialStep int
}

func openSession(cmd *cobra.Command, opts sessionOptions) (*session, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var closers multiCloser

	logOut := opts.logOut
	if path, _ := cmd.Flags().GetString("log-file"); path != "" {
		logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, logFile)
		logOut = logFile
	}
	logger := config.NewLogger(cfg, logOut)

	var store kvstore.Store
	if ephemeral, _ := cmd.Flags().GetBool("ephemeral"); ephemeral {
		store = kvstore.NewMemory()
	} else {
		bolt, err := kvstore.NewBolt(cfg.Wizard.StatePath)
		if err != nil {
			closers.Close()
			return nil, err
		}
		// bolt first so it is closed before the log file
		closers = append(multiCloser{bolt}, closers...)
		store = bolt
	}

	notifier := opts.notifier
	if notifier == nil {
		notifier = wizard.LogNotifier{Logger: logger}
	}

	wiz, err := wizard.New(wizard.Config{
		Backend:     client.New(cfg.Wizard.APIURL, cfg.Wizard.RequestTimeout, logger),
		Store:       store,
		Notifier:    notifier,
		Downloader:  client.DirDownloader{Dir: cfg.Wizard.DownloadDir},
		Logger:      logger,
		InitialStep: opts.initialStep,
	})
	if err != nil {
		closers.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, wiz: wiz, closer: closers}, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func runInteractive(cmd *cobra.Command, args []string) error {
	step, _ := cmd.Flags().GetInt("step")
	alerts := &tui.Notifier{}

	s, err := openSession(cmd, sessionOptions{
		notifier:    alerts,
		logOut:      io.Discard,
		initialStep: step,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := tui.New(tui.Options{
		Context:  ctx,
		Wizard:   s.wiz,
		Alerts:   alerts,
		ReadLogo: client.ReadLogoFile,
	})

	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("run wizard: %w", err)
	}
	return nil
}
