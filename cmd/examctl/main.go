// Package main provides the learner's terminal exam client.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tzavrishon/mivhan/internal/apiclient"
	"github.com/tzavrishon/mivhan/internal/clientconfig"
	"github.com/tzavrishon/mivhan/internal/clientstore"
	"github.com/tzavrishon/mivhan/internal/examflow"
	"github.com/tzavrishon/mivhan/internal/logger"
	"github.com/tzavrishon/mivhan/internal/tui"
)

var (
	configPath string
	serverURL  string
	logLevel   string

	loginEmail string

	historyLimit  int
	historyRemote bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "examctl",
		Short:        "Take timed reasoning exams in the terminal",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", clientconfig.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "exam server URL (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level for the client log file")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newSummaryCmd())
	return rootCmd
}

// ─── Shared setup ───────────────────────────────────────────────────

type session struct {
	cfg    clientconfig.FileConfig
	url    string
	client *apiclient.Client
	log    zerolog.Logger
	close  func()
}

// openSession loads the config and opens the client log. The log goes to a
// file because the TUI owns the terminal.
func openSession(requireToken bool) (*session, error) {
	cfg, err := clientconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	url := cfg.ServerURL()
	if serverURL != "" {
		url = strings.TrimRight(serverURL, "/")
	}
	if requireToken && cfg.Server.Token == "" {
		return nil, errors.New("not logged in; run: examctl login --email <email>")
	}

	logPath := clientconfig.DefaultLogPath()
	closeLog := func() {}
	log := zerolog.Nop()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err == nil {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil {
			log = logger.Setup(logLevel, "json", f)
			closeLog = func() { _ = f.Close() }
		}
	}

	return &session{
		cfg:    cfg,
		url:    url,
		client: apiclient.New(url, cfg.Server.Token, apiclient.WithLogger(log)),
		log:    log,
		close:  closeLog,
	}, nil
}

func openStore() (*clientstore.Store, error) {
	st, err := clientstore.Open(clientconfig.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return st, nil
}

// ─── login / logout ─────────────────────────────────────────────────

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session token",
		Args:  cobra.NoArgs,
		RunE:  runLoginCmd,
	}
	cmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	return cmd
}

func runLoginCmd(cmd *cobra.Command, _ []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.close()

	email := loginEmail
	if email == "" {
		email = s.cfg.Server.Email
	}
	if email == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Email: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		email = strings.TrimSpace(line)
	}

	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	learner, err := s.client.Login(ctx, email, string(pw))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	s.cfg.Server.URL = s.url
	s.cfg.Server.Email = email
	s.cfg.Server.Token = s.client.Token()
	if err := clientconfig.Save(configPath, s.cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", learner.Name)
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the token",
		Args:  cobra.NoArgs,
		RunE:  runLogoutCmd,
	}
}

func runLogoutCmd(cmd *cobra.Command, _ []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := s.client.Logout(ctx); err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
		return fmt.Errorf("logout failed: %w", err)
	}
	s.cfg.Server.Token = ""
	return clientconfig.Save(configPath, s.cfg)
}

// ─── start / resume ─────────────────────────────────────────────────

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a new exam attempt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExam(cmd, false)
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the most recent unfinished attempt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExam(cmd, true)
		},
	}
}

func runExam(cmd *cobra.Command, resume bool) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close local store: %v\n", cerr)
		}
	}()

	var attempt *examflow.Attempt
	if resume {
		attempt, err = st.LatestUnfinished(cmd.Context(), s.url)
		if errors.Is(err, clientstore.ErrNotFound) {
			return errors.New("no unfinished attempt to resume; run: examctl start")
		}
		if err != nil {
			return err
		}
	}

	keymap := examflow.DefaultKeymap
	if s.cfg.Keys.Flag != "" {
		keymap.Flag = s.cfg.Keys.Flag
	}
	ctl := examflow.NewController(s.client,
		examflow.WithLogger(s.log),
		examflow.WithKeymap(keymap),
	)
	model := tui.NewModel(tui.Options{
		Controller: ctl,
		Store:      st,
		ServerURL:  s.url,
		Resume:     attempt,
		Keymap:     keymap,
		Log:        s.log,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	snap := ctl.Snapshot()
	switch {
	case snap.Summary != nil:
		return examflow.Present(*snap.Summary).Render(cmd.OutOrStdout())
	case errors.Is(snap.Err, apiclient.ErrUnauthorized):
		return errors.New("session ended; log in again with: examctl login")
	case ctl.State() == examflow.StateAborted:
		fmt.Fprintln(cmd.OutOrStdout(), "Attempt left unfinished. Continue it with: examctl resume")
	}
	return nil
}

// ─── history / summary ──────────────────────────────────────────────

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded attempts",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "last", 20, "number of attempts to show (0 for all)")
	cmd.Flags().BoolVar(&historyRemote, "remote", false, "list attempts from the server instead of the local store")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(out, "ATTEMPT\tSTARTED\tSCORE")

	if historyRemote {
		s, err := openSession(true)
		if err != nil {
			return err
		}
		defer s.close()

		perPage := historyLimit
		if perPage <= 0 || perPage > 100 {
			perPage = 100
		}
		items, _, err := s.client.ListAttempts(cmd.Context(), 1, perPage)
		if err != nil {
			return err
		}
		for _, it := range items {
			fmt.Fprintf(out, "%s\t%s\t%s\n", it.ID, it.CreatedAt.Local().Format("2006-01-02 15:04"), scoreText(it.TotalScore90))
		}
		return out.Flush()
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.ListAttempts(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Fprintf(out, "%s\t%s\t%s\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), scoreText(r.Score))
	}
	return out.Flush()
}

func scoreText(score *int) string {
	if score == nil {
		return "unfinished"
	}
	return fmt.Sprintf("%d / %d", *score, examflow.MaxScore)
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <attempt-id>",
		Short: "Show the stored result of a finished attempt",
		Args:  cobra.ExactArgs(1),
		RunE:  runSummaryCmd,
	}
}

func runSummaryCmd(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid attempt id: %w", err)
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sum, err := st.Summary(cmd.Context(), id)
	if errors.Is(err, clientstore.ErrNotFound) {
		return fmt.Errorf("no finished attempt %s in the local store", id)
	}
	if err != nil {
		return err
	}
	return examflow.Present(*sum).Render(cmd.OutOrStdout())
}

func logErrf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
}
