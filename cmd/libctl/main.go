// cmd/libctl/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"librarian/internal/clients"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type globals struct {
	server string
	token  string
}

func (g *globals) client() *clients.Client {
	return clients.New(g.server, g.token)
}

func rootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "libctl",
		Short:        "Admin client for the library API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.server, "server", envOr("LIBRARIAN_URL", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("LIBRARIAN_TOKEN"), "bearer token (see libctl login)")

	root.AddCommand(
		loginCmd(g),
		remindCmd(g),
		reportCmd(g),
		testEmailCmd(g),
		taskCmd(g),
		overdueCmd(g),
		emailLogsCmd(g),
	)
	return root
}

func loginCmd(g *globals) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a token for LIBRARIAN_TOKEN",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			s, err := g.client().Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "token expires at %s\n", s.ExpiresAt.Format(time.RFC3339))
			fmt.Fprintf(cmd.OutOrStdout(), "export LIBRARIAN_TOKEN=%s\n", s.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "admin", "admin username")
	return cmd
}

func remindCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Queue the overdue reminder task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := g.client().SendReminders(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, t)
		},
	}
}

func reportCmd(g *globals) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the weekly report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, pending, err := g.client().WeeklyReport(cmd.Context(), wait)
			if err != nil {
				return err
			}
			if pending {
				fmt.Fprintf(cmd.ErrOrStderr(), "report generation in progress; check with: libctl task %s\n", t.ID)
			}
			return printJSON(cmd, t)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long the server waits for the report")
	return cmd
}

func testEmailCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "test-email",
		Short: "Queue a mail transport check",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := g.client().SendTestEmail(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, t)
		},
	}
}

func taskCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "task <id>",
		Short: "Show a task's state and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := g.client().Task(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, t)
		},
	}
}

func overdueCmd(g *globals) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List overdue books",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := g.client().Overdue(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date YYYY-MM-DD (default today)")
	return cmd
}

func emailLogsCmd(g *globals) *cobra.Command {
	var (
		emailType   string
		skip, limit int
	)
	cmd := &cobra.Command{
		Use:   "email-logs",
		Short: "List the email audit log, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logs, err := g.client().EmailLogs(cmd.Context(), emailType, skip, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, logs)
		},
	}
	cmd.Flags().StringVar(&emailType, "type", "", "overdue_reminder, weekly_report or test")
	cmd.Flags().IntVar(&skip, "skip", 0, "entries to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries (server default 100)")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPassword reads without echo when stdin is a terminal.
func readPassword(prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
