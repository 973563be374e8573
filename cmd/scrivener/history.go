package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"scrivener/internal/config"
	"scrivener/internal/journal"
	"scrivener/internal/server"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent deliveries",
	Long: `History lists journaled deliveries, newest first. It asks the daemon when one
is running and reads the journal file otherwise. Payloads are never
recorded; only their length and fingerprint are.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringP("app", "a", "", "Only deliveries to this application")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum entries")
	historyCmd.Flags().Bool("json", false, "Print entries as JSON")
	historyCmd.Flags().Bool("stats", false, "Print totals instead of entries")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	appName, _ := cmd.Flags().GetString("app")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	stats, _ := cmd.Flags().GetBool("stats")
	ctx := cmd.Context()

	if stats {
		s, err := journalStats(ctx, cfg)
		if err != nil {
			return err
		}
		return printStats(cmd, s, asJSON)
	}

	var entries []journal.Entry
	client := server.NewClient(cfg.Server.SocketPath, 10*time.Second)
	if client.Available() {
		entries, err = client.History(ctx, appName, limit, verbose(cmd))
	} else {
		entries, err = readJournal(ctx, cfg, appName, limit)
	}
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No deliveries recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTARGET\tRESULT\tBACKEND\tTRIES\tLENGTH\tDURATION")
	for _, e := range entries {
		result := "ok"
		if !e.Success {
			result = e.ErrorKind
		}
		target := e.Target
		if e.App != "" && e.App != e.Target {
			target += " (" + e.App + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			target, result, e.Backend, e.Attempts, e.Length,
			e.Duration.Round(time.Millisecond))
		if verbose(cmd) && e.Diagnostic != "" {
			fmt.Fprintf(w, "\t  %s\n", e.Diagnostic)
		}
	}
	return w.Flush()
}

var errJournalDisabled = errors.New("the delivery journal is disabled in the configuration")

func openJournal(cfg *config.Config) (*journal.Journal, error) {
	if !cfg.Journal.Enabled {
		return nil, errJournalDisabled
	}
	return journal.Open(cfg.Journal.ResolvedPath())
}

func readJournal(ctx context.Context, cfg *config.Config, app string, limit int) ([]journal.Entry, error) {
	j, err := openJournal(cfg)
	if err != nil {
		return nil, err
	}
	defer j.Close()
	if app != "" {
		return j.ByApp(ctx, app, limit)
	}
	return j.Recent(ctx, limit)
}

func journalStats(ctx context.Context, cfg *config.Config) (*journal.Stats, error) {
	j, err := openJournal(cfg)
	if err != nil {
		return nil, err
	}
	defer j.Close()
	return j.Stats(ctx)
}

func printStats(cmd *cobra.Command, s *journal.Stats, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		return json.NewEncoder(out).Encode(s)
	}
	fmt.Fprintf(out, "Deliveries: %d (%d succeeded, %d failed)\n", s.Total, s.Succeeded, s.Failed)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for backend, n := range s.ByBackend {
		fmt.Fprintf(w, "  via %s\t%d\n", backend, n)
	}
	for kind, n := range s.ByKind {
		fmt.Fprintf(w, "  %s\t%d\n", kind, n)
	}
	return w.Flush()
}
