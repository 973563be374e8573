package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"scrivener/internal/app"
	"scrivener/internal/config"
	"scrivener/internal/health"
	"scrivener/internal/server"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and desktop facilities",
	Long: `Doctor validates the configuration, probes the desktop helpers deliveries
depend on and reports whether a daemon is running.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := configPath(cmd)
	if path == "" {
		path = config.ConfigPath()
	}
	fmt.Fprintf(out, "Configuration: %s\n", path)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(out, "  invalid: %v\n", err)
		return errFailed
	}
	for _, w := range config.Check(cfg).Warnings() {
		fmt.Fprintf(out, "  warning: %s: %s\n", w.Field, w.Message)
	}

	a, err := app.New(app.Options{ConfigPath: path, Version: Version})
	if err != nil {
		fmt.Fprintf(out, "  cannot start: %v\n", err)
		return errFailed
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*health.DefaultTimeout)
	defer cancel()
	results := a.Health().Check(ctx)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")
	for _, name := range names {
		r := results[name]
		detail := r.Message
		if r.Error != "" && verbose(cmd) {
			detail += ": " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, r.Status, detail)
	}
	w.Flush()

	client := server.NewClient(cfg.Server.SocketPath, 2*time.Second)
	if st, err := client.Status(ctx); err == nil {
		fmt.Fprintf(out, "\nDaemon: running (version %s, %s)\n", st.Version, st.State)
	} else {
		fmt.Fprintf(out, "\nDaemon: not running (%s)\n", cfg.Server.SocketPath)
	}

	overall := a.Health().OverallStatus()
	fmt.Fprintf(out, "Overall: %s\n", overall)
	if overall == health.StatusUnhealthy {
		return errFailed
	}
	return nil
}
