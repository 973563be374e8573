package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scrivener/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the delivery daemon",
	Long: `Serve runs the delivery engine behind a JSON API on a unix socket. It also
watches which application has focus so cursor positions can be restored,
and reloads profile timings when the configuration file changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(app.Options{ConfigPath: configPath(cmd), Version: Version})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
