package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scrivener/internal/app"
	"scrivener/internal/engine"
	"scrivener/internal/preprocess"
	"scrivener/internal/server"
)

var deliverCmd = &cobra.Command{
	Use:   "deliver <app>",
	Short: "Write text into a running application",
	Long: `Deliver reads the payload from --text or standard input, shapes it for the
target application and writes it there.

When a daemon is listening the delivery is handed to it, so that only one
delivery runs at a time across every caller. Use --local to run it in this
process instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeliver,
}

func init() {
	rootCmd.AddCommand(deliverCmd)
	deliverCmd.Flags().StringP("text", "t", "", "Payload (default: read standard input)")
	deliverCmd.Flags().StringP("kind", "k", "", "Content kind: plain, code or tabular (default: the profile's)")
	deliverCmd.Flags().Bool("local", false, "Deliver in this process even if a daemon is running")
	deliverCmd.Flags().Bool("json", false, "Print the outcome as JSON")
}

func readPayload(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("text") {
		text, _ := cmd.Flags().GetString("text")
		return text, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	return string(data), nil
}

func runDeliver(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(cmd)
	if err != nil {
		return err
	}
	kindName, _ := cmd.Flags().GetString("kind")
	if kindName != "" {
		if _, err := preprocess.ParseKind(kindName); err != nil {
			return err
		}
	}
	local, _ := cmd.Flags().GetBool("local")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := server.DeliveryRequest{Payload: payload, Target: args[0], Kind: kindName}

	var resp *server.DeliveryResponse
	if !local {
		resp, err = deliverViaDaemon(ctx, cmd, req)
		if err != nil && !errors.Is(err, server.ErrDaemonNotRunning) {
			return err
		}
	}
	if resp == nil {
		resp, err = deliverLocally(ctx, cmd, req)
		if err != nil {
			return err
		}
	}

	return printOutcome(cmd, resp, asJSON)
}

func deliverViaDaemon(ctx context.Context, cmd *cobra.Command, req server.DeliveryRequest) (*server.DeliveryResponse, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	client := server.NewClient(cfg.Server.SocketPath, 0)
	if !client.Available() {
		return nil, server.ErrDaemonNotRunning
	}
	return client.Deliver(ctx, req, verbose(cmd))
}

func deliverLocally(ctx context.Context, cmd *cobra.Command, req server.DeliveryRequest) (*server.DeliveryResponse, error) {
	a, err := app.New(app.Options{ConfigPath: configPath(cmd), Version: Version})
	if err != nil {
		return nil, err
	}
	defer a.Close()

	er := engine.Request{Payload: req.Payload, Target: req.Target}
	if req.Kind != "" {
		kind, err := preprocess.ParseKind(req.Kind)
		if err != nil {
			return nil, err
		}
		er.Kind = &kind
	}
	resp := server.NewDeliveryResponse(a.Deliver(ctx, er), verbose(cmd))
	return &resp, nil
}

func printOutcome(cmd *cobra.Command, resp *server.DeliveryResponse, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, resp.Message)
		if resp.Diagnostic != "" {
			fmt.Fprintf(out, "  %s (%s)\n", strings.TrimSpace(resp.Diagnostic), resp.ErrorKind)
		}
		if verbose(cmd) && resp.Success {
			fmt.Fprintf(out, "  profile %s, backend %s, %d attempt(s), %dms\n",
				resp.Profile, resp.Backend, resp.Attempts, resp.DurationMs)
		}
	}
	if !resp.Success {
		return errFailed
	}
	return nil
}
