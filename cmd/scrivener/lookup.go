package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"scrivener/internal/registry"
	"scrivener/internal/server"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [app]",
	Short: "Show the automation profile for an application",
	Long: `Lookup shows which profile a delivery to the named application would use,
with the configured timing overrides applied. Without an argument it lists
every built-in profile.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().Bool("json", false, "Print the profile as JSON")
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg := cfg.Registry()
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		if asJSON {
			var views []server.ProfileView
			for _, p := range reg.Profiles() {
				views = append(views, server.NewProfileView(p))
			}
			return json.NewEncoder(out).Encode(views)
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROFILE\tSTRATEGY\tCONTENT\tSCRIPT")
		for _, p := range reg.Profiles() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Strategy, p.Content, p.Script)
		}
		return w.Flush()
	}

	p, ok := reg.Lookup(args[0])
	if !ok {
		p = reg.Generic()
	}
	if asJSON {
		return json.NewEncoder(out).Encode(server.LookupResponse{
			Query: args[0], Matched: ok, Profile: server.NewProfileView(p),
		})
	}
	printProfile(cmd, args[0], p, ok)
	return nil
}

func printProfile(cmd *cobra.Command, query string, p registry.Profile, matched bool) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	name := p.Name
	if !matched {
		name += " (no profile for " + query + ")"
	}
	fmt.Fprintf(w, "Profile:\t%s\n", name)
	if len(p.Aliases) > 0 {
		fmt.Fprintf(w, "Aliases:\t%s\n", strings.Join(p.Aliases, ", "))
	}
	fmt.Fprintf(w, "Strategy:\t%s\n", p.Strategy)
	fmt.Fprintf(w, "Actions:\t%s\n", p.Actions)
	fmt.Fprintf(w, "Content:\t%s\n", p.Content)
	fmt.Fprintf(w, "Script:\t%s\n", p.Script)
	if len(p.Roles) > 0 {
		fmt.Fprintf(w, "Roles:\t%s (depth %d)\n", strings.Join(p.Roles, ", "), p.MaxDepth)
	}
	t := p.Timing
	fmt.Fprintf(w, "Timing:\tactivate %s, click %s, clipboard %s\n",
		ms(t.ActivationSettle), ms(t.ClickSettle), ms(t.ClipboardSettle))
	fmt.Fprintf(w, "\tchar %s, line %s, script %s, stage %s\n",
		ms(t.CharDelay), ms(t.LineDelay), ms(t.ScriptSettle), ms(t.StageTimeout))
	w.Flush()
}

func ms(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
