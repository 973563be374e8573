package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scrivener/internal/preprocess"
)

var shapeCmd = &cobra.Command{
	Use:   "shape",
	Short: "Print a payload as it would be delivered",
	Long: `Shape runs the payload through the same preprocessing a delivery would and
prints the result without touching any application. The content kind
comes from --kind, or from the profile of --app.`,
	Args: cobra.NoArgs,
	RunE: runShape,
}

func init() {
	rootCmd.AddCommand(shapeCmd)
	shapeCmd.Flags().StringP("text", "t", "", "Payload (default: read standard input)")
	shapeCmd.Flags().StringP("kind", "k", "", "Content kind: plain, code or tabular")
	shapeCmd.Flags().StringP("app", "a", "", "Shape for this application's profile")
}

func runShape(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(cmd)
	if err != nil {
		return err
	}

	kind := preprocess.KindPlain
	kindName, _ := cmd.Flags().GetString("kind")
	target, _ := cmd.Flags().GetString("app")
	switch {
	case kindName != "":
		if kind, err = preprocess.ParseKind(kindName); err != nil {
			return err
		}
	case target != "":
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		kind = cfg.Registry().Resolve(target).Content
	}

	shaped := preprocess.Shape(payload, kind)
	if shaped == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "nothing left to deliver after preprocessing")
		return errFailed
	}
	fmt.Fprintln(cmd.OutOrStdout(), shaped)
	return nil
}
