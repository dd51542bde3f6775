package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/enclavecheck/internal/policydiff"
	"github.com/ppiankov/enclavecheck/internal/verify"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Compare two policies and show changes",
	Long:  "Loads two policies and shows what changed: levels and labels added or\nremoved, label levels, and flow rules added, removed or changed.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	r := verify.New(runOptions(cmd))
	oldModel, err := r.LoadPolicy(cmd.Context(), verify.Inputs{Policy: args[0]})
	if err != nil {
		return fmt.Errorf("load old policy: %w", err)
	}
	newModel, err := r.LoadPolicy(cmd.Context(), verify.Inputs{Policy: args[1]})
	if err != nil {
		return fmt.Errorf("load new policy: %w", err)
	}

	result := policydiff.Diff(oldModel, newModel)
	result.OldPath = args[0]
	result.NewPath = args[1]

	out := cmd.OutOrStdout()
	switch diffFormat {
	case "json":
		s, err := policydiff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, policydiff.FormatText(result))
	}
	return nil
}
