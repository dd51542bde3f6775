package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/enclavecheck/internal/verify"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a policy for well-formedness",
	Long: "Parses the policy and checks the seventeen well-formedness rules in order.\n" +
		"Reports the first violation with its rule number and label; exit code 78.",
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addInputFlags(validateCmd, false)
}

func runValidate(cmd *cobra.Command, args []string) error {
	m, err := verify.New(runOptions(cmd)).LoadPolicy(cmd.Context(), inputs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d labels, %d levels, %d flow rules (%s)\n",
		m.NumLabels()-1, m.NumLevels()-1, m.NumCDFs()-1, m.Fingerprint())
	return nil
}
