package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/enclavecheck/internal/verify"
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Print the MiniZinc instance of a program graph and policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return verify.New(runOptions(cmd)).Emit(cmd.Context(), inputs, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(emitCmd)
	addInputFlags(emitCmd, true)
}
