package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/enclavecheck/internal/audit"
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalVerifyCmd)
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Run journal operations",
	Long:  "Commands for checking the hash-chained journal of verification runs.",
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a run journal",
	Long:  "Walks the JSONL journal and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalVerify,
}

func runJournalVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	return &ExitError{Code: ExitFailure, Err: fmt.Errorf("FAILED at line %d: %s", result.ErrorLine, result.Error)}
}
