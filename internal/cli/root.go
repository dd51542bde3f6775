package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/enclavecheck/internal/backend"
	"github.com/ppiankov/enclavecheck/internal/config"
	"github.com/ppiankov/enclavecheck/internal/encoder"
	"github.com/ppiankov/enclavecheck/internal/pdg"
	"github.com/ppiankov/enclavecheck/internal/policy"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUnsatisfiable = 2
	ExitSolver        = 69 // EX_UNAVAILABLE
	ExitConfig        = 78 // EX_CONFIG
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "enclavecheck",
	Short: "Static verifier for cross-domain information flow policies",
	Long: "Checks whether a program graph can be partitioned into enclaves that comply\n" +
		"with a CLE policy. Prints a compliant assignment, or the conflicting\n" +
		"constraints traced back to source locations.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.LogLevel = logLevel
			if err := c.Validate(); err != nil {
				return &config.Error{Err: err}
			}
		}
		cfg = c
		logger = newLogger(c.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.enclavecheck/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// ExitError ends the process with Code. A nil Err exits silently.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		exitErr    *ExitError
		solverErr  *backend.SolverError
		cfgErr     *config.Error
		policyErr  *policy.ValidationError
		graphErr   *pdg.StructuralCorruptionError
		unknownErr *encoder.UnknownLabelError
	)
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.As(err, &solverErr):
		return ExitSolver
	case errors.As(err, &cfgErr), errors.As(err, &policyErr),
		errors.As(err, &graphErr), errors.As(err, &unknownErr):
		return ExitConfig
	}
	return ExitFailure
}

// Execute runs the root command and exits with the mapped code.
func Execute() {
	err := rootCmd.Execute()
	code := ExitCode(err)
	var exitErr *ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.Err == nil) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
