package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamscao/certlink/internal/certificate"
	"github.com/adamscao/certlink/internal/config"
	"github.com/adamscao/certlink/internal/db"
)

type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "certctl",
		Short:         "Certificate link tool",
		Long:          "Issue, verify and look up certificate links from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "/etc/certlink/config.yaml", "Config file path")

	rootCmd.AddCommand(
		a.encodeCmd(),
		a.decodeCmd(),
		a.idCmd(),
		a.qrCmd(),
		a.batchCmd(),
		a.registryCmd(),
		a.auditCmd(),
		a.totpSetupCmd(),
		a.adminTokenCmd(),
	)

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(exitCode(err))
	}
}

// loadConfig loads the configuration once per invocation
func (a *app) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadWithEnv(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

// openDB opens the configured database
func (a *app) openDB() (*db.DB, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Path == "" {
		return nil, errors.New("database.path is not configured")
	}
	return db.Open(cfg.Database.Path)
}

// rejectedTokenError marks a token that failed verification. Whichever
// stage rejected it, the token itself is bad rather than the input the
// user typed.
type rejectedTokenError struct {
	err error
}

func (e *rejectedTokenError) Error() string { return e.err.Error() }
func (e *rejectedTokenError) Unwrap() error { return e.err }

// rejectToken wraps a decode failure. Config errors are left alone since
// they describe the local setup, not the token.
func rejectToken(err error) error {
	if err == nil || certificate.KindOf(err) == certificate.KindConfig {
		return err
	}
	return &rejectedTokenError{err: err}
}

func isRejectedToken(err error) bool {
	var rejected *rejectedTokenError
	return errors.As(err, &rejected)
}

// describeError prefixes certificate failures with what went wrong from
// the user's point of view
func describeError(err error) string {
	if isRejectedToken(err) && certificate.KindOf(err) == certificate.KindValidation {
		return "Certificate could not be verified: " + err.Error()
	}

	switch certificate.KindOf(err) {
	case certificate.KindValidation:
		return "Invalid certificate data: " + err.Error()
	case certificate.KindFormat:
		return "Invalid certificate link: " + err.Error()
	case certificate.KindIntegrity:
		return "Certificate could not be verified: " + err.Error()
	case certificate.KindConfig:
		return "Configuration error: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}

func exitCode(err error) int {
	if isRejectedToken(err) {
		return 2
	}

	switch certificate.KindOf(err) {
	case certificate.KindFormat, certificate.KindIntegrity:
		return 2
	case certificate.KindConfig:
		return 3
	default:
		return 1
	}
}
