package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamscao/certlink/internal/db/repository"
)

func (a *app) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Maintain the audit log",
	}
	cmd.AddCommand(a.auditPruneCmd())
	return cmd
}

func (a *app) auditPruneCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Audit.RetentionDays
			}
			if days <= 0 {
				return errors.New("retention must be positive: pass --days or set audit.retention_days")
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
			deleted, err := repository.NewAuditRepository(database.DB).DeleteOld(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries older than %s\n", deleted, cutoff.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (defaults to audit.retention_days)")

	return cmd
}
