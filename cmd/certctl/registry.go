package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adamscao/certlink/internal/batch"
	"github.com/adamscao/certlink/internal/db/repository"
	"github.com/adamscao/certlink/internal/models"
	"github.com/adamscao/certlink/internal/registry"
)

func (a *app) registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the certificate registry",
	}
	cmd.AddCommand(a.registryImportCmd(), a.registryLookupCmd(), a.registryListCmd())
	return cmd
}

func (a *app) registryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|file.yaml>",
		Short: "Import registry entries into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadFile(args[0])
			if err != nil {
				return err
			}

			entries := reg.Entries()
			certs := make([]*models.Certificate, 0, len(entries))
			for i := range entries {
				if entries[i].LookupKey() == "" {
					return fmt.Errorf("entry %d has neither id nor certificateId", i)
				}
				certs = append(certs, &entries[i])
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			certRepo := repository.NewCertRepository(database.DB)
			if err := certRepo.Import(cmd.Context(), certs); err != nil {
				return fmt.Errorf("failed to import registry: %w", err)
			}

			total, err := certRepo.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries (%d in registry)\n", len(certs), total)
			return nil
		},
	}
}

func (a *app) registryLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <id>",
		Short: "Look up a certificate by id or certificateId",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			var cert *models.Certificate
			if cfg.Database.Path != "" {
				database, err := a.openDB()
				if err != nil {
					return err
				}
				defer database.Close()

				cert, err = repository.NewCertRepository(database.DB).GetByCertificateID(cmd.Context(), args[0])
				if err != nil && !errors.Is(err, registry.ErrNotFound) {
					return err
				}
			}

			if cert == nil && cfg.Registry.File != "" {
				reg, err := registry.LoadFile(cfg.Registry.File)
				if err != nil {
					return err
				}
				cert, _ = reg.Lookup(args[0])
			}

			if cert == nil {
				return fmt.Errorf("%s: %w", args[0], registry.ErrNotFound)
			}
			return writeJSON(cmd.OutOrStdout(), cert)
		},
	}
}

func (a *app) registryListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List certificates stored in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			certRepo := repository.NewCertRepository(database.DB)
			certs, err := certRepo.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(certs) == 0 {
				fmt.Fprintln(out, "No certificates found")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCertificate ID\tName\tCourse\tIssued")
			for _, cert := range certs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					cert.ID,
					cert.CertificateID,
					cert.FullName,
					cert.CourseName,
					cert.IssuedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")

	return cmd
}

// storeBatch persists the successful rows of a batch run
func (a *app) storeBatch(ctx context.Context, result *batch.Result) error {
	succeeded := result.Succeeded()
	if len(succeeded) == 0 {
		return nil
	}

	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	certs := make([]*models.Certificate, 0, len(succeeded))
	for _, row := range succeeded {
		certs = append(certs, models.NewCertificate(row.Certificate, row.Token))
	}
	if err := repository.NewCertRepository(database.DB).Import(ctx, certs); err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}
	return nil
}
