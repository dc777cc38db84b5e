package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamscao/certlink/internal/batch"
	"github.com/adamscao/certlink/internal/certificate"
	"github.com/adamscao/certlink/internal/codec"
	"github.com/adamscao/certlink/internal/qrcode"
	"github.com/adamscao/certlink/internal/verifyurl"
)

func (a *app) encodeCmd() *cobra.Command {
	var (
		record  certificate.Record
		qrPath  string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a certificate into a verification link",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			if record.Issuer == "" {
				record.Issuer = cfg.Certificate.Issuer
			}
			if record.CertificateID == "" {
				record.CertificateID = certificate.NewID(cfg.Certificate.CertificatePrefix)
			}

			encoded, err := codec.EncodeRecord(record, cfg.Certificate.SecretKey)
			if err != nil {
				return err
			}
			link := verifyurl.Build(cfg.Certificate.BaseURL, encoded.Token)

			if qrPath != "" {
				opts, err := cfg.QROptions()
				if err != nil {
					return err
				}
				if err := writeQR(qrPath, link, opts); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{
					"certificate": encoded.Record,
					"token":       encoded.Token,
					"url":         link,
				})
			}
			fmt.Fprintf(out, "Certificate ID: %s\n", encoded.Record.CertificateID)
			fmt.Fprintf(out, "Token:          %s\n", encoded.Token)
			fmt.Fprintf(out, "URL:            %s\n", link)
			if qrPath != "" {
				fmt.Fprintf(out, "QR code:        %s\n", qrPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&record.CertificateID, "id", "", "Certificate ID (generated when empty)")
	cmd.Flags().StringVar(&record.FullName, "name", "", "Recipient full name (required)")
	cmd.Flags().StringVar(&record.CourseName, "course", "", "Course name (required)")
	cmd.Flags().StringVar(&record.CompletionDate, "date", "", "Completion date (required)")
	cmd.Flags().StringVar(&record.Issuer, "issuer", "", "Issuer (defaults to the configured issuer)")
	cmd.Flags().StringVar(&qrPath, "qr", "", "Also write the QR code PNG to this path")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")

	return cmd
}

func (a *app) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <token|url>",
		Short: "Verify a token or verification link and print the certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			record, err := codec.Decode(verifyurl.ExtractToken(args[0]), cfg.Certificate.SecretKey)
			if err != nil {
				return rejectToken(err)
			}
			return writeJSON(cmd.OutOrStdout(), record)
		},
	}
}

func (a *app) idCmd() *cobra.Command {
	var (
		prefix string
		count  int
	)

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Generate certificate IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prefix == "" {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				prefix = cfg.Certificate.CertificatePrefix
			}
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}

			start := time.Now().UnixMilli()
			for i := 0; i < count; i++ {
				fmt.Fprintln(cmd.OutOrStdout(), certificate.GenerateID(prefix, start+int64(i)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "ID prefix (defaults to the configured prefix)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of IDs")

	return cmd
}

func (a *app) qrCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "qr <token|url>",
		Short: "Write the QR code for a valid token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			c, err := codec.New(cfg.Certificate.SecretKey)
			if err != nil {
				return err
			}
			record, err := c.Decode(verifyurl.ExtractToken(args[0]))
			if err != nil {
				return rejectToken(err)
			}
			encoded, err := c.EncodeRecord(record)
			if err != nil {
				return err
			}

			opts, err := cfg.QROptions()
			if err != nil {
				return err
			}
			if output == "" {
				output = record.CertificateID + ".png"
			}
			if err := writeQR(output, verifyurl.Build(cfg.Certificate.BaseURL, encoded.Token), opts); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PNG path (defaults to <certificateId>.png)")

	return cmd
}

func (a *app) batchCmd() *cobra.Command {
	var (
		zipPath string
		persist bool
	)

	cmd := &cobra.Command{
		Use:   "batch <file.csv>",
		Short: "Issue one certificate per CSV row",
		Long:  "Issue one certificate per CSV row. Required columns: fullName, courseName, completionDate.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			opts, err := cfg.QROptions()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open csv: %w", err)
			}
			defer f.Close()

			result, err := batch.ProcessCSV(cmd.Context(), f, batch.Options{
				Key:     cfg.Certificate.SecretKey,
				Prefix:  cfg.Certificate.CertificatePrefix,
				Issuer:  cfg.Certificate.Issuer,
				BaseURL: cfg.Certificate.BaseURL,
				Workers: cfg.Batch.Workers,
				QR:      opts,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printBatch(out, result)

			if persist {
				if err := a.storeBatch(cmd.Context(), result); err != nil {
					return err
				}
			}

			if zipPath != "" {
				if zipPath == "auto" {
					zipPath = result.ZipName()
				}
				zf, err := os.Create(zipPath)
				if err != nil {
					return fmt.Errorf("failed to create zip: %w", err)
				}
				if err := result.Zip(zf); err != nil {
					zf.Close()
					return err
				}
				if err := zf.Close(); err != nil {
					return fmt.Errorf("failed to close zip: %w", err)
				}
				fmt.Fprintf(out, "\nWrote %s\n", zipPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&zipPath, "zip", "", "Write QR codes to this ZIP file ('auto' for qr-codes-<ms>.zip)")
	cmd.Flags().BoolVar(&persist, "store", false, "Store issued certificates in the database")

	return cmd
}

func printBatch(w io.Writer, result *batch.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tName\tCourse\tID\tStatus")
	for _, row := range result.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			row.Index+1,
			row.Certificate.FullName,
			row.Certificate.CourseName,
			row.Certificate.CertificateID,
			row.Status(),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d issued, %d failed\n", len(result.Succeeded()), len(result.Failed()))
}

func writeQR(path, content string, opts qrcode.Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := qrcode.Write(f, content, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
