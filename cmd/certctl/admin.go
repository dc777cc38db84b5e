package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamscao/certlink/internal/auth"
	"github.com/adamscao/certlink/internal/qrcode"
)

func (a *app) totpSetupCmd() *cobra.Command {
	var (
		account string
		issuer  string
		secret  string
		qrPath  string
	)

	cmd := &cobra.Command{
		Use:   "totp-setup",
		Short: "Generate a TOTP secret for the admin endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			var key *auth.TOTPKey
			if secret != "" {
				// re-enroll an existing secret without rotating it
				if _, err := auth.GenerateCode(secret, time.Now()); err != nil {
					return fmt.Errorf("invalid TOTP secret: %w", err)
				}
				key = &auth.TOTPKey{Secret: secret, URL: auth.GenerateQRCodeURL(secret, account, issuer)}
			} else {
				generated, err := auth.GenerateTOTPSecret(issuer, account)
				if err != nil {
					return err
				}
				key = generated
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "TOTP Secret: %s\n", key.Secret)
			fmt.Fprintf(out, "TOTP URL:    %s\n", key.URL)

			if qrPath != "" {
				opts := qrcode.DefaultOptions()
				opts.Size = 256
				if err := writeQR(qrPath, key.URL, opts); err != nil {
					return err
				}
				fmt.Fprintf(out, "QR code:     %s\n", qrPath)
			}

			fmt.Fprintf(out, "\nSet admin.totp_secret in the config and scan the URL with a TOTP app\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "admin", "Account name shown in the authenticator")
	cmd.Flags().StringVar(&issuer, "issuer", auth.DefaultTOTPIssuer, "Issuer shown in the authenticator")
	cmd.Flags().StringVar(&secret, "secret", "", "Print the setup URL for this existing secret instead of generating one")
	cmd.Flags().StringVar(&qrPath, "qr", "", "Also write the setup QR code PNG to this path")

	return cmd
}

func (a *app) adminTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admin-token",
		Short: "Generate a random admin token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateAdminToken()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
