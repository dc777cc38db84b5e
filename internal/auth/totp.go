package auth

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultTOTPIssuer labels the account in authenticator apps
	DefaultTOTPIssuer = "certlink"
)

// TOTPKey is a second-factor secret with its enrollment URL
type TOTPKey struct {
	Secret string
	URL    string
}

// GenerateTOTPSecret generates a new TOTP secret for account
func GenerateTOTPSecret(issuer, account string) (*TOTPKey, error) {
	if issuer == "" {
		issuer = DefaultTOTPIssuer
	}
	if account == "" {
		account = "admin"
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return &TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// GenerateQRCodeURL builds the otpauth URL for an existing secret
func GenerateQRCodeURL(secret, account, issuer string) string {
	if issuer == "" {
		issuer = DefaultTOTPIssuer
	}

	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(issuer),
		url.PathEscape(account),
		secret,
		url.QueryEscape(issuer))
}

// ValidateTOTP validates a code against a secret at time t.
// Allows for ±1 time window to account for clock skew.
func ValidateTOTP(secret, code string, t time.Time) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, t.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Malformed codes are a failed check, not a server fault
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, fmt.Errorf("failed to validate TOTP code: %w", err)
	}
	return valid, nil
}

// GenerateCode returns the current code for secret
func GenerateCode(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCode(secret, t.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP code: %w", err)
	}
	return code, nil
}
