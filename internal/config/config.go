package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adamscao/certlink/internal/certificate"
	"github.com/adamscao/certlink/internal/qrcode"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Certificate CertificateConfig `yaml:"certificate"`
	Registry    RegistryConfig    `yaml:"registry"`
	Batch       BatchConfig       `yaml:"batch"`
	QR          QRConfig          `yaml:"qr"`
	Admin       AdminConfig       `yaml:"admin"`
	Audit       AuditConfig       `yaml:"audit"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig contains database configuration. An empty path
// disables persistence of issued certificates and the audit log.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CertificateConfig is the shared issuing configuration
type CertificateConfig struct {
	Issuer            string `yaml:"issuer"`
	CertificatePrefix string `yaml:"certificate_prefix"`
	SecretKey         string `yaml:"secret_key"`
	BaseURL           string `yaml:"base_url"`
}

// RegistryConfig contains registry lookup configuration
type RegistryConfig struct {
	File          string `yaml:"file"`
	PersistIssued bool   `yaml:"persist_issued"`
}

// BatchConfig contains batch processing limits
type BatchConfig struct {
	Workers int `yaml:"workers"`
	MaxRows int `yaml:"max_rows"`
}

// QRConfig contains QR rendering settings
type QRConfig struct {
	Size       int    `yaml:"size"`
	Level      string `yaml:"level"`
	DarkColor  string `yaml:"dark_color"`
	LightColor string `yaml:"light_color"`
}

// AdminConfig contains admin configuration
type AdminConfig struct {
	Token      string `yaml:"token"`
	TOTPSecret string `yaml:"totp_secret"`
}

// AuditConfig contains audit log housekeeping settings. Zero retention
// keeps entries forever.
type AuditConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every optional field set
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills optional fields left empty
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Certificate.CertificatePrefix == "" {
		c.Certificate.CertificatePrefix = certificate.DefaultIDPrefix
	}
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = 4
	}
	if c.Batch.MaxRows <= 0 {
		c.Batch.MaxRows = 5000
	}
	if c.QR.Size <= 0 {
		c.QR.Size = 210
	}
	if c.QR.Level == "" {
		c.QR.Level = "M"
	}
	if c.QR.DarkColor == "" {
		c.QR.DarkColor = "#1e293b"
	}
	if c.QR.LightColor == "" {
		c.QR.LightColor = "#ffffff"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks if the configuration is valid. Problems with the
// certificate section are reported as certificate config errors.
func (c *Config) Validate() error {
	// Certificate validation
	if c.Certificate.SecretKey == "" {
		return certificate.ConfigError("certificate.secret_key is required")
	}
	if strings.TrimSpace(c.Certificate.Issuer) == "" {
		return certificate.ConfigError("certificate.issuer is required")
	}
	if c.Certificate.BaseURL == "" {
		return certificate.ConfigError("certificate.base_url is required")
	}
	if !strings.HasPrefix(c.Certificate.BaseURL, "http://") && !strings.HasPrefix(c.Certificate.BaseURL, "https://") {
		return certificate.ConfigError("certificate.base_url must start with http:// or https://")
	}

	// Server validation
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	// QR validation
	if _, err := c.QROptions(); err != nil {
		return fmt.Errorf("qr settings are invalid: %w", err)
	}

	// Admin validation
	if c.Admin.Token == "your-secure-admin-token-change-me-in-production" {
		fmt.Fprintf(os.Stderr, "WARNING: Using default admin token. Please change it in production!\n")
	}

	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// QROptions converts the qr section into rendering options
func (c *Config) QROptions() (qrcode.Options, error) {
	if _, err := qrcode.ParseLevel(c.QR.Level); err != nil {
		return qrcode.Options{}, err
	}
	dark, err := qrcode.ParseHexColor(c.QR.DarkColor)
	if err != nil {
		return qrcode.Options{}, err
	}
	light, err := qrcode.ParseHexColor(c.QR.LightColor)
	if err != nil {
		return qrcode.Options{}, err
	}
	return qrcode.Options{
		Size:  c.QR.Size,
		Level: c.QR.Level,
		Dark:  dark,
		Light: light,
	}, nil
}

// AuditRetention returns how long audit entries are kept, zero meaning
// forever
func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

// AdminEnabled reports whether admin endpoints are available
func (c *Config) AdminEnabled() bool {
	return c.Admin.Token != ""
}
