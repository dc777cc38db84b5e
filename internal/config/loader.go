package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvSecretKey         = "CERTLINK_SECRET_KEY"
	EnvBaseURL           = "CERTLINK_BASE_URL"
	EnvIssuer            = "CERTLINK_ISSUER"
	EnvCertificatePrefix = "CERTLINK_CERTIFICATE_PREFIX"
	EnvDBPath            = "CERTLINK_DB_PATH"
	EnvListenAddr        = "CERTLINK_LISTEN_ADDR"
	EnvAdminToken        = "CERTLINK_ADMIN_TOKEN"
	EnvRegistryFile      = "CERTLINK_REGISTRY_FILE"
)

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment
// variable overrides. A missing file is allowed when the environment
// supplies everything required.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	// Apply environment variable overrides
	if secretKey := os.Getenv(EnvSecretKey); secretKey != "" {
		cfg.Certificate.SecretKey = secretKey
	}

	if baseURL := os.Getenv(EnvBaseURL); baseURL != "" {
		cfg.Certificate.BaseURL = baseURL
	}

	if issuer := os.Getenv(EnvIssuer); issuer != "" {
		cfg.Certificate.Issuer = issuer
	}

	if prefix := os.Getenv(EnvCertificatePrefix); prefix != "" {
		cfg.Certificate.CertificatePrefix = prefix
	}

	if dbPath := os.Getenv(EnvDBPath); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if listenAddr := os.Getenv(EnvListenAddr); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	if adminToken := os.Getenv(EnvAdminToken); adminToken != "" {
		cfg.Admin.Token = adminToken
	}

	if registryFile := os.Getenv(EnvRegistryFile); registryFile != "" {
		cfg.Registry.File = registryFile
	}

	// Validate after env overrides
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}
