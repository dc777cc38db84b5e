package models

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	CertificateID string    `json:"certificate_id,omitempty"`
	ClientIP      string    `json:"client_ip"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Success       bool      `json:"success"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ErrorMsg      string    `json:"error_msg,omitempty"`
	Details       string    `json:"details,omitempty"` // JSON
}

// Audit action constants
const (
	ActionCertIssue      = "cert_issue"
	ActionCertVerify     = "cert_verify"
	ActionBatchIssue     = "batch_issue"
	ActionRegistryImport = "registry_import"
	ActionAuthFailed     = "auth_failed"
)

// AuditActions lists every action the service records
var AuditActions = []string{
	ActionCertIssue,
	ActionCertVerify,
	ActionBatchIssue,
	ActionRegistryImport,
	ActionAuthFailed,
}
