package models

import (
	"strings"
	"time"

	"github.com/adamscao/certlink/internal/certificate"
)

// Certificate represents a registry entry: a plaintext certificate record
// plus, when issued through this service, its token and issue time.
type Certificate struct {
	RowID          int64     `json:"-" yaml:"-"`
	ID             string    `json:"id,omitempty" yaml:"id,omitempty"`
	CertificateID  string    `json:"certificateId,omitempty" yaml:"certificateId,omitempty"`
	FullName       string    `json:"fullName,omitempty" yaml:"fullName,omitempty"`
	CourseName     string    `json:"courseName,omitempty" yaml:"courseName,omitempty"`
	CompletionDate string    `json:"completionDate,omitempty" yaml:"completionDate,omitempty"`
	Issuer         string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Token          string    `json:"token,omitempty" yaml:"token,omitempty"`
	IssuedAt       time.Time `json:"issuedAt,omitzero" yaml:"issuedAt,omitempty"`
}

// NewCertificate builds a registry entry for an issued record
func NewCertificate(record certificate.Record, token string) *Certificate {
	return &Certificate{
		CertificateID:  record.CertificateID,
		FullName:       record.FullName,
		CourseName:     record.CourseName,
		CompletionDate: record.CompletionDate,
		Issuer:         record.Issuer,
		Token:          token,
	}
}

// Record returns the entry's certificate fields
func (c *Certificate) Record() certificate.Record {
	return certificate.Record{
		CertificateID:  c.CertificateID,
		FullName:       c.FullName,
		CourseName:     c.CourseName,
		CompletionDate: c.CompletionDate,
		Issuer:         c.Issuer,
	}
}

// LookupKey returns the identifier used in links: id, else certificateId
func (c *Certificate) LookupKey() string {
	if c.ID != "" {
		return c.ID
	}
	return c.CertificateID
}

// NormalizeID folds an identifier for lookups: surrounding whitespace
// removed, lower-cased
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Matches reports whether id equals the entry's id or certificateId,
// ignoring case and surrounding whitespace
func (c *Certificate) Matches(id string) bool {
	search := NormalizeID(id)
	if search == "" {
		return false
	}
	for _, candidate := range []string{c.ID, c.CertificateID} {
		if candidate != "" && NormalizeID(candidate) == search {
			return true
		}
	}
	return false
}
