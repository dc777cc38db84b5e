package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/certlink/internal/models"
	"github.com/adamscao/certlink/internal/registry"
)

const certColumns = `id, registry_id, certificate_id, full_name, course_name,
		       completion_date, issuer, token, issued_at`

// CertRepository handles issued and imported certificate data access
type CertRepository struct {
	db *sql.DB
}

// NewCertRepository creates a new certificate repository
func NewCertRepository(db *sql.DB) *CertRepository {
	return &CertRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create stores a certificate entry
func (r *CertRepository) Create(ctx context.Context, cert *models.Certificate) error {
	return insertCert(ctx, r.db, cert)
}

// Import stores entries in one transaction; nothing is kept if any
// insert fails.
func (r *CertRepository) Import(ctx context.Context, certs []*models.Certificate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	for _, cert := range certs {
		if err := insertCert(ctx, tx, cert); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

func insertCert(ctx context.Context, db execer, cert *models.Certificate) error {
	query := `
		INSERT INTO certificates (
			registry_id, certificate_id, full_name, course_name,
			completion_date, issuer, token, issued_at,
			registry_key, certificate_key
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}

	result, err := db.ExecContext(ctx, query,
		cert.ID,
		cert.CertificateID,
		cert.FullName,
		cert.CourseName,
		cert.CompletionDate,
		cert.Issuer,
		cert.Token,
		cert.IssuedAt,
		models.NormalizeID(cert.ID),
		models.NormalizeID(cert.CertificateID),
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	cert.RowID = id
	return nil
}

// GetByCertificateID returns the earliest stored entry whose registry id
// or certificate id matches, ignoring case and surrounding whitespace.
// It returns registry.ErrNotFound when nothing matches.
func (r *CertRepository) GetByCertificateID(ctx context.Context, id string) (*models.Certificate, error) {
	key := models.NormalizeID(id)
	if key == "" {
		return nil, registry.ErrNotFound
	}

	query := `
		SELECT ` + certColumns + `
		FROM certificates
		WHERE registry_key = ?1 OR certificate_key = ?1
		ORDER BY id ASC
		LIMIT 1
	`

	cert, err := scanCert(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return cert, nil
}

// List lists the most recently stored entries
func (r *CertRepository) List(ctx context.Context, limit int) ([]*models.Certificate, error) {
	query := `
		SELECT ` + certColumns + `
		FROM certificates
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := scanCert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	return certs, rows.Err()
}

// Count returns the number of stored entries
func (r *CertRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count certificates: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCert(row scanner) (*models.Certificate, error) {
	cert := &models.Certificate{}
	err := row.Scan(
		&cert.RowID,
		&cert.ID,
		&cert.CertificateID,
		&cert.FullName,
		&cert.CourseName,
		&cert.CompletionDate,
		&cert.Issuer,
		&cert.Token,
		&cert.IssuedAt,
	)
	if err != nil {
		return nil, err
	}
	return cert, nil
}
