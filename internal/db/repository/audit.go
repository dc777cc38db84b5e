package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adamscao/certlink/internal/models"
)

// AuditRepository handles audit log data access
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilter narrows List results; zero fields match everything
type AuditFilter struct {
	Action        string
	CertificateID string
	Limit         int
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			timestamp, action, certificate_id, client_ip, user_agent,
			success, error_kind, error_msg, details
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	success := 0
	if log.Success {
		success = 1
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		log.Timestamp,
		log.Action,
		log.CertificateID,
		log.ClientIP,
		log.UserAgent,
		success,
		log.ErrorKind,
		log.ErrorMsg,
		log.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	log.ID = id
	return nil
}

// List lists audit logs, newest first
func (r *AuditRepository) List(ctx context.Context, filter AuditFilter) ([]*models.AuditLog, error) {
	query := `
		SELECT id, timestamp, action, certificate_id, client_ip, user_agent,
		       success, error_kind, error_msg, details
		FROM audit_logs
		WHERE 1=1
	`
	args := []any{}

	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}

	if filter.CertificateID != "" {
		query += " AND certificate_id = ?"
		args = append(args, filter.CertificateID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog

	for rows.Next() {
		log := &models.AuditLog{}
		var success int
		var certificateID, userAgent, errorKind, errorMsg, details sql.NullString

		err := rows.Scan(
			&log.ID,
			&log.Timestamp,
			&log.Action,
			&certificateID,
			&log.ClientIP,
			&userAgent,
			&success,
			&errorKind,
			&errorMsg,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		log.Success = success == 1
		log.CertificateID = certificateID.String
		log.UserAgent = userAgent.String
		log.ErrorKind = errorKind.String
		log.ErrorMsg = errorMsg.String
		log.Details = details.String

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// CountByAction counts audit logs by action type
func (r *AuditRepository) CountByAction(ctx context.Context, action string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM audit_logs
		WHERE action = ? AND timestamp >= ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, action, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return count, nil
}

// DeleteOld deletes audit logs older than the given time
func (r *AuditRepository) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}
