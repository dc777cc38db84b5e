package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certlink/internal/api/middleware"
	"github.com/adamscao/certlink/internal/certificate"
	"github.com/adamscao/certlink/internal/db/repository"
	"github.com/adamscao/certlink/internal/models"
)

// Auditor writes audit log entries. A nil repository turns it into a
// logger only.
type Auditor struct {
	repo   *repository.AuditRepository
	logger *slog.Logger
}

// NewAuditor creates an auditor
func NewAuditor(repo *repository.AuditRepository, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{repo: repo, logger: logger}
}

// Record stores the outcome of action for the current request. The
// request id assigned by middleware.Logger is added to details.
func (a *Auditor) Record(c *gin.Context, action, certificateID string, err error, details gin.H) {
	if a == nil {
		return
	}

	entry := &models.AuditLog{
		Action:        action,
		CertificateID: certificateID,
		ClientIP:      GetClientIP(c),
		UserAgent:     c.GetHeader("User-Agent"),
		Success:       err == nil,
	}
	if err != nil {
		entry.ErrorKind = certificate.KindOf(err).String()
		entry.ErrorMsg = err.Error()
	}
	requestID := middleware.RequestID(c)
	if requestID != "" {
		tagged := gin.H{"request_id": requestID}
		for k, v := range details {
			tagged[k] = v
		}
		details = tagged
	}
	if len(details) > 0 {
		if data, jsonErr := json.Marshal(details); jsonErr == nil {
			entry.Details = string(data)
		}
	}

	a.logger.Info("audit",
		"request_id", requestID,
		"action", action,
		"certificate_id", certificateID,
		"client_ip", entry.ClientIP,
		"success", entry.Success,
		"error_kind", entry.ErrorKind,
	)

	if a.repo == nil {
		return
	}
	// The audit write must not be cancelled with the request
	if repoErr := a.repo.Create(context.WithoutCancel(c.Request.Context()), entry); repoErr != nil {
		a.logger.Error("failed to write audit log", "action", action, "error", repoErr)
	}
}
