package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certlink/internal/db/repository"
	"github.com/adamscao/certlink/internal/models"
)

// AdminHandler handles administrative operations
type AdminHandler struct {
	certRepo  *repository.CertRepository
	auditRepo *repository.AuditRepository
	audit     *Auditor
	logger    *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(certRepo *repository.CertRepository, auditRepo *repository.AuditRepository, audit *Auditor, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		certRepo:  certRepo,
		auditRepo: auditRepo,
		audit:     audit,
		logger:    logger,
	}
}

// ImportResponse represents a registry import response
type ImportResponse struct {
	Status   string `json:"status"`
	Imported int    `json:"imported"`
	Total    int    `json:"total"`
}

// ImportRegistry stores registry entries in the database
// POST /v1/admin/registry
func (h *AdminHandler) ImportRegistry(c *gin.Context) {
	if h.certRepo == nil {
		RespondError(c, http.StatusServiceUnavailable, "database_disabled", "No database is configured")
		return
	}

	var entries []*models.Certificate
	if err := c.ShouldBindJSON(&entries); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Request body must be a JSON array of certificates")
		return
	}

	for i, entry := range entries {
		if entry == nil || entry.LookupKey() == "" {
			RespondError(c, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("entry %d has neither id nor certificateId", i))
			return
		}
	}

	if err := h.certRepo.Import(c.Request.Context(), entries); err != nil {
		h.logger.Error("registry import failed", "entries", len(entries), "error", err)
		h.audit.Record(c, models.ActionRegistryImport, "", err, gin.H{"entries": len(entries)})
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to import registry")
		return
	}

	total, err := h.certRepo.Count(c.Request.Context())
	if err != nil {
		h.logger.Warn("failed to count registry", "error", err)
	}

	h.audit.Record(c, models.ActionRegistryImport, "", nil, gin.H{"entries": len(entries)})

	c.JSON(http.StatusOK, ImportResponse{
		Status:   "ok",
		Imported: len(entries),
		Total:    total,
	})
}

// DefaultAuditWindow is the period counted when no since is given
const DefaultAuditWindow = 24 * time.Hour

// AuditResponse represents an audit listing with per-action counts
type AuditResponse struct {
	Entries []*models.AuditLog `json:"entries"`
	Counts  map[string]int     `json:"counts"`
	Since   time.Time          `json:"since"`
}

// ListAudit lists audit log entries, newest first, and counts every
// action recorded within the since window
// GET /v1/admin/audit?action=&certificate_id=&limit=&since=
func (h *AdminHandler) ListAudit(c *gin.Context) {
	if h.auditRepo == nil {
		RespondError(c, http.StatusServiceUnavailable, "database_disabled", "No database is configured")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			RespondError(c, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	window := DefaultAuditWindow
	if raw := c.Query("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_request", "since must be a positive duration such as 24h")
			return
		}
		window = d
	}
	since := time.Now().UTC().Add(-window)

	logs, err := h.auditRepo.List(c.Request.Context(), repository.AuditFilter{
		Action:        c.Query("action"),
		CertificateID: c.Query("certificate_id"),
		Limit:         limit,
	})
	if err != nil {
		h.logger.Error("failed to list audit logs", "error", err)
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list audit logs")
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	counts := make(map[string]int, len(models.AuditActions))
	for _, action := range models.AuditActions {
		n, err := h.auditRepo.CountByAction(c.Request.Context(), action, since)
		if err != nil {
			h.logger.Error("failed to count audit logs", "action", action, "error", err)
			RespondError(c, http.StatusInternalServerError, "database_error", "Failed to count audit logs")
			return
		}
		counts[action] = n
	}

	c.JSON(http.StatusOK, AuditResponse{Entries: logs, Counts: counts, Since: since})
}
