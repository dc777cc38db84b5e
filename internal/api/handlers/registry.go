package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certlink/internal/db/repository"
	"github.com/adamscao/certlink/internal/models"
	"github.com/adamscao/certlink/internal/registry"
)

// RegistryHandler answers registry lookups from the database and the
// static registry file
type RegistryHandler struct {
	certRepo *repository.CertRepository
	static   *registry.Registry
	logger   *slog.Logger
}

// NewRegistryHandler creates a new registry handler. Either source may
// be nil.
func NewRegistryHandler(certRepo *repository.CertRepository, static *registry.Registry, logger *slog.Logger) *RegistryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryHandler{
		certRepo: certRepo,
		static:   static,
		logger:   logger,
	}
}

// LookupResponse represents a registry hit
type LookupResponse struct {
	Found       bool                `json:"found"`
	Source      string              `json:"source"`
	Certificate *models.Certificate `json:"certificate"`
}

// Lookup finds a certificate by id or certificateId
// GET /v1/registry/:id
func (h *RegistryHandler) Lookup(c *gin.Context) {
	id := c.Param("id")

	cert, source, err := h.find(c, id)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			h.logger.Error("registry lookup failed", "id", id, "error", err)
			RespondError(c, http.StatusInternalServerError, "database_error", "Registry lookup failed")
			return
		}
		RespondCertError(c, err)
		return
	}

	c.JSON(http.StatusOK, LookupResponse{
		Found:       true,
		Source:      source,
		Certificate: cert,
	})
}

func (h *RegistryHandler) find(c *gin.Context, id string) (*models.Certificate, string, error) {
	if h.certRepo != nil {
		cert, err := h.certRepo.GetByCertificateID(c.Request.Context(), id)
		if err == nil {
			return cert, "database", nil
		}
		if !errors.Is(err, registry.ErrNotFound) {
			return nil, "", err
		}
	}

	cert, err := h.static.Lookup(id)
	if err != nil {
		return nil, "", err
	}
	return cert, "file", nil
}
