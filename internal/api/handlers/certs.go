package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certlink/internal/batch"
	"github.com/adamscao/certlink/internal/certificate"
	"github.com/adamscao/certlink/internal/codec"
	"github.com/adamscao/certlink/internal/config"
	"github.com/adamscao/certlink/internal/db/repository"
	"github.com/adamscao/certlink/internal/models"
	"github.com/adamscao/certlink/internal/qrcode"
	"github.com/adamscao/certlink/internal/verifyurl"
)

// CertHandler handles certificate issuance and verification
type CertHandler struct {
	config   *config.Config
	codec    *codec.Codec
	qr       qrcode.Options
	certRepo *repository.CertRepository
	audit    *Auditor
	logger   *slog.Logger
}

// NewCertHandler creates a new certificate handler. certRepo may be nil
// when persistence is disabled.
func NewCertHandler(cfg *config.Config, c *codec.Codec, certRepo *repository.CertRepository, audit *Auditor, logger *slog.Logger) (*CertHandler, error) {
	qr, err := cfg.QROptions()
	if err != nil {
		return nil, fmt.Errorf("failed to build qr options: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CertHandler{
		config:   cfg,
		codec:    c,
		qr:       qr,
		certRepo: certRepo,
		audit:    audit,
		logger:   logger,
	}, nil
}

// IssueResponse represents a certificate issue response
type IssueResponse struct {
	Certificate certificate.Record `json:"certificate"`
	Token       string             `json:"token"`
	URL         string             `json:"url"`
	Payload     string             `json:"payload"`
}

// VerifyResponse represents a successful verification
type VerifyResponse struct {
	Valid       bool               `json:"valid"`
	Certificate certificate.Record `json:"certificate"`
}

// BatchRow is one row of a batch response
type BatchRow struct {
	Index       int                `json:"index"`
	Status      string             `json:"status"`
	Certificate certificate.Record `json:"certificate"`
	Token       string             `json:"token,omitempty"`
	URL         string             `json:"url,omitempty"`
	Error       string             `json:"error,omitempty"`
	ErrorKind   string             `json:"error_kind,omitempty"`
}

// BatchResponse represents a batch issue response
type BatchResponse struct {
	ID        string     `json:"id"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Rows      []BatchRow `json:"rows"`
}

// IssueCertificate encodes a single certificate. A missing issuer falls
// back to the configured one and a missing certificateId is generated.
// POST /v1/certificates
func (h *CertHandler) IssueCertificate(c *gin.Context) {
	var fields certificate.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object")
		return
	}
	if fields == nil {
		fields = certificate.Fields{}
	}

	if isBlank(fields[certificate.FieldIssuer]) {
		fields[certificate.FieldIssuer] = h.config.Certificate.Issuer
	}
	if isBlank(fields[certificate.FieldCertificateID]) {
		fields[certificate.FieldCertificateID] = certificate.NewID(h.config.Certificate.CertificatePrefix)
	}

	encoded, err := h.codec.Encode(fields)
	if err != nil {
		h.audit.Record(c, models.ActionCertIssue, "", err, nil)
		RespondCertError(c, err)
		return
	}

	record := encoded.Record
	link := verifyurl.Build(h.config.Certificate.BaseURL, encoded.Token)

	if h.persistIssued() {
		cert := models.NewCertificate(record, encoded.Token)
		if err := h.certRepo.Create(c.Request.Context(), cert); err != nil {
			h.logger.Error("failed to store issued certificate", "certificate_id", record.CertificateID, "error", err)
			RespondError(c, http.StatusInternalServerError, "database_error", "Failed to store certificate")
			return
		}
	}

	h.audit.Record(c, models.ActionCertIssue, record.CertificateID, nil, nil)

	c.JSON(http.StatusCreated, IssueResponse{
		Certificate: record,
		Token:       encoded.Token,
		URL:         link,
		Payload:     encoded.Payload,
	})
}

// VerifyCertificate decodes a token from the data query parameter
// GET /v1/certificates/verify?data=<token>
func (h *CertHandler) VerifyCertificate(c *gin.Context) {
	record, err := h.codec.Decode(c.Query(verifyurl.DataParam))
	if err != nil {
		h.audit.Record(c, models.ActionCertVerify, "", err, nil)
		RespondCertError(c, err)
		return
	}

	h.audit.Record(c, models.ActionCertVerify, record.CertificateID, nil, nil)

	c.JSON(http.StatusOK, VerifyResponse{
		Valid:       true,
		Certificate: record,
	})
}

// QRCode renders the verification link of a valid token as PNG
// GET /v1/certificates/qr?data=<token>
func (h *CertHandler) QRCode(c *gin.Context) {
	record, err := h.codec.Decode(c.Query(verifyurl.DataParam))
	if err != nil {
		RespondCertError(c, err)
		return
	}

	// Re-encoding yields the canonical spelling of the token
	encoded, err := h.codec.EncodeRecord(record)
	if err != nil {
		RespondCertError(c, err)
		return
	}

	png, err := qrcode.Render(verifyurl.Build(h.config.Certificate.BaseURL, encoded.Token), h.qr)
	if err != nil {
		h.logger.Error("failed to render qr code", "certificate_id", record.CertificateID, "error", err)
		RespondError(c, http.StatusInternalServerError, "qr_error", "Failed to render QR code")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", record.CertificateID+".png"))
	c.Data(http.StatusOK, "image/png", png)
}

// IssueBatch issues one certificate per CSV row of the uploaded file.
// With ?format=zip the response is an archive of QR codes instead of JSON.
// POST /v1/certificates/batch
func (h *CertHandler) IssueBatch(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Multipart field 'file' is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Failed to read uploaded file")
		return
	}
	defer file.Close()

	rows, err := batch.ReadCSV(file)
	if err != nil {
		h.audit.Record(c, models.ActionBatchIssue, "", err, gin.H{"file": header.Filename})
		RespondCertError(c, err)
		return
	}
	if len(rows) == 0 {
		RespondError(c, http.StatusBadRequest, "validation_error", "CSV file has no data rows")
		return
	}
	if limit := h.config.Batch.MaxRows; limit > 0 && len(rows) > limit {
		RespondError(c, http.StatusRequestEntityTooLarge, "too_many_rows",
			fmt.Sprintf("CSV file has %d rows, the limit is %d", len(rows), limit))
		return
	}

	result, err := batch.Process(c.Request.Context(), rows, batch.Options{
		Key:     h.config.Certificate.SecretKey,
		Prefix:  h.config.Certificate.CertificatePrefix,
		Issuer:  h.config.Certificate.Issuer,
		BaseURL: h.config.Certificate.BaseURL,
		Workers: h.config.Batch.Workers,
		QR:      h.qr,
	})
	if err != nil {
		h.logger.Warn("batch interrupted", "error", err)
		RespondCertError(c, err)
		return
	}

	succeeded := result.Succeeded()
	if h.persistIssued() && len(succeeded) > 0 {
		certs := make([]*models.Certificate, 0, len(succeeded))
		for _, row := range succeeded {
			certs = append(certs, models.NewCertificate(row.Certificate, row.Token))
		}
		if err := h.certRepo.Import(c.Request.Context(), certs); err != nil {
			h.logger.Error("failed to store batch", "batch_id", result.ID, "error", err)
			RespondError(c, http.StatusInternalServerError, "database_error", "Failed to store certificates")
			return
		}
	}

	h.audit.Record(c, models.ActionBatchIssue, "", nil, gin.H{
		"batch_id":  result.ID,
		"file":      header.Filename,
		"succeeded": len(succeeded),
		"failed":    len(rows) - len(succeeded),
	})

	if strings.EqualFold(c.Query("format"), "zip") {
		c.Header("Content-Type", "application/zip")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.ZipName()))
		c.Status(http.StatusOK)
		if err := result.Zip(c.Writer); err != nil {
			// Headers are gone; all that is left is to log
			h.logger.Error("failed to write batch archive", "batch_id", result.ID, "error", err)
		}
		return
	}

	resp := BatchResponse{
		ID:        result.ID,
		Succeeded: len(succeeded),
		Failed:    len(rows) - len(succeeded),
		Rows:      make([]BatchRow, 0, len(result.Rows)),
	}
	for _, row := range result.Rows {
		out := BatchRow{
			Index:       row.Index,
			Status:      row.Status(),
			Certificate: row.Certificate,
			Token:       row.Token,
			URL:         row.URL,
		}
		if row.Err != nil {
			out.Error = row.Err.Error()
			out.ErrorKind = certificate.KindOf(row.Err).String()
		}
		resp.Rows = append(resp.Rows, out)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *CertHandler) persistIssued() bool {
	return h.config.Registry.PersistIssued && h.certRepo != nil
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}
