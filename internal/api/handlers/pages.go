package handlers

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certlink/internal/certificate"
	"github.com/adamscao/certlink/internal/codec"
	"github.com/adamscao/certlink/internal/models"
	"github.com/adamscao/certlink/internal/registry"
	"github.com/adamscao/certlink/internal/verifyurl"
)

// PageHandler serves the human-facing verification page that
// verification links point at
type PageHandler struct {
	codec    *codec.Codec
	registry *RegistryHandler
	audit    *Auditor
	page     *template.Template
	logger   *slog.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(c *codec.Codec, reg *RegistryHandler, audit *Auditor, logger *slog.Logger) *PageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageHandler{
		codec:    c,
		registry: reg,
		audit:    audit,
		page:     template.Must(template.New("verify").Parse(verifyPageTemplate)),
		logger:   logger,
	}
}

// verifyPage is the data rendered by the template
type verifyPage struct {
	Status string
	Error  string
	Query  string
	Record *pageRecord
}

type pageRecord struct {
	CertificateID  string
	FullName       string
	CourseName     string
	CompletionDate string
	Issuer         string
}

// VerifyPage shows the certificate carried by ?data=<token>, or looks
// up ?id=<certificateId> in the registry
// GET /verify.html
func (h *PageHandler) VerifyPage(c *gin.Context) {
	var page verifyPage
	status := http.StatusOK

	switch {
	case c.Query(verifyurl.DataParam) != "":
		record, err := h.codec.Decode(c.Query(verifyurl.DataParam))
		if err != nil {
			h.audit.Record(c, models.ActionCertVerify, "", err, gin.H{"source": "page"})
			status = pageStatus(err)
			page.Status = "Certificate could not be verified."
			page.Error = pageMessage(err)
			break
		}
		h.audit.Record(c, models.ActionCertVerify, record.CertificateID, nil, gin.H{"source": "page"})
		page.Status = "Certificate verified."
		page.Record = recordForPage(record)

	case strings.TrimSpace(c.Query("id")) != "":
		id := strings.TrimSpace(c.Query("id"))
		page.Query = id
		cert, _, err := h.registry.find(c, id)
		if err != nil {
			if !errors.Is(err, registry.ErrNotFound) {
				h.logger.Error("registry lookup failed", "id", id, "error", err)
				status = http.StatusInternalServerError
				page.Error = "Registry lookup failed."
			} else {
				status = http.StatusNotFound
				page.Error = "No matching certificate in the registry."
			}
			page.Status = "No record found."
			break
		}
		page.Status = "Record found."
		page.Record = recordForPage(cert.Record())

	default:
		page.Status = "Enter a certificate ID."
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := h.page.Execute(c.Writer, page); err != nil {
		h.logger.Error("failed to render verification page", "error", err)
	}
}

func pageStatus(err error) int {
	switch certificate.KindOf(err) {
	case certificate.KindIntegrity:
		return http.StatusUnprocessableEntity
	case certificate.KindConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func pageMessage(err error) string {
	switch certificate.KindOf(err) {
	case certificate.KindFormat:
		return "The certificate link is malformed or incomplete."
	case certificate.KindIntegrity:
		return "The certificate link is invalid or has been tampered with."
	case certificate.KindValidation:
		return "The certificate is missing required information."
	default:
		return "The certificate could not be checked right now."
	}
}

func recordForPage(record certificate.Record) *pageRecord {
	dash := func(s string) string {
		if s == "" {
			return "—"
		}
		return s
	}
	return &pageRecord{
		CertificateID:  dash(record.CertificateID),
		FullName:       dash(record.FullName),
		CourseName:     dash(record.CourseName),
		CompletionDate: formatDate(record.CompletionDate),
		Issuer:         dash(record.Issuer),
	}
}

// formatDate renders ISO dates as "March 1, 2024" and leaves anything
// else untouched
func formatDate(value string) string {
	if value == "" {
		return "—"
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("January 2, 2006")
		}
	}
	return value
}

const verifyPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Certificate verification</title>
<style>
body { font-family: system-ui, sans-serif; color: #1e293b; max-width: 40rem; margin: 2rem auto; padding: 0 1rem; }
.card { border: 1px solid #cbd5e1; border-radius: 8px; padding: 1rem 1.5rem; margin-top: 1rem; }
.error { border-color: #dc2626; color: #991b1b; }
dt { font-weight: 600; margin-top: .5rem; }
</style>
</head>
<body>
<h1>Certificate verification</h1>
<form method="get" action="">
<input type="text" name="id" value="{{.Query}}" placeholder="Certificate ID">
<button type="submit">Verify</button>
</form>
<p id="status-text">{{.Status}}</p>
{{with .Record}}
<div class="card" id="record-card">
<h2>{{.FullName}}</h2>
<dl>
<dt>Certificate ID</dt><dd>{{.CertificateID}}</dd>
<dt>Name</dt><dd>{{.FullName}}</dd>
<dt>Course</dt><dd>{{.CourseName}}</dd>
<dt>Completed</dt><dd>{{.CompletionDate}}</dd>
<dt>Issuer</dt><dd>{{.Issuer}}</dd>
</dl>
</div>
{{end}}
{{with .Error}}
<div class="card error" id="error-card"><p>{{.}}</p></div>
{{end}}
</body>
</html>
`
