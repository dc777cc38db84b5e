package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/certlink/internal/api/handlers"
	"github.com/adamscao/certlink/internal/api/middleware"
	"github.com/adamscao/certlink/internal/auth"
	"github.com/adamscao/certlink/internal/codec"
	"github.com/adamscao/certlink/internal/config"
	"github.com/adamscao/certlink/internal/db"
	"github.com/adamscao/certlink/internal/db/repository"
	"github.com/adamscao/certlink/internal/models"
	"github.com/adamscao/certlink/internal/registry"
)

const (
	testKey        = "s3cr3t"
	testAdminToken = "admin-token"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Certificate = config.CertificateConfig{
		Issuer:            "Acme Academy",
		CertificatePrefix: "CERT-",
		SecretKey:         testKey,
		BaseURL:           "https://certs.example.org/",
	}
	cfg.Registry.PersistIssued = true
	cfg.Admin.Token = testAdminToken
	return cfg
}

type testServer struct {
	*Server
	auditRepo *repository.AuditRepository
}

func newTestServer(t *testing.T, cfg *config.Config, static *registry.Registry) *testServer {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "certlink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	auditRepo := repository.NewAuditRepository(database.DB)
	srv, err := NewServer(cfg, Dependencies{
		CertRepo:  repository.NewCertRepository(database.DB),
		AuditRepo: auditRepo,
		Registry:  static,
	})
	require.NoError(t, err)

	return &testServer{Server: srv, auditRepo: auditRepo}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func (s *testServer) issue(t *testing.T, body string) handlers.IssueResponse {
	t.Helper()
	w := s.do(httptest.NewRequest(http.MethodPost, "/v1/certificates", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp handlers.IssueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func verifyRequest(token string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/v1/certificates/verify?data="+url.QueryEscape(token), nil)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestIssueAndVerify(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	issued := srv.issue(t, `{"certificateId":"CERT-1","fullName":" Jane Doe ","courseName":"Systems 101","completionDate":"2024-03-01"}`)
	assert.Equal(t, "Acme Academy", issued.Certificate.Issuer)
	assert.Equal(t, "Jane Doe", issued.Certificate.FullName)
	assert.Equal(t, "https://certs.example.org/verify.html?data="+url.QueryEscape(issued.Token), issued.URL)
	assert.Equal(t, `{"certificateId":"CERT-1","fullName":"Jane Doe","courseName":"Systems 101","completionDate":"2024-03-01","issuer":"Acme Academy"}`, issued.Payload)

	w := srv.do(verifyRequest(issued.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var verified handlers.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.True(t, verified.Valid)
	assert.Equal(t, issued.Certificate, verified.Certificate)
}

func TestIssueGeneratesID(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	issued := srv.issue(t, `{"fullName":"Jane Doe","courseName":"Systems 101","completionDate":"2024-03-01","issuer":"Own Issuer"}`)
	assert.True(t, strings.HasPrefix(issued.Certificate.CertificateID, "CERT-"))
	assert.Equal(t, "Own Issuer", issued.Certificate.Issuer)
}

func TestIssueValidationError(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	w := srv.do(httptest.NewRequest(http.MethodPost, "/v1/certificates",
		strings.NewReader(`{"courseName":"Systems 101","completionDate":"2024-03-01"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, "validation_error", resp.Error)
	assert.Equal(t, "fullName", resp.Field)
	assert.Equal(t, "missing required field: fullName", resp.Message)
}

func TestIssueRejectsNonObject(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	w := srv.do(httptest.NewRequest(http.MethodPost, "/v1/certificates", strings.NewReader(`["a"]`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Error)
}

func TestVerifyErrors(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	foreign, err := codec.Encode(map[string]any{
		"certificateId":  "CERT-1",
		"fullName":       "Jane Doe",
		"courseName":     "Systems 101",
		"completionDate": "2024-03-01",
		"issuer":         "Acme Academy",
	}, "wrong")
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{"empty", "", http.StatusBadRequest, "invalid_token"},
		{"bad alphabet", "***", http.StatusBadRequest, "invalid_token"},
		{"wrong key", foreign.Token, http.StatusUnprocessableEntity, "tampered_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(verifyRequest(tt.token))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Error)
		})
	}
}

func TestQRCode(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	issued := srv.issue(t, `{"certificateId":"CERT-1","fullName":"Jane Doe","courseName":"Systems 101","completionDate":"2024-03-01"}`)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/v1/certificates/qr?data="+url.QueryEscape(issued.Token), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 210, img.Bounds().Dx())
	assert.Equal(t, 210, img.Bounds().Dy())

	w = srv.do(httptest.NewRequest(http.MethodGet, "/v1/certificates/qr?data=***", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func batchRequest(t *testing.T, target, csv string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "students.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const batchCSV = "fullName,courseName,completionDate\n" +
	"Jane Doe,Systems 101,2024-03-01\n" +
	"John Roe,,2024-03-02\n" +
	"Ana Lima,Go Basics,2024-03-03\n"

func TestIssueBatchJSON(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	w := srv.do(batchRequest(t, "/v1/certificates/batch", batchCSV))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp handlers.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Rows, 3)

	assert.Equal(t, "Ready", resp.Rows[0].Status)
	assert.Equal(t, "Error: missing required field: courseName", resp.Rows[1].Status)
	assert.Equal(t, "validation_error", resp.Rows[1].ErrorKind)
	assert.Empty(t, resp.Rows[1].Token)
	assert.Equal(t, "Ready", resp.Rows[2].Status)
	assert.Equal(t, "Acme Academy", resp.Rows[2].Certificate.Issuer)

	// persisted rows are visible through the registry
	w = srv.do(httptest.NewRequest(http.MethodGet, "/v1/registry/"+resp.Rows[2].Certificate.CertificateID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIssueBatchZip(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	w := srv.do(batchRequest(t, "/v1/certificates/batch?format=zip", batchCSV))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "qr-codes-")

	archive, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	assert.Len(t, archive.File, 2)
	for _, f := range archive.File {
		assert.True(t, strings.HasSuffix(f.Name, ".png"), f.Name)
	}
}

func TestIssueBatchRejectsBadInput(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.MaxRows = 2
	srv := newTestServer(t, cfg, nil)

	w := srv.do(batchRequest(t, "/v1/certificates/batch", "fullName,completionDate\nJane,2024-03-01\n"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeError(t, w).Error)

	w = srv.do(batchRequest(t, "/v1/certificates/batch", batchCSV))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = srv.do(httptest.NewRequest(http.MethodPost, "/v1/certificates/batch", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistryLookup(t *testing.T) {
	static := registry.New([]models.Certificate{
		{ID: "static-1", CertificateID: "CERT-OLD", FullName: "Bo Chen", CourseName: "Rust", CompletionDate: "2023-01-01", Issuer: "Acme Academy"},
	})
	srv := newTestServer(t, testConfig(), static)
	srv.issue(t, `{"certificateId":"CERT-1","fullName":"Jane Doe","courseName":"Systems 101","completionDate":"2024-03-01"}`)

	tests := []struct {
		id     string
		status int
		source string
		name   string
	}{
		{"cert-1", http.StatusOK, "database", "Jane Doe"},
		{"STATIC-1", http.StatusOK, "file", "Bo Chen"},
		{"cert-old", http.StatusOK, "file", "Bo Chen"},
		{"CERT-404", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			w := srv.do(httptest.NewRequest(http.MethodGet, "/v1/registry/"+tt.id, nil))
			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				assert.Equal(t, "not_found", decodeError(t, w).Error)
				return
			}
			var resp handlers.LookupResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.source, resp.Source)
			assert.Equal(t, tt.name, resp.Certificate.FullName)
		})
	}
}

func adminRequest(method, target, body, token string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set(middleware.AdminTokenHeader, token)
	}
	return req
}

func TestAdminAuth(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	w := srv.do(adminRequest(http.MethodGet, "/v1/admin/audit", "", ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := adminRequest(http.MethodGet, "/v1/admin/audit", "", "nope")
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w = srv.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(adminRequest(http.MethodGet, "/v1/admin/audit?action="+models.ActionAuthFailed, "", testAdminToken))
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.AuditResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, 2, resp.Counts[models.ActionAuthFailed])
	assert.Equal(t, 0, resp.Counts[models.ActionCertIssue])
	assert.Len(t, resp.Counts, len(models.AuditActions))

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Entries[0].Details), &details))
	assert.Equal(t, "req-42", details["request_id"])
	assert.NotEmpty(t, resp.Entries[1].Details)
}

func TestAdminAuditWindow(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	old := &models.AuditLog{
		Action:    models.ActionCertVerify,
		ClientIP:  "10.0.0.1",
		Success:   true,
		Timestamp: time.Now().UTC().Add(-72 * time.Hour),
	}
	require.NoError(t, srv.auditRepo.Create(t.Context(), old))
	srv.issue(t, `{"certificateId":"CERT-1","fullName":"Jane Doe","courseName":"Systems 101","completionDate":"2024-03-01"}`)

	counts := func(target string) map[string]int {
		w := srv.do(adminRequest(http.MethodGet, target, "", testAdminToken))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp handlers.AuditResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Counts
	}

	recent := counts("/v1/admin/audit")
	assert.Equal(t, 0, recent[models.ActionCertVerify])
	assert.Equal(t, 1, recent[models.ActionCertIssue])

	week := counts("/v1/admin/audit?since=168h")
	assert.Equal(t, 1, week[models.ActionCertVerify])

	w := srv.do(adminRequest(http.MethodGet, "/v1/admin/audit?since=yesterday", "", testAdminToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.Token = ""
	srv := newTestServer(t, cfg, nil)

	w := srv.do(adminRequest(http.MethodGet, "/v1/admin/audit", "", "anything"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminTOTP(t *testing.T) {
	key, err := auth.GenerateTOTPSecret("", "admin")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Admin.TOTPSecret = key.Secret
	srv := newTestServer(t, cfg, nil)

	w := srv.do(adminRequest(http.MethodGet, "/v1/admin/audit", "", testAdminToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	code, err := auth.GenerateCode(key.Secret, time.Now())
	require.NoError(t, err)
	req := adminRequest(http.MethodGet, "/v1/admin/audit", "", testAdminToken)
	req.Header.Set(middleware.AdminTOTPHeader, code)
	w = srv.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminImportRegistry(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	body := `[{"id":"short-1","certificateId":"CERT-9","fullName":"Ana Lima","courseName":"Go","completionDate":"2024-01-01","issuer":"Acme"}]`
	w := srv.do(adminRequest(http.MethodPost, "/v1/admin/registry", body, testAdminToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp handlers.ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Imported)
	assert.Equal(t, 1, resp.Total)

	w = srv.do(httptest.NewRequest(http.MethodGet, "/v1/registry/SHORT-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(adminRequest(http.MethodPost, "/v1/admin/registry", `[{"fullName":"No Id"}]`, testAdminToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	logs, err := srv.auditRepo.List(t.Context(), repository.AuditFilter{Action: models.ActionRegistryImport})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestVerifyPage(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	issued := srv.issue(t, `{"certificateId":"CERT-1","fullName":"Jane Doe","courseName":"Systems 101","completionDate":"2024-03-01"}`)

	tests := []struct {
		name     string
		target   string
		status   int
		contains string
	}{
		{"issued link", issued.URL, http.StatusOK, "March 1, 2024"},
		{"malformed token", "/verify.html?data=***", http.StatusBadRequest, "malformed"},
		{"registry id", "/verify.html?id=cert-1", http.StatusOK, "Record found."},
		{"unknown id", "/verify.html?id=CERT-404", http.StatusNotFound, "No matching certificate in the registry."},
		{"empty", "/verify.html", http.StatusOK, "Enter a certificate ID."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestVerifyPageEscapesRecord(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	issued := srv.issue(t, `{"certificateId":"CERT-1","fullName":"<script>alert(1)</script>","courseName":"Systems 101","completionDate":"2024-03-01"}`)

	w := srv.do(httptest.NewRequest(http.MethodGet, issued.URL, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, w.Body.String(), "&lt;script&gt;")
}
