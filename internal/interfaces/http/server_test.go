package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expedition-settlement/internal/config"
	"github.com/garyjia/expedition-settlement/internal/container"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/reconcile"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/report"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type stubExtractor struct {
	total string
	lines []entity.ExtractedLine
}

func (s *stubExtractor) ExtractInvoice(context.Context, []byte, string) (*reconcile.Extraction, error) {
	t := decimal.RequireFromString(s.total)
	return &reconcile.Extraction{Total: &t, Lines: s.lines}, nil
}

type testEnv struct {
	router    http.Handler
	extractor *stubExtractor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()

	db, err := container.ProvideDatabase(&config.DatabaseConfig{Path: filepath.Join(dir, "test.db"), MaxOpenConns: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.SqlDB.Close() })

	repos, err := container.ProvideRepositories(db.SqlDB, logger)
	require.NoError(t, err)
	store, err := container.ProvideStorage(&config.StorageConfig{InvoiceDir: filepath.Join(dir, "invoices")}, logger)
	require.NoError(t, err)

	ley := decimal.NewFromInt(750)
	extractor := &stubExtractor{
		total: "7500",
		lines: []entity.ExtractedLine{{Bruto: decimal.NewFromInt(100), Ley: &ley}},
	}
	services, err := container.ProvideServices(&container.ServiceDeps{
		Repos:     repos,
		TxManager: db.TransactionMgr,
		Storage:   store,
		External:  &container.ExternalBundle{Extractor: extractor},
		Logger:    logger,
	})
	require.NoError(t, err)

	health := func(ctx context.Context) (bool, interface{}) {
		return db.SqlDB.PingContext(ctx) == nil, nil
	}
	server := NewServer(DefaultServerConfig(), Services{
		Packages:     services.Package,
		Expeditions:  services.Expedition,
		Verification: services.Verification,
		Catalog:      services.Catalog,
	}, report.NewExpeditionWorkbook(logger), health, nopLogger{})

	return &testEnv{router: server.Router(), extractor: extractor}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "ana")
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) (int, apiResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

type packageView struct {
	Package struct {
		ID           string                     `json:"id"`
		Number       string                     `json:"number"`
		Lines        []entity.Line              `json:"lines"`
		Comments     []entity.Comment           `json:"comments"`
		Verification *entity.VerificationRecord `json:"verification"`
	} `json:"package"`
	Settlement struct {
		InvoiceTotal decimal.Decimal `json:"invoice_total"`
		IsEstimated  bool            `json:"is_estimated"`
	} `json:"settlement"`
	State string `json:"state"`
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v), string(resp.Data))
	return v
}

// seed creates a client, a category, an expedition priced at 100 €/g fine and
// a package with one line of 100 g at 750.
func (e *testEnv) seed(t *testing.T) (expeditionID, packageID string) {
	t.Helper()

	code, resp := e.do(t, http.MethodPost, "/api/clients", map[string]interface{}{"name": "Joyeria Sol"})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	client := decodeData[entity.Client](t, resp)

	code, resp = e.do(t, http.MethodPost, "/api/categories", map[string]interface{}{"name": "Oro 18k"})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	category := decodeData[entity.Category](t, resp)

	code, resp = e.do(t, http.MethodPost, "/api/expeditions", map[string]interface{}{
		"name":               "Octubre",
		"default_unit_price": "100",
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	exp := decodeData[entity.Expedition](t, resp)

	code, resp = e.do(t, http.MethodPost, "/api/packages", map[string]interface{}{
		"expedition_id": exp.ID,
		"client_id":     client.ID,
		"category_id":   category.ID,
		"number":        "001",
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	pkg := decodeData[packageView](t, resp)

	code, resp = e.do(t, http.MethodPost, "/api/packages/"+pkg.Package.ID+"/lines", map[string]interface{}{
		"bruto": 100,
		"ley":   "750",
	})
	require.Equal(t, http.StatusOK, code, resp.Error)

	return exp.ID, pkg.Package.ID
}

func (e *testEnv) upload(t *testing.T, packageID, name string, content []byte) (int, apiResponse) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/packages/"+packageID+"/invoice", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Actor", "ana")
	return e.serve(t, req)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	code, resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestActorRequiredForMutations(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/categories", bytes.NewReader([]byte(`{"name":"Plata"}`)))
	req.Header.Set("Content-Type", "application/json")
	code, resp := env.serve(t, req)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)

	req = httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	code, _ = env.serve(t, req)
	assert.Equal(t, http.StatusOK, code)
}

func TestPackageLifecycle(t *testing.T) {
	env := newTestEnv(t)
	expID, pkgID := env.seed(t)

	code, resp := env.do(t, http.MethodGet, "/api/packages/"+pkgID, nil)
	require.Equal(t, http.StatusOK, code)
	view := decodeData[packageView](t, resp)
	assert.Equal(t, "7500", view.Settlement.InvoiceTotal.String())
	assert.True(t, view.Settlement.IsEstimated)
	require.Len(t, view.Package.Lines, 1)

	// Comma decimal separator is accepted
	code, resp = env.do(t, http.MethodPatch, "/api/packages/"+pkgID, map[string]interface{}{"discount_percent": "10,0"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	view = decodeData[packageView](t, resp)
	assert.Equal(t, "6750", view.Settlement.InvoiceTotal.String())

	code, resp = env.do(t, http.MethodPost, "/api/packages/"+pkgID+"/comments", map[string]interface{}{"text": "revisar ley"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	view = decodeData[packageView](t, resp)
	require.Len(t, view.Package.Comments, 1)
	assert.Equal(t, "ana", view.Package.Comments[0].Author)

	code, resp = env.do(t, http.MethodPut, "/api/packages/"+pkgID+"/status", map[string]interface{}{"status": entity.StatusReceived})
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = env.do(t, http.MethodPut, "/api/packages/"+pkgID+"/status", map[string]interface{}{"status": "PERDIDO"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, http.MethodGet, "/api/packages/"+pkgID+"/history", nil)
	require.Equal(t, http.StatusOK, code)
	history := decodeData[[]entity.LogEntry](t, resp)
	require.Len(t, history, 5)
	assert.Equal(t, entity.LogCreatePackage, history[0].Kind)
	for _, e := range history {
		assert.Equal(t, "ana", e.Actor)
	}

	code, resp = env.do(t, http.MethodGet, "/api/expeditions/"+expID+"/summary", nil)
	require.Equal(t, http.StatusOK, code)
	summary := decodeData[map[string]interface{}](t, resp)
	assert.EqualValues(t, 1, summary["package_count"])

	code, _ = env.do(t, http.MethodDelete, "/api/packages/"+pkgID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodGet, "/api/packages/"+pkgID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	_, pkgID := env.seed(t)

	code, resp := env.do(t, http.MethodPost, "/api/packages/"+pkgID+"/verify", nil)
	assert.Equal(t, http.StatusConflict, code, "verify without invoice")

	code, resp = env.upload(t, pkgID, "factura.pdf", []byte("%PDF-1.4 test"))
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = env.do(t, http.MethodPost, "/api/packages/"+pkgID+"/validate", nil)
	assert.Equal(t, http.StatusConflict, code, "validate before verify")

	code, resp = env.do(t, http.MethodPost, "/api/packages/"+pkgID+"/verify", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	view := decodeData[packageView](t, resp)
	require.NotNil(t, view.Package.Verification)
	assert.True(t, view.Package.Verification.WeightsMatch)
	assert.True(t, view.Package.Verification.Delta.IsZero())

	code, resp = env.do(t, http.MethodPost, "/api/packages/"+pkgID+"/validate", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	view = decodeData[packageView](t, resp)
	assert.True(t, view.Package.Verification.Validated)

	// Changing the price invalidates the validation and recomputes the delta
	code, resp = env.do(t, http.MethodPut, "/api/packages/"+pkgID+"/unit-price", map[string]interface{}{"price": 110})
	require.Equal(t, http.StatusOK, code, resp.Error)
	view = decodeData[packageView](t, resp)
	assert.False(t, view.Package.Verification.Validated)
	assert.Equal(t, "-750", view.Package.Verification.Delta.String())

	code, resp = env.do(t, http.MethodDelete, "/api/packages/"+pkgID+"/invoice", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
}

func TestUploadRejectsUnsupportedFile(t *testing.T) {
	env := newTestEnv(t)
	_, pkgID := env.seed(t)

	code, resp := env.upload(t, pkgID, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, code, resp.Error)
}

func TestExpeditionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	expID, _ := env.seed(t)

	code, resp := env.do(t, http.MethodGet, "/api/expeditions", nil)
	require.Equal(t, http.StatusOK, code)
	list := decodeData[struct {
		Expeditions []entity.Expedition `json:"expeditions"`
	}](t, resp)
	assert.Len(t, list.Expeditions, 1)

	code, _ = env.do(t, http.MethodGet, "/api/expeditions/"+expID+"/reference-price", nil)
	assert.Equal(t, http.StatusNotFound, code, "no package has its own price")

	code, resp = env.do(t, http.MethodPut, "/api/expeditions/"+expID, map[string]interface{}{"name": "", "default_unit_price": 90})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, http.MethodPut, "/api/expeditions/"+expID, map[string]interface{}{"name": "Octubre", "default_unit_price": "abc"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodGet, "/api/expeditions/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodDelete, "/api/expeditions/"+expID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodGet, "/api/expeditions/"+expID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestExportExpedition(t *testing.T) {
	env := newTestEnv(t)
	expID, _ := env.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/api/expeditions/"+expID+"/export", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "expedicion-Octubre.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Paquetes")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{entity.ErrNotFound, http.StatusNotFound},
		{entity.ErrInvalidInput, http.StatusBadRequest},
		{entity.ErrNoInvoice, http.StatusConflict},
		{entity.ErrNotVerified, http.StatusConflict},
		{entity.ErrStaleVerification, http.StatusConflict},
		{entity.ErrExtractionFailed, http.StatusBadGateway},
		{entity.ErrCascadeFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.CORSOrigin = "https://ops.example.com"
	server := NewServer(cfg, Services{}, nil, nil, nopLogger{})

	req := httptest.NewRequest(http.MethodOptions, "/api/packages", nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Actor")
}
