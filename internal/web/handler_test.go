package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/models/config"
	"tuition-ledger/internal/repository/memory"
	packages_service "tuition-ledger/internal/service/packages"
	"tuition-ledger/internal/service/settlement"
	"tuition-ledger/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var sessionStart = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type apiResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Error     string          `json:"error"`
	ErrorCode string          `json:"error_code"`
	Data      json.RawMessage `json:"data"`
	Details   map[string]any  `json:"details"`
}

func newTestApp(t *testing.T) (*fiber.App, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	studentID := int64(10)
	store.AddSession(models.ClassSession{
		ID: 1, ClassID: 1, CourseID: 100,
		StartAt: sessionStart, EndAt: sessionStart.Add(60 * time.Minute),
		StudentID: &studentID, Capacity: 1,
	})

	logger := zap.NewNop()
	orch := settlement.NewOrchestrator(store.Repositories(), store,
		config.SettlementConfig{ExcusedChargeThreshold: 4, Timeout: time.Second}, logger)
	packages := packages_service.NewPackageService(store.Repositories(), store, logger)

	h := NewHandler(orch, packages, validator.New(), logger)
	app := fiber.New()
	h.Register(app)
	return app, store
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func createPackage(t *testing.T, app *fiber.App, total int) models.CoursePackage {
	t.Helper()
	status, resp := do(t, app, http.MethodPost, "/api/packages", map[string]any{
		"student_id":      10,
		"course_id":       100,
		"mode":            "HOURS_MINUTES",
		"total_purchased": total,
		"valid_from":      sessionStart.AddDate(0, -1, 0),
	})
	require.Equal(t, http.StatusCreated, status, resp.Error)

	var pkg models.CoursePackage
	require.NoError(t, json.Unmarshal(resp.Data, &pkg))
	return pkg
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)
	status, resp := do(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
}

func TestSettleSession(t *testing.T) {
	app, _ := newTestApp(t)
	pkg := createPackage(t, app, 600)

	status, resp := do(t, app, http.MethodPost, "/api/sessions/1/settle", map[string]any{
		"students": []map[string]any{{"student_id": 10, "status": "present", "amount": 45}},
	})
	require.Equal(t, http.StatusOK, status, resp.Error)
	assert.Equal(t, "deducted 45 minutes", resp.Message)

	var summary settlement.Summary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, 45, summary.ChargedTotal)
	require.Len(t, summary.Students, 1)
	assert.Equal(t, models.StatusPresent, summary.Students[0].Status)

	status, resp = do(t, app, http.MethodGet, "/api/packages/"+itoa(pkg.ID)+"/reconcile", nil)
	require.Equal(t, http.StatusOK, status)
	var rec models.Reconciliation
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	assert.Equal(t, 555, rec.RemainingBalance)
	assert.True(t, rec.Consistent)

	status, resp = do(t, app, http.MethodGet, "/api/packages/"+itoa(pkg.ID)+"/ledger", nil)
	require.Equal(t, http.StatusOK, status)
	var txns []models.PackageTxn
	require.NoError(t, json.Unmarshal(resp.Data, &txns))
	require.Len(t, txns, 1)
	assert.Equal(t, -45, txns[0].DeltaAmount)
}

func TestSettleSession_UnknownStatusIsUnmarked(t *testing.T) {
	app, _ := newTestApp(t)
	createPackage(t, app, 600)

	status, resp := do(t, app, http.MethodPost, "/api/sessions/1/settle", map[string]any{
		"students": []map[string]any{{"student_id": 10, "status": "sleeping"}},
	})
	require.Equal(t, http.StatusOK, status, resp.Error)

	var summary settlement.Summary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, models.StatusUnmarked, summary.Students[0].Status)
	assert.Equal(t, 0, summary.ChargedTotal)
}

func TestSettleSession_Errors(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		path     string
		body     any
		status   int
		code     string
		validate func(t *testing.T, resp apiResponse)
	}{
		{
			name:   "insufficient balance",
			total:  30,
			path:   "/api/sessions/1/present",
			status: http.StatusConflict,
			code:   settlement.CodeInsufficientBalance,
			validate: func(t *testing.T, resp apiResponse) {
				assert.EqualValues(t, 60, resp.Details["requested"])
				assert.EqualValues(t, 30, resp.Details["remaining"])
				assert.Equal(t, "minutes", resp.Details["unit"])
			},
		},
		{
			name:   "no package",
			path:   "/api/sessions/1/present",
			status: http.StatusUnprocessableEntity,
			code:   settlement.CodeEligibility,
		},
		{
			name:   "unknown session",
			path:   "/api/sessions/99/present",
			status: http.StatusNotFound,
			code:   settlement.CodeNotFound,
		},
		{
			name:   "student not on roster",
			total:  600,
			path:   "/api/sessions/1/settle",
			body:   map[string]any{"students": []map[string]any{{"student_id": 11, "status": "PRESENT"}}},
			status: http.StatusBadRequest,
			code:   settlement.CodeValidation,
		},
		{
			name:   "negative amount rejected by validator",
			total:  600,
			path:   "/api/sessions/1/settle",
			body:   map[string]any{"students": []map[string]any{{"student_id": 10, "amount": -5}}},
			status: http.StatusBadRequest,
			code:   settlement.CodeValidation,
		},
		{
			name:   "bad id",
			path:   "/api/sessions/abc/present",
			status: http.StatusBadRequest,
			code:   settlement.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(t)
			if tt.total > 0 {
				createPackage(t, app, tt.total)
			}

			status, resp := do(t, app, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.ErrorCode)
			if tt.validate != nil {
				tt.validate(t, resp)
			}
		})
	}
}

func TestAdjustPackage(t *testing.T) {
	app, _ := newTestApp(t)
	pkg := createPackage(t, app, 600)

	status, resp := do(t, app, http.MethodPost, "/api/packages/"+itoa(pkg.ID)+"/adjust",
		map[string]any{"amount": -30, "note": "late cancellation"})
	require.Equal(t, http.StatusOK, status, resp.Error)

	status, resp = do(t, app, http.MethodPost, "/api/packages/"+itoa(pkg.ID)+"/adjust",
		map[string]any{"amount": -1000, "note": "too much"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, settlement.CodeInsufficientBalance, resp.ErrorCode)

	status, resp = do(t, app, http.MethodPost, "/api/packages/"+itoa(pkg.ID)+"/adjust",
		map[string]any{"amount": 10})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp.Details, "AdjustRequest.Note")

	status, resp = do(t, app, http.MethodGet, "/api/students/10/packages", nil)
	require.Equal(t, http.StatusOK, status)
	var packages []models.CoursePackage
	require.NoError(t, json.Unmarshal(resp.Data, &packages))
	require.Len(t, packages, 1)
	assert.Equal(t, 570, packages[0].RemainingBalance)
}

func TestCreatePackage_Invalid(t *testing.T) {
	app, _ := newTestApp(t)

	status, resp := do(t, app, http.MethodPost, "/api/packages", map[string]any{
		"student_id":      10,
		"course_id":       100,
		"mode":            "MONTHLY",
		"total_purchased": 10,
		"valid_from":      sessionStart,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "package_mode", resp.Details["CreatePackageRequest.Mode"])
}

func TestLedger_UnknownPackage(t *testing.T) {
	app, _ := newTestApp(t)
	status, resp := do(t, app, http.MethodGet, "/api/packages/404/ledger", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, settlement.CodeNotFound, resp.ErrorCode)
}
