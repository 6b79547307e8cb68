package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"solarmine-planner/internal/audit"
	"solarmine-planner/internal/auth"
	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"
	"solarmine-planner/internal/projection/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeCollector struct {
	snapshot projection.MarketSnapshot
	err      error
	calls    int
}

func (f *fakeCollector) CollectOnce(ctx context.Context) (projection.MarketSnapshot, error) {
	f.calls++
	return f.snapshot, f.err
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Log(ctx context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func newTestService(t *testing.T) *application.ProjectionService {
	t.Helper()
	store := memory.NewStore()
	store.PutMiner(projection.MinerSpec{ID: "s19", Model: "S19", HashrateTH: 100, PowerW: 3000})
	store.PutConfiguration(projection.SystemConfiguration{
		ID:             "cfg-1",
		Location:       projection.Location{ID: "loc-1", Latitude: 40},
		Miners:         []projection.LineItem{{EquipmentID: "s19", Quantity: 1}},
		Economics:      projection.EconomicParameters{ElectricityRateUSDPerKWh: 0.10},
		GridConnection: projection.GridTied,
		MiningMode:     projection.MiningHybrid,
	})
	store.PutScenario(projection.Scenario{
		ID:                "sc-1",
		SystemConfigID:    "cfg-1",
		BitcoinParameters: json.RawMessage(`{"price_usd":50000,"network_hashrate_eh":500,"block_reward_btc":6.25,"avg_block_time_seconds":600}`),
	})
	monthly := memory.NewMonthlyClimatology()
	// Only March has climatology so April dates fail.
	monthly.Put("loc-1", 2025, time.March, projection.EnvironmentalSample{SunHours: 4, AmbientTempC: 15, CloudCoverPercent: 30, Confidence: 0.5})

	resolver, err := application.NewEnvironmentalResolver(memory.NewHourlyForecasts(), memory.NewDailyForecasts(), monthly)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	svc, err := application.NewProjectionService(store, store, store, resolver, memory.NewMarketStore(), memory.NewResultStore(),
		memory.NewRunStore(), nil, fixedClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}, nil, application.Options{ChunkDays: 2})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func newTestRouter(t *testing.T, collector MarketCollector) *mux.Router {
	t.Helper()
	svc := newTestService(t)
	batch, err := application.NewBatchRunner(svc, 2, nil)
	if err != nil {
		t.Fatalf("new batch runner: %v", err)
	}
	h, err := NewHandler(svc, batch, collector, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	r := mux.NewRouter()
	h.Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewHandlerRejectsNilService(t *testing.T) {
	if _, err := NewHandler(nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil service")
	}
}

func TestRunEndpointReturnsRowsAndSummary(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := do(t, r, http.MethodPost, "/api/v1/projections", map[string]string{
		"run_id":           "run-1",
		"system_config_id": "cfg-1",
		"scenario_id":      "sc-1",
		"start_date":       "2025-03-01",
		"end_date":         "2025-03-03",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status mismatch: got=%d want=%d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp runResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Run.ID != "run-1" || resp.Run.State != projection.RunCompleted {
		t.Fatalf("run mismatch: %+v", resp.Run)
	}
	if len(resp.Rows) != 3 {
		t.Fatalf("rows mismatch: got=%d want=3", len(resp.Rows))
	}
	if resp.Summary == nil || resp.Summary.Days != 3 {
		t.Fatalf("summary mismatch: %+v", resp.Summary)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/projections/runs/run-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get run status mismatch: got=%d want=%d", rec.Code, http.StatusOK)
	}
	rec = do(t, r, http.MethodGet, "/api/v1/projections/runs/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run status mismatch: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
}

func TestRunEndpointReportsFailedDateAndComponent(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := do(t, r, http.MethodPost, "/api/v1/projections", map[string]string{
		"system_config_id": "cfg-1",
		"scenario_id":      "sc-1",
		"start_date":       "2025-03-30",
		"end_date":         "2025-04-02",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status mismatch: got=%d want=%d body=%s", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ErrorKind != "NoEnvironmentalDataError" {
		t.Fatalf("error kind mismatch: got=%s", resp.ErrorKind)
	}
	if resp.Date != "2025-04-01" || resp.Component != projection.ComponentEnvironment {
		t.Fatalf("failure location mismatch: date=%s component=%s", resp.Date, resp.Component)
	}
	if resp.Run == nil || resp.Run.State != projection.RunFailed || resp.Run.DaysRecorded != 2 {
		t.Fatalf("run mismatch: %+v", resp.Run)
	}
}

func TestRunEndpointValidatesInput(t *testing.T) {
	r := newTestRouter(t, nil)
	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"bad date", map[string]string{"system_config_id": "cfg-1", "scenario_id": "sc-1", "start_date": "03/01/2025", "end_date": "2025-03-02"}, http.StatusBadRequest},
		{"missing ids", map[string]string{"start_date": "2025-03-01", "end_date": "2025-03-02"}, http.StatusBadRequest},
		{"bad granularity", map[string]string{"system_config_id": "cfg-1", "scenario_id": "sc-1", "start_date": "2025-03-01", "end_date": "2025-03-02", "granularity": "hourly"}, http.StatusBadRequest},
		{"reversed range", map[string]string{"system_config_id": "cfg-1", "scenario_id": "sc-1", "start_date": "2025-03-05", "end_date": "2025-03-02"}, http.StatusBadRequest},
		{"unknown config", map[string]string{"system_config_id": "nope", "scenario_id": "sc-1", "start_date": "2025-03-01", "end_date": "2025-03-02"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/api/v1/projections", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status mismatch: got=%d want=%d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestResultsAndExportEndpoints(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := do(t, r, http.MethodGet, "/api/v1/projections/cfg-1/sc-1/export.xlsx", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("export before run status mismatch: got=%d want=%d", rec.Code, http.StatusNotFound)
	}

	rec = do(t, r, http.MethodPost, "/api/v1/projections", map[string]string{
		"system_config_id": "cfg-1",
		"scenario_id":      "sc-1",
		"start_date":       "2025-03-01",
		"end_date":         "2025-03-14",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("run status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, http.MethodGet, "/api/v1/projections/cfg-1/sc-1/results?granularity=weekly&from=2025-03-03&to=2025-03-09", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("results status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}
	var results struct {
		Rows []projection.ProjectionResult `json:"rows"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results.Rows) != 1 || results.Rows[0].Days != 7 {
		t.Fatalf("weekly rows mismatch: %+v", results.Rows)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/projections/cfg-1/sc-1/results?from=2025-03-09&to=2025-03-01", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reversed query status mismatch: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/projections/cfg-1/sc-1/export.xlsx?granularity=monthly", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("xlsx content type mismatch: %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("xlsx body is not a zip archive")
	}

	rec = do(t, r, http.MethodGet, "/api/v1/projections/cfg-1/sc-1/export.pdf", nil)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("pdf export mismatch: status=%d", rec.Code)
	}
}

func TestBatchEndpointKeepsRequestOrder(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := do(t, r, http.MethodPost, "/api/v1/projections/batch", map[string]any{
		"requests": []map[string]string{
			{"system_config_id": "cfg-1", "scenario_id": "sc-1", "start_date": "2025-03-01", "end_date": "2025-03-02"},
			{"system_config_id": "cfg-1", "scenario_id": "missing", "start_date": "2025-03-01", "end_date": "2025-03-02"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp []batchResult
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("batch length mismatch: got=%d want=2", len(resp))
	}
	if resp[0].Error != nil || resp[0].Run == nil || resp[0].Run.State != projection.RunCompleted {
		t.Fatalf("first batch item mismatch: %+v", resp[0])
	}
	if resp[1].Error == nil || resp[1].Error.ErrorKind != "NotFoundError" {
		t.Fatalf("second batch item mismatch: %+v", resp[1])
	}
}

func TestCollectEndpoint(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodPost, "/api/v1/market/collect", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured status mismatch: got=%d want=%d", rec.Code, http.StatusServiceUnavailable)
	}

	collector := &fakeCollector{snapshot: projection.MarketSnapshot{PriceUSD: 60000, Source: "mempool"}}
	rec = do(t, newTestRouter(t, collector), http.MethodPost, "/api/v1/market/collect", nil)
	if rec.Code != http.StatusOK || collector.calls != 1 {
		t.Fatalf("collect mismatch: status=%d calls=%d", rec.Code, collector.calls)
	}

	collector.err = errors.New("upstream down")
	rec = do(t, newTestRouter(t, collector), http.MethodPost, "/api/v1/market/collect", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("collect failure status mismatch: got=%d want=%d", rec.Code, http.StatusBadGateway)
	}
}

func TestRouterAppliesAuth(t *testing.T) {
	secret := []byte("secret")
	svc := newTestService(t)
	h, err := NewHandler(svc, nil, nil, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	router := NewRouter(h, RouterOptions{Auth: auth.NewMiddleware(secret, auth.NewDefaultPolicy(nil, nil))})

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status mismatch: got=%d want=%d", rec.Code, http.StatusOK)
	}
	rec = do(t, router, http.MethodGet, "/api/v1/projections/runs/x", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status mismatch: got=%d want=%d", rec.Code, http.StatusUnauthorized)
	}

	token, err := auth.IssueJWT(secret, "alice", auth.RoleViewer, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/projections/runs/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("viewer status mismatch: got=%d want=%d", rec.Code, http.StatusNotFound)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/projections", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer post status mismatch: got=%d want=%d", rec.Code, http.StatusForbidden)
	}
}

func TestRunEndpointWritesAuditEntry(t *testing.T) {
	h, err := NewHandler(newTestService(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	recorder := &recordingAudit{}
	h.WithAuditLogger(recorder)
	r := mux.NewRouter()
	h.Register(r)

	rec := do(t, r, http.MethodPost, "/api/v1/projections", map[string]string{
		"system_config_id": "cfg-1",
		"scenario_id":      "sc-1",
		"start_date":       "2025-03-01",
		"end_date":         "2025-03-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(recorder.entries) != 1 {
		t.Fatalf("audit entries mismatch: got=%d want=1", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Action != "projection.run" || entry.ResourceID != "cfg-1/sc-1" || len(entry.Metadata) == 0 {
		t.Fatalf("audit entry mismatch: %+v", entry)
	}

	do(t, r, http.MethodGet, "/api/v1/projections/runs/x", nil)
	if len(recorder.entries) != 1 {
		t.Fatalf("reads should not be audited: got=%d entries", len(recorder.entries))
	}
}
