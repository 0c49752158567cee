package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/avdonin/pitstop/internal/db"
	"github.com/avdonin/pitstop/internal/models"
	"github.com/avdonin/pitstop/internal/schedule"
	"github.com/avdonin/pitstop/internal/timegrid"
)

var (
	testTZ  = time.FixedZone("UTC+4", 4*3600)
	testNow = time.Date(2025, 9, 1, 9, 0, 0, 0, testTZ)
)

// fakeCalendar marks whole days busy.
type fakeCalendar struct {
	allBusy bool
}

func (c *fakeCalendar) BusyIntervals(ctx context.Context, date time.Time) ([]timegrid.Interval, error) {
	if !c.allBusy {
		return nil, nil
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return []timegrid.Interval{{Start: day.Add(10 * time.Hour), End: day.Add(22 * time.Hour)}}, nil
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, start, end time.Time, title, description string) (string, error) {
	return "evt-1", nil
}

func TestStart_NilDB(t *testing.T) {
	err := Start(context.Background(), StartOpts{DB: nil})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
	if !strings.Contains(err.Error(), "db is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db is required")
	}
}

func setupTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	return setupTestRouterWithCalendar(t, &fakeCalendar{})
}

func setupTestRouterWithCalendar(t *testing.T, cal schedule.Calendar) (*gin.Engine, *gorm.DB) {
	t.Helper()

	gdb, err := db.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("ConnectSQLite() error = %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	finder, err := schedule.NewFinder(schedule.FinderOpts{
		Calendar:     cal,
		Location:     testTZ,
		MaxDaysAhead: 3,
		Now:          func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewFinder() error = %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, gdb, finder)
	return router, gdb
}

func insertRequest(t *testing.T, gdb *gorm.DB, vehicle string) {
	t.Helper()
	err := gdb.Create(&models.BookingRequest{
		RequesterID:   "chat-1",
		Handle:        "@ivan",
		DurationHours: 0.5,
		Vehicle:       vehicle,
		Contact:       "+79991234567",
		ServiceType:   "Замена масла",
		Date:          "2025-09-02",
		Time:          "15:00",
	}).Error
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
}

func doGET(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doGET(t, router, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s, want ok status", w.Body.String())
	}
}

func TestRequestList(t *testing.T) {
	router, gdb := setupTestRouter(t)
	insertRequest(t, gdb, "Lada Vesta")
	insertRequest(t, gdb, "Kia Rio")

	w := doGET(t, router, "/api/requests")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Requests []models.BookingRequest `json:"requests"`
		Count    int                     `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	// Newest first.
	if body.Requests[0].Vehicle != "Kia Rio" {
		t.Errorf("requests[0].Vehicle = %q, want Kia Rio", body.Requests[0].Vehicle)
	}
}

func TestRequestListLimit(t *testing.T) {
	router, gdb := setupTestRouter(t)
	for i := 0; i < 5; i++ {
		insertRequest(t, gdb, "Lada Vesta")
	}

	w := doGET(t, router, "/api/requests?limit=3")
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 3 {
		t.Errorf("count = %d, want 3", body.Count)
	}
}

func TestRequestDetail(t *testing.T) {
	router, gdb := setupTestRouter(t)
	insertRequest(t, gdb, "Lada Vesta")

	w := doGET(t, router, "/api/requests/1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var req models.BookingRequest
	if err := json.Unmarshal(w.Body.Bytes(), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Vehicle != "Lada Vesta" || req.Time != "15:00" {
		t.Errorf("request = %+v, want Lada Vesta at 15:00", req)
	}
}

func TestRequestDetailNotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doGET(t, router, "/api/requests/99")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRequestDetailBadID(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doGET(t, router, "/api/requests/abc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAvailability(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doGET(t, router, "/api/availability?hours=1.5")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	wantStart := time.Date(2025, 9, 1, 10, 0, 0, 0, testTZ)
	if !body.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", body.Start, wantStart)
	}
	if !body.End.Equal(wantStart.Add(90 * time.Minute)) {
		t.Errorf("end = %v, want 1h30m after start", body.End)
	}
}

func TestAvailabilityNoFreeSlot(t *testing.T) {
	router, _ := setupTestRouterWithCalendar(t, &fakeCalendar{allBusy: true})

	w := doGET(t, router, "/api/availability")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAvailabilityBadHours(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doGET(t, router, "/api/availability?hours=abc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStats(t *testing.T) {
	router, gdb := setupTestRouter(t)
	insertRequest(t, gdb, "Lada Vesta")

	w := doGET(t, router, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Total    int64 `json:"total"`
		LastWeek int64 `json:"last_week"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Total != 1 || body.LastWeek != 1 {
		t.Errorf("stats = %+v, want 1/1", body)
	}
}
