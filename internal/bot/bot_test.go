package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avdonin/pitstop/internal/approval"
	"github.com/avdonin/pitstop/internal/chat"
	"github.com/avdonin/pitstop/internal/db"
	"github.com/avdonin/pitstop/internal/dialog"
	"github.com/avdonin/pitstop/internal/ledger"
	"github.com/avdonin/pitstop/internal/models"
	"github.com/avdonin/pitstop/internal/schedule"
	"github.com/avdonin/pitstop/internal/store"
	"github.com/avdonin/pitstop/internal/timegrid"
)

const (
	approverID  = "admin-1"
	requesterID = "chat-9"
)

var (
	testTZ  = time.FixedZone("UTC+4", 4*3600)
	testNow = time.Date(2025, 9, 1, 9, 0, 0, 0, testTZ)
)

type fakeCalendar struct {
	mu   sync.Mutex
	busy map[string][]timegrid.Interval
}

func (c *fakeCalendar) BusyIntervals(ctx context.Context, date time.Time) ([]timegrid.Interval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[date.Format("2006-01-02")], nil
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, start, end time.Time, title, description string) (string, error) {
	return "evt-1", nil
}

type testEnv struct {
	daemon  *Daemon
	adapter *chat.MockAdapter
	store   *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := db.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("ConnectSQLite() error = %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	st, err := store.New(gdb)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	cal := &fakeCalendar{}
	finder, err := schedule.NewFinder(schedule.FinderOpts{
		Calendar: cal,
		Location: testTZ,
		Now:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewFinder() error = %v", err)
	}

	adapter := chat.NewMockAdapter()
	ml := ledger.NewMockLedger()

	workflow, err := approval.NewWorkflow(approval.WorkflowOpts{
		Adapter:  adapter,
		Store:    st,
		Calendar: cal,
		Finder:   finder,
		Approver: approverID,
		Ledger:   ml,
	})
	if err != nil {
		t.Fatalf("NewWorkflow() error = %v", err)
	}

	engine, err := dialog.NewEngine(dialog.EngineOpts{
		Adapter:  adapter,
		Store:    st,
		Finder:   finder,
		Ledger:   ml,
		Notifier: workflow,
		Services: []dialog.Service{{Name: "Замена масла", DurationHours: 0.5}},
		Contacts: "Телефон: +7 999 000 00 00.",
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	daemon, err := NewDaemon(DaemonOpts{
		Adapter:       adapter,
		Engine:        engine,
		Workflow:      workflow,
		Store:         st,
		Approver:      approverID,
		Location:      testTZ,
		DigestEnabled: true,
		DigestCron:    "0 21 * * *",
		Now:           func() time.Time { return testNow },
		Out:           &strings.Builder{},
	})
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}

	return &testEnv{daemon: daemon, adapter: adapter, store: st}
}

func (env *testEnv) insertRequest(t *testing.T) uint {
	t.Helper()
	id, err := env.store.Insert(&models.BookingRequest{
		RequesterID:   requesterID,
		Handle:        "@ivan",
		DurationHours: 0.5,
		Vehicle:       "Lada Vesta",
		Contact:       "+79991234567",
		ServiceType:   "Замена масла",
		Date:          "2025-09-02",
		Time:          "15:00",
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return id
}

// --- construction ---

func TestNewDaemonValidation(t *testing.T) {
	_, err := NewDaemon(DaemonOpts{})
	if err == nil {
		t.Error("NewDaemon(empty) error = nil, want error")
	}
}

// --- routing ---

func TestRouteCallbackGoesToWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.insertRequest(t)
	if err := env.adapter.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	env.daemon.route(context.Background(), chat.Inbound{
		UserID:   approverID,
		Callback: &chat.Callback{Data: "reject_1", MessageID: "m1"},
	})

	out, ok := env.adapter.LastSentTo(requesterID)
	if !ok {
		t.Fatal("requester got no notice after reject callback")
	}
	if !strings.Contains(out.Text, "отклонена") {
		t.Errorf("Text = %q, want rejection notice", out.Text)
	}
}

func TestRoutePlainMessageGoesToEngine(t *testing.T) {
	env := newTestEnv(t)
	if err := env.adapter.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	env.daemon.route(context.Background(), chat.Inbound{UserID: requesterID, Text: "/start"})

	out, ok := env.adapter.LastSentTo(requesterID)
	if !ok {
		t.Fatal("requester got no reply")
	}
	if !strings.Contains(out.Text, "Здравствуйте") {
		t.Errorf("Text = %q, want greeting", out.Text)
	}
}

func TestRouteRescheduleMessageConsumedByWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.insertRequest(t)
	if err := env.adapter.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Start a reschedule, then send the approver's date pick as a plain
	// message. It must reach the workflow, not the dialog engine.
	env.daemon.route(context.Background(), chat.Inbound{
		UserID:   approverID,
		Callback: &chat.Callback{Data: "change_1", MessageID: "m1"},
	})
	out, _ := env.adapter.LastSentTo(approverID)
	datePick := out.Choices[0]

	env.daemon.route(context.Background(), chat.Inbound{UserID: approverID, Text: datePick})

	out, _ = env.adapter.LastSentTo(approverID)
	if !strings.Contains(out.Text, "время") {
		t.Errorf("Text = %q, want reschedule time prompt, not dialog output", out.Text)
	}
}

// --- lifecycle ---

func TestRunPumpsInboundAndStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.daemon.Run(ctx) }()

	// Wait for the adapter to come online, then push a message through.
	deadline := time.After(2 * time.Second)
	for env.adapter.SentCount() == 0 {
		env.adapter.SimulateInbound(chat.Inbound{UserID: requesterID, Text: "/start"})
		select {
		case <-deadline:
			t.Fatal("daemon never replied to inbound message")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on cancel")
	}
}

// --- digest ---

func TestDigestSuppressedWhenNoRequests(t *testing.T) {
	env := newTestEnv(t)
	if err := env.adapter.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	env.daemon.fireDigest(context.Background())

	if env.adapter.SentCount() != 0 {
		t.Errorf("SentCount() = %d, want 0 on empty day", env.adapter.SentCount())
	}
}

func TestDigestCountsTodaysRequests(t *testing.T) {
	env := newTestEnv(t)
	env.insertRequest(t)
	env.insertRequest(t)
	if err := env.adapter.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	env.daemon.fireDigest(context.Background())

	out, ok := env.adapter.LastSentTo(approverID)
	if !ok {
		t.Fatal("approver got no digest")
	}
	if !strings.Contains(out.Text, "2") {
		t.Errorf("Text = %q, want count of 2", out.Text)
	}
}
