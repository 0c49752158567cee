// Package approval implements the administrator's review of booking
// requests. Each finished request is presented to the approver as a prompt
// with approve, reject and reschedule actions; the chosen action drives the
// calendar, the mirror log and the requester notification.
package approval

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avdonin/pitstop/internal/chat"
	"github.com/avdonin/pitstop/internal/ledger"
	"github.com/avdonin/pitstop/internal/models"
	"github.com/avdonin/pitstop/internal/schedule"
	"github.com/avdonin/pitstop/internal/store"
)

// Callback actions carried in button values, suffixed with the request ID.
const (
	actionApprove = "approve"
	actionReject  = "reject"
	actionChange  = "change"
)

// Approver-facing texts.
const (
	labelApprove = "✅ Одобрить"
	labelReject  = "❌ Отклонить"
	labelChange  = "🕒 Перенести"

	msgPickNewDate    = "Выберите новую дату:"
	msgPickNewTime    = "Выберите новое время:"
	msgNoRescheduled  = "Свободных дат нет, заявка оставлена без изменений."
	msgReschedDayGone = "На эту дату нет свободного времени. Выберите другую дату."
	msgReschedCancel  = "Перенос отменён."

	cancelWord = "Отмена"
)

// Requester-facing texts.
const (
	msgApproved = "Ваша заявка одобрена. Ждём вас %s."
	msgRejected = "К сожалению, ваша заявка отклонена. Вы можете записаться на другое время."
)

// rescheduleStep tracks the approver's position in a reschedule.
type rescheduleStep int

const (
	reschedDate rescheduleStep = iota
	reschedTime
)

// reschedule is the approver's in-flight reschedule of one request.
type reschedule struct {
	id            uint
	step          rescheduleStep
	durationHours float64
	date          string // YYYY-MM-DD, set after the date pick
	offeredDates  []time.Time
	offeredSlots  []time.Time
}

// Workflow routes approver decisions for pending requests.
type Workflow struct {
	adapter     chat.Adapter
	store       *store.Store
	ledger      ledger.Ledger
	cal         schedule.Calendar
	finder      *schedule.Finder
	approver    string
	maxDates    int
	horizonDays int

	mu      sync.Mutex
	prompts map[uint]string        // request ID -> review prompt message ID
	resched map[string]*reschedule // approver chat ID -> in-flight reschedule
}

// WorkflowOpts holds parameters for creating a Workflow.
type WorkflowOpts struct {
	Adapter  chat.Adapter
	Store    *store.Store
	Calendar schedule.Calendar
	Finder   *schedule.Finder

	// Approver is the chat ID the review prompts go to.
	Approver string

	// Ledger mirrors status changes, optional.
	Ledger ledger.Ledger

	// MaxDates and HorizonDays bound the reschedule date offer, default to
	// the schedule package defaults.
	MaxDates    int
	HorizonDays int
}

// NewWorkflow creates a Workflow.
func NewWorkflow(opts WorkflowOpts) (*Workflow, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("approval: adapter is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("approval: store is required")
	}
	if opts.Calendar == nil {
		return nil, fmt.Errorf("approval: calendar is required")
	}
	if opts.Finder == nil {
		return nil, fmt.Errorf("approval: finder is required")
	}
	if opts.Approver == "" {
		return nil, fmt.Errorf("approval: approver chat is required")
	}
	maxDates := opts.MaxDates
	if maxDates <= 0 {
		maxDates = schedule.DefaultMaxDates
	}
	horizon := opts.HorizonDays
	if horizon <= 0 {
		horizon = schedule.DefaultHorizonDays
	}
	return &Workflow{
		adapter:     opts.Adapter,
		store:       opts.Store,
		ledger:      opts.Ledger,
		cal:         opts.Calendar,
		finder:      opts.Finder,
		approver:    opts.Approver,
		maxDates:    maxDates,
		horizonDays: horizon,
		prompts:     make(map[uint]string),
		resched:     make(map[string]*reschedule),
	}, nil
}

// NotifyPending sends the review prompt for a request to the approver. A
// previous prompt for the same request is deleted first so the approver
// only ever sees one live prompt per request.
func (w *Workflow) NotifyPending(ctx context.Context, id uint, renotify bool) error {
	rec, err := w.store.GetByID(id)
	if err != nil {
		return fmt.Errorf("approval: load request %d: %w", id, err)
	}

	w.dropPrompt(ctx, id)

	header := "Новая заявка"
	if renotify {
		header = "Заявка перенесена"
	}
	text := fmt.Sprintf("%s #%d\nУслуга: %s\nАвто: %s\nТелефон: %s\nКлиент: %s\nДата: %s %s",
		header, rec.ID, rec.ServiceType, rec.Vehicle, rec.Contact, rec.Handle, rec.Date, rec.Time)

	msgID, err := w.adapter.Send(ctx, chat.Outbound{
		ChatID: w.approver,
		Text:   text,
		Actions: []chat.Action{
			{Label: labelApprove, Data: fmt.Sprintf("%s_%d", actionApprove, id)},
			{Label: labelReject, Data: fmt.Sprintf("%s_%d", actionReject, id)},
			{Label: labelChange, Data: fmt.Sprintf("%s_%d", actionChange, id)},
		},
	})
	if err != nil {
		return fmt.Errorf("approval: send prompt for %d: %w", id, err)
	}

	w.mu.Lock()
	w.prompts[id] = msgID
	w.mu.Unlock()
	return nil
}

// HandleCallback processes a button press on a review prompt. Stale
// callbacks for requests that no longer exist are logged and swallowed.
func (w *Workflow) HandleCallback(ctx context.Context, in chat.Inbound) error {
	if in.Callback == nil {
		return fmt.Errorf("approval: message carries no callback")
	}
	action, id, err := parseCallback(in.Callback.Data)
	if err != nil {
		log.Printf("approval: %v", err)
		return nil
	}

	rec, err := w.store.GetByID(id)
	if err != nil {
		log.Printf("approval: callback %s for missing request %d", action, id)
		return nil
	}

	switch action {
	case actionApprove:
		return w.approve(ctx, rec)
	case actionReject:
		return w.reject(ctx, rec)
	case actionChange:
		return w.startReschedule(ctx, in.UserID, rec)
	default:
		log.Printf("approval: unknown action %q in callback", action)
		return nil
	}
}

// InProgress reports whether the chat has a reschedule underway.
func (w *Workflow) InProgress(chatID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.resched[chatID]
	return ok
}

// HandleMessage consumes plain messages that belong to an in-flight
// reschedule. The returned bool reports whether the message was consumed.
func (w *Workflow) HandleMessage(ctx context.Context, in chat.Inbound) (bool, error) {
	w.mu.Lock()
	rs, ok := w.resched[in.UserID]
	w.mu.Unlock()
	if !ok {
		return false, nil
	}

	text := strings.TrimSpace(in.Text)
	if text == cancelWord {
		w.clearReschedule(in.UserID)
		if err := w.send(ctx, in.UserID, msgReschedCancel, nil); err != nil {
			return true, err
		}
		// Restore the review prompt dropped when the reschedule started.
		return true, w.NotifyPending(ctx, rs.id, false)
	}

	switch rs.step {
	case reschedDate:
		return true, w.handleRescheduleDate(ctx, in.UserID, rs, text)
	case reschedTime:
		return true, w.handleRescheduleTime(ctx, in.UserID, rs, text)
	default:
		w.clearReschedule(in.UserID)
		return true, nil
	}
}

// approve books the calendar event, mirrors the status and tells the
// requester. Calendar and ledger failures are logged; the approval itself
// stands.
func (w *Workflow) approve(ctx context.Context, rec *models.BookingRequest) error {
	start, err := w.slotStart(rec)
	if err != nil {
		return fmt.Errorf("approval: request %d: %w", rec.ID, err)
	}
	end := start.Add(time.Duration(rec.DurationHours * float64(time.Hour)))

	title := fmt.Sprintf("%s: %s", rec.ServiceType, rec.Vehicle)
	desc := fmt.Sprintf("Клиент: %s\nТелефон: %s", rec.Handle, rec.Contact)
	if _, err := w.cal.CreateEvent(ctx, start, end, title, desc); err != nil {
		log.Printf("approval: create event for request %d: %v", rec.ID, err)
	}

	w.updateLedger(ctx, rec, ledger.StatusApproved)

	notice := fmt.Sprintf(msgApproved, start.Format("15:04 02.01.06"))
	if err := w.send(ctx, rec.RequesterID, notice, nil); err != nil {
		log.Printf("approval: notify requester of %d: %v", rec.ID, err)
	}

	w.dropPrompt(ctx, rec.ID)
	log.Printf("approval: request %d approved [date=%s time=%s]", rec.ID, rec.Date, rec.Time)
	return nil
}

// reject mirrors the status and tells the requester. No calendar event is
// touched.
func (w *Workflow) reject(ctx context.Context, rec *models.BookingRequest) error {
	w.updateLedger(ctx, rec, ledger.StatusRejected)

	if err := w.send(ctx, rec.RequesterID, msgRejected, nil); err != nil {
		log.Printf("approval: notify requester of %d: %v", rec.ID, err)
	}

	w.dropPrompt(ctx, rec.ID)
	log.Printf("approval: request %d rejected", rec.ID)
	return nil
}

// startReschedule opens the date offer for the approver. An empty offer
// leaves the request untouched. The live review prompt is deleted while the
// reschedule runs so the old date cannot be approved mid-flight; cancelling
// re-posts it.
func (w *Workflow) startReschedule(ctx context.Context, chatID string, rec *models.BookingRequest) error {
	dates := w.finder.AvailableDates(ctx, w.finder.Now(), rec.DurationHours, w.maxDates, w.horizonDays)
	if len(dates) == 0 {
		return w.send(ctx, chatID, msgNoRescheduled, nil)
	}

	w.dropPrompt(ctx, rec.ID)

	rs := &reschedule{
		id:            rec.ID,
		step:          reschedDate,
		durationHours: rec.DurationHours,
		offeredDates:  dates,
	}
	w.mu.Lock()
	w.resched[chatID] = rs
	w.mu.Unlock()

	return w.send(ctx, chatID, msgPickNewDate, rescheduleDateChoices(rs))
}

func (w *Workflow) handleRescheduleDate(ctx context.Context, chatID string, rs *reschedule, text string) error {
	picked, err := schedule.ParseDate(text, w.finder.Location())
	if err != nil {
		return w.send(ctx, chatID, msgPickNewDate, rescheduleDateChoices(rs))
	}
	var date time.Time
	found := false
	for _, d := range rs.offeredDates {
		if schedule.SameDate(d, picked) {
			date = d
			found = true
			break
		}
	}
	if !found {
		return w.send(ctx, chatID, msgPickNewDate, rescheduleDateChoices(rs))
	}

	slots := w.finder.FreeSlots(ctx, date, rs.durationHours)
	if len(slots) == 0 {
		if err := w.send(ctx, chatID, msgReschedDayGone, nil); err != nil {
			return err
		}
		dates := w.finder.AvailableDates(ctx, w.finder.Now(), rs.durationHours, w.maxDates, w.horizonDays)
		if len(dates) == 0 {
			w.clearReschedule(chatID)
			if err := w.send(ctx, chatID, msgNoRescheduled, nil); err != nil {
				return err
			}
			return w.NotifyPending(ctx, rs.id, false)
		}
		rs.offeredDates = dates
		return w.send(ctx, chatID, msgPickNewDate, rescheduleDateChoices(rs))
	}

	rs.date = date.Format("2006-01-02")
	rs.offeredSlots = slots
	rs.step = reschedTime
	return w.send(ctx, chatID, msgPickNewTime, rescheduleSlotChoices(rs))
}

func (w *Workflow) handleRescheduleTime(ctx context.Context, chatID string, rs *reschedule, text string) error {
	found := false
	for _, s := range rs.offeredSlots {
		if s.Format("15:04") == text {
			found = true
			break
		}
	}
	if !found {
		return w.send(ctx, chatID, msgPickNewTime, rescheduleSlotChoices(rs))
	}

	if err := w.store.UpdateDateTime(rs.id, rs.date, text); err != nil {
		w.clearReschedule(chatID)
		if nerr := w.NotifyPending(ctx, rs.id, false); nerr != nil {
			log.Printf("approval: restore prompt for %d: %v", rs.id, nerr)
		}
		return fmt.Errorf("approval: reschedule request %d: %w", rs.id, err)
	}
	w.clearReschedule(chatID)

	log.Printf("approval: request %d rescheduled [date=%s time=%s]", rs.id, rs.date, text)

	// The moved request goes back through review.
	return w.NotifyPending(ctx, rs.id, true)
}

// slotStart parses the record's date and time in the finder's location.
func (w *Workflow) slotStart(rec *models.BookingRequest) (time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", rec.Date+" "+rec.Time, w.finder.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot %q %q: %w", rec.Date, rec.Time, err)
	}
	return start, nil
}

func (w *Workflow) updateLedger(ctx context.Context, rec *models.BookingRequest, status string) {
	if w.ledger == nil {
		return
	}
	if err := w.ledger.UpdateStatusByMatch(ctx, rec.Vehicle, rec.Contact, status); err != nil {
		log.Printf("approval: mirror status of %d: %v", rec.ID, err)
	}
}

// dropPrompt deletes the live review prompt for a request, if any.
func (w *Workflow) dropPrompt(ctx context.Context, id uint) {
	w.mu.Lock()
	msgID, ok := w.prompts[id]
	delete(w.prompts, id)
	w.mu.Unlock()
	if !ok {
		return
	}
	if err := w.adapter.Delete(ctx, w.approver, msgID); err != nil {
		log.Printf("approval: delete prompt for %d: %v", id, err)
	}
}

func (w *Workflow) clearReschedule(chatID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.resched, chatID)
}

func (w *Workflow) send(ctx context.Context, chatID, text string, choices []string) error {
	_, err := w.adapter.Send(ctx, chat.Outbound{ChatID: chatID, Text: text, Choices: choices})
	if err != nil {
		return fmt.Errorf("approval: send to %s: %w", chatID, err)
	}
	return nil
}

func rescheduleDateChoices(rs *reschedule) []string {
	choices := make([]string, 0, len(rs.offeredDates)+1)
	for _, d := range rs.offeredDates {
		choices = append(choices, schedule.FormatDate(d))
	}
	return append(choices, cancelWord)
}

func rescheduleSlotChoices(rs *reschedule) []string {
	choices := make([]string, 0, len(rs.offeredSlots)+1)
	for _, s := range rs.offeredSlots {
		choices = append(choices, s.Format("15:04"))
	}
	return append(choices, cancelWord)
}

// parseCallback splits "action_id" button data.
func parseCallback(data string) (string, uint, error) {
	action, idStr, ok := strings.Cut(data, "_")
	if !ok {
		return "", 0, fmt.Errorf("malformed callback %q", data)
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("malformed callback id %q: %v", data, err)
	}
	return action, uint(id), nil
}
