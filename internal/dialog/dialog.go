// Package dialog implements the booking conversation. Each requester walks
// a fixed sequence of steps (service, vehicle, contact, date, time); the
// engine keeps per-chat state in memory and persists only the finished
// request.
package dialog

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/avdonin/pitstop/internal/chat"
	"github.com/avdonin/pitstop/internal/ledger"
	"github.com/avdonin/pitstop/internal/models"
	"github.com/avdonin/pitstop/internal/schedule"
	"github.com/avdonin/pitstop/internal/store"
)

// Step identifies the requester's position in the booking conversation.
type Step int

const (
	StepIdle Step = iota
	StepService
	StepVehicle
	StepContact
	StepDate
	StepTime
)

// String returns a short name for logging.
func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepService:
		return "service"
	case StepVehicle:
		return "vehicle"
	case StepContact:
		return "contact"
	case StepDate:
		return "date"
	case StepTime:
		return "time"
	default:
		return "unknown"
	}
}

// Menu commands understood by the engine.
const (
	cmdStart     = "/start"
	menuBook     = "Записаться"
	menuContacts = "Контакты"
	menuBack     = "Назад"
)

// User-facing replies.
const (
	msgGreeting      = "Здравствуйте! Я помогу записаться на обслуживание автомобиля. Выберите действие:"
	msgChooseService = "Выберите услугу:"
	msgAskVehicle    = "Укажите марку и модель автомобиля:"
	msgAskContact    = "Отправьте номер телефона или поделитесь контактом:"
	msgBadPhone      = "Похоже, это не номер телефона. Отправьте номер в формате +7XXXXXXXXXX или 8XXXXXXXXXX."
	msgChooseDate    = "Выберите дату:"
	msgNoDates       = "К сожалению, свободных дат сейчас нет. Попробуйте позже."
	msgChooseTime    = "Выберите время:"
	msgDateFull      = "На эту дату уже нет свободного времени. Выберите другую дату."
	msgPickService   = "Пожалуйста, выберите услугу из списка."
	msgPickDate      = "Пожалуйста, выберите дату из списка."
	msgPickTime      = "Пожалуйста, выберите время из списка."
	msgSubmitted     = "Ваша заявка отправлена на рассмотрение администратору."
	msgSaveFailed    = "Не удалось сохранить заявку. Попробуйте ещё раз позже."
)

// Accepted phone formats: local numbers with a +7 or 8 prefix, or a bare
// international number. A shared contact card bypasses validation.
var (
	phoneLocalRe = regexp.MustCompile(`^(\+7|8)\d{10}$`)
	phoneIntlRe  = regexp.MustCompile(`^\+?\d{11,15}$`)
)

func validPhone(s string) bool {
	return phoneLocalRe.MatchString(s) || phoneIntlRe.MatchString(s)
}

// Service is one bookable service offered in the conversation.
type Service struct {
	Name          string
	DurationHours float64
}

// ApproverNotifier is notified when a finished request needs review.
type ApproverNotifier interface {
	// NotifyPending sends (or re-sends, when renotify is true) the review
	// prompt for request id to the approver.
	NotifyPending(ctx context.Context, id uint, renotify bool) error
}

// State is the in-memory conversation state for one requester.
type State struct {
	Step          Step
	ServiceType   string
	DurationHours float64
	Vehicle       string
	Contact       string
	Handle        string
	Date          string // YYYY-MM-DD
	OfferedDates  []time.Time
	OfferedSlots  []time.Time
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// Engine drives booking conversations over a chat adapter.
type Engine struct {
	adapter     chat.Adapter
	store       *store.Store
	ledger      ledger.Ledger
	finder      *schedule.Finder
	notifier    ApproverNotifier
	services    []Service
	contacts    string
	maxDates    int
	horizonDays int

	// mu guards states and every State behind it; Handle holds it for the
	// duration of a message.
	mu     sync.Mutex
	states map[string]*State
}

// EngineOpts holds parameters for creating an Engine.
type EngineOpts struct {
	Adapter chat.Adapter
	Store   *store.Store
	Finder  *schedule.Finder

	// Ledger mirrors finished requests, optional.
	Ledger ledger.Ledger

	// Notifier receives pending-review notifications, optional.
	Notifier ApproverNotifier

	// Services is the list offered at the first step.
	Services []Service

	// Contacts is the text sent for the contacts menu item.
	Contacts string

	// MaxDates and HorizonDays bound the date offer, default to the
	// schedule package defaults.
	MaxDates    int
	HorizonDays int
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("dialog: adapter is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("dialog: store is required")
	}
	if opts.Finder == nil {
		return nil, fmt.Errorf("dialog: finder is required")
	}
	if len(opts.Services) == 0 {
		return nil, fmt.Errorf("dialog: at least one service is required")
	}
	maxDates := opts.MaxDates
	if maxDates <= 0 {
		maxDates = schedule.DefaultMaxDates
	}
	horizon := opts.HorizonDays
	if horizon <= 0 {
		horizon = schedule.DefaultHorizonDays
	}
	return &Engine{
		adapter:     opts.Adapter,
		store:       opts.Store,
		ledger:      opts.Ledger,
		finder:      opts.Finder,
		notifier:    opts.Notifier,
		services:    opts.Services,
		contacts:    opts.Contacts,
		maxDates:    maxDates,
		horizonDays: horizon,
		states:      make(map[string]*State),
	}, nil
}

// Handle processes one inbound message from a requester. The engine lock is
// held for the whole call so the expiry sweep never observes a state
// mid-mutation.
func (e *Engine) Handle(ctx context.Context, in chat.Inbound) error {
	text := strings.TrimSpace(in.Text)

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.states[in.UserID]
	if st != nil {
		st.UpdatedAt = e.finder.Now()
	}

	if text == cmdStart {
		delete(e.states, in.UserID)
		return e.sendMenu(ctx, in.UserID)
	}
	if st == nil {
		return e.handleIdle(ctx, in.UserID, text)
	}
	if text == menuBack {
		return e.handleBack(ctx, in.UserID, st)
	}

	switch st.Step {
	case StepService:
		return e.handleService(ctx, in.UserID, st, text)
	case StepVehicle:
		return e.handleVehicle(ctx, in.UserID, st, text)
	case StepContact:
		return e.handleContact(ctx, in, st, text)
	case StepDate:
		return e.handleDate(ctx, in.UserID, st, text)
	case StepTime:
		return e.handleTime(ctx, in, st, text)
	default:
		delete(e.states, in.UserID)
		return e.sendMenu(ctx, in.UserID)
	}
}

// handleIdle starts a booking or serves the contacts card. A state entry is
// created only when a booking starts, so stray messages never grow the map.
func (e *Engine) handleIdle(ctx context.Context, chatID, text string) error {
	switch text {
	case menuBook:
		now := e.finder.Now()
		e.states[chatID] = &State{Step: StepService, StartedAt: now, UpdatedAt: now}
		return e.promptServices(ctx, chatID)
	case menuContacts:
		return e.send(ctx, chatID, e.contacts, menuChoices())
	default:
		return e.sendMenu(ctx, chatID)
	}
}

func (e *Engine) handleService(ctx context.Context, chatID string, st *State, text string) error {
	for _, svc := range e.services {
		if svc.Name == text {
			st.ServiceType = svc.Name
			st.DurationHours = svc.DurationHours
			st.Step = StepVehicle
			return e.send(ctx, chatID, msgAskVehicle, []string{menuBack})
		}
	}
	return e.promptServices(ctx, chatID)
}

func (e *Engine) handleVehicle(ctx context.Context, chatID string, st *State, text string) error {
	if text == "" {
		return e.send(ctx, chatID, msgAskVehicle, []string{menuBack})
	}
	st.Vehicle = text
	st.Step = StepContact
	return e.send(ctx, chatID, msgAskContact, []string{menuBack})
}

func (e *Engine) handleContact(ctx context.Context, in chat.Inbound, st *State, text string) error {
	phone := in.ContactPhone
	if phone == "" {
		if !validPhone(text) {
			return e.send(ctx, in.UserID, msgBadPhone, []string{menuBack})
		}
		phone = text
	}
	st.Contact = phone
	st.Handle = in.UserName
	st.Step = StepDate
	return e.promptDates(ctx, in.UserID, st)
}

func (e *Engine) handleDate(ctx context.Context, chatID string, st *State, text string) error {
	picked, err := schedule.ParseDate(text, e.finder.Location())
	if err != nil {
		return e.send(ctx, chatID, msgPickDate, e.dateChoices(st))
	}
	var date time.Time
	found := false
	for _, d := range st.OfferedDates {
		if schedule.SameDate(d, picked) {
			date = d
			found = true
			break
		}
	}
	if !found {
		return e.send(ctx, chatID, msgPickDate, e.dateChoices(st))
	}

	slots := e.finder.FreeSlots(ctx, date, st.DurationHours)
	if len(slots) == 0 {
		// The day filled up between the offer and the pick.
		if err := e.send(ctx, chatID, msgDateFull, nil); err != nil {
			return err
		}
		return e.promptDates(ctx, chatID, st)
	}

	st.Date = date.Format("2006-01-02")
	st.OfferedSlots = slots
	st.Step = StepTime
	return e.send(ctx, chatID, msgChooseTime, e.slotChoices(st))
}

func (e *Engine) handleTime(ctx context.Context, in chat.Inbound, st *State, text string) error {
	var slot time.Time
	found := false
	for _, s := range st.OfferedSlots {
		if s.Format("15:04") == text {
			slot = s
			found = true
			break
		}
	}
	if !found {
		return e.send(ctx, in.UserID, msgPickTime, e.slotChoices(st))
	}
	return e.submit(ctx, in.UserID, st, slot)
}

// submit persists the finished request, mirrors it to the ledger and pings
// the approver. Ledger and notifier failures are logged, never surfaced to
// the requester.
func (e *Engine) submit(ctx context.Context, chatID string, st *State, slot time.Time) error {
	rec := models.BookingRequest{
		RequesterID:   chatID,
		Handle:        st.Handle,
		DurationHours: st.DurationHours,
		Vehicle:       st.Vehicle,
		Contact:       st.Contact,
		ServiceType:   st.ServiceType,
		Date:          st.Date,
		Time:          slot.Format("15:04"),
	}
	id, err := e.store.Insert(&rec)
	if err != nil {
		if sendErr := e.send(ctx, chatID, msgSaveFailed, []string{menuBack}); sendErr != nil {
			log.Printf("dialog: send save failure notice: %v", sendErr)
		}
		return fmt.Errorf("dialog: save request: %w", err)
	}

	if e.ledger != nil {
		if err := e.ledger.AppendLead(ctx, st.Vehicle, st.Contact, st.Handle, ledger.StatusNew); err != nil {
			log.Printf("dialog: mirror request %d: %v", id, err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyPending(ctx, id, false); err != nil {
			log.Printf("dialog: notify approver about %d: %v", id, err)
		}
	}

	log.Printf("dialog: request %d submitted [chat=%s service=%s date=%s time=%s]",
		id, chatID, rec.ServiceType, rec.Date, rec.Time)

	delete(e.states, chatID)
	return e.send(ctx, chatID, msgSubmitted, menuChoices())
}

// handleBack moves one step towards the menu, keeping entered fields so a
// forward step re-offers them untouched. Backing out of the first step
// abandons the draft entirely.
func (e *Engine) handleBack(ctx context.Context, chatID string, st *State) error {
	switch st.Step {
	case StepService:
		delete(e.states, chatID)
		return e.sendMenu(ctx, chatID)
	case StepVehicle:
		st.Step = StepService
		return e.promptServices(ctx, chatID)
	case StepContact:
		st.Step = StepVehicle
		return e.send(ctx, chatID, msgAskVehicle, []string{menuBack})
	case StepDate:
		st.Step = StepContact
		return e.send(ctx, chatID, msgAskContact, []string{menuBack})
	case StepTime:
		st.Step = StepDate
		return e.promptDates(ctx, chatID, st)
	default:
		delete(e.states, chatID)
		return e.sendMenu(ctx, chatID)
	}
}

// promptDates recomputes the date offer. An empty offer ends the
// conversation with an apology.
func (e *Engine) promptDates(ctx context.Context, chatID string, st *State) error {
	from := e.finder.Now()
	dates := e.finder.AvailableDates(ctx, from, st.DurationHours, e.maxDates, e.horizonDays)
	if len(dates) == 0 {
		delete(e.states, chatID)
		return e.send(ctx, chatID, msgNoDates, menuChoices())
	}
	st.OfferedDates = dates
	st.Step = StepDate
	return e.send(ctx, chatID, msgChooseDate, e.dateChoices(st))
}

func (e *Engine) promptServices(ctx context.Context, chatID string) error {
	choices := make([]string, 0, len(e.services)+1)
	for _, svc := range e.services {
		choices = append(choices, svc.Name)
	}
	choices = append(choices, menuBack)
	return e.send(ctx, chatID, msgChooseService, choices)
}

func (e *Engine) dateChoices(st *State) []string {
	choices := make([]string, 0, len(st.OfferedDates)+1)
	for _, d := range st.OfferedDates {
		choices = append(choices, schedule.FormatDate(d))
	}
	return append(choices, menuBack)
}

func (e *Engine) slotChoices(st *State) []string {
	choices := make([]string, 0, len(st.OfferedSlots)+1)
	for _, s := range st.OfferedSlots {
		choices = append(choices, s.Format("15:04"))
	}
	return append(choices, menuBack)
}

func menuChoices() []string {
	return []string{menuBook, menuContacts}
}

func (e *Engine) sendMenu(ctx context.Context, chatID string) error {
	return e.send(ctx, chatID, msgGreeting, menuChoices())
}

func (e *Engine) send(ctx context.Context, chatID, text string, choices []string) error {
	_, err := e.adapter.Send(ctx, chat.Outbound{ChatID: chatID, Text: text, Choices: choices})
	if err != nil {
		return fmt.Errorf("dialog: send to %s: %w", chatID, err)
	}
	return nil
}

// StateOf returns a copy of the state for a chat and whether one exists.
func (e *Engine) StateOf(chatID string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[chatID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// ExpireStale drops conversations idle for longer than maxAge and returns
// how many were dropped. The map holds only in-progress conversations, so
// every stale entry carries abandoned data.
func (e *Engine) ExpireStale(maxAge time.Duration) int {
	cutoff := e.finder.Now().Add(-maxAge)
	e.mu.Lock()
	defer e.mu.Unlock()
	expired := 0
	for chatID, st := range e.states {
		if !st.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(e.states, chatID)
		expired++
		log.Printf("dialog: expired conversation [chat=%s step=%s idle_since=%s]",
			chatID, st.Step, st.UpdatedAt.Format(time.RFC3339))
	}
	return expired
}
