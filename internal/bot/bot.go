// Package bot runs the main Pitstop process. The daemon connects the chat
// adapter, pumps inbound messages to the dialog engine and the approval
// workflow, and drives the cron-based background jobs.
package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/avdonin/pitstop/internal/approval"
	"github.com/avdonin/pitstop/internal/chat"
	"github.com/avdonin/pitstop/internal/dialog"
	"github.com/avdonin/pitstop/internal/store"
)

// Default background job settings.
const (
	DefaultSweepCron   = "*/10 * * * *"
	DefaultSweepMaxAge = 30 * time.Minute
)

// Daemon is the main Pitstop process.
type Daemon struct {
	adapter  chat.Adapter
	engine   *dialog.Engine
	workflow *approval.Workflow
	store    *store.Store
	approver string
	loc      *time.Location
	now      func() time.Time

	sweepCron   string
	sweepMaxAge time.Duration

	digestEnabled bool
	digestCron    string

	out io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter  chat.Adapter
	Engine   *dialog.Engine
	Workflow *approval.Workflow
	Store    *store.Store

	// Approver is the chat the daily digest goes to.
	Approver string

	// Location anchors the digest's midnight, defaults to UTC+4.
	Location *time.Location

	// SweepCron and SweepMaxAge control conversation expiry.
	SweepCron   string
	SweepMaxAge time.Duration

	// DigestEnabled and DigestCron control the daily summary.
	DigestEnabled bool
	DigestCron    string

	Now func() time.Time // defaults to time.Now
	Out io.Writer        // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("bot: engine is required")
	}
	if opts.Workflow == nil {
		return nil, fmt.Errorf("bot: workflow is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: store is required")
	}
	if opts.Approver == "" {
		return nil, fmt.Errorf("bot: approver chat is required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.FixedZone("UTC+4", 4*3600)
	}
	sweepCron := opts.SweepCron
	if sweepCron == "" {
		sweepCron = DefaultSweepCron
	}
	maxAge := opts.SweepMaxAge
	if maxAge <= 0 {
		maxAge = DefaultSweepMaxAge
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		adapter:       opts.Adapter,
		engine:        opts.Engine,
		workflow:      opts.Workflow,
		store:         opts.Store,
		approver:      opts.Approver,
		loc:           loc,
		now:           now,
		sweepCron:     sweepCron,
		sweepMaxAge:   maxAge,
		digestEnabled: opts.DigestEnabled,
		digestCron:    opts.DigestCron,
		out:           out,
	}, nil
}

// Run starts the daemon. It connects the adapter, starts the background
// schedulers and blocks pumping inbound messages until the context is
// cancelled. On shutdown it closes the adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Pitstop connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	go d.runSchedulers(ctx)

	fmt.Fprintf(d.out, "Pitstop online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Pitstop shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				log.Printf("bot: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Pitstop stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Pitstop inbound channel closed\n")
				return nil
			}
			d.route(ctx, msg)
		}
	}
}

// route dispatches one inbound message. Handler errors are logged so a bad
// message never stops the pump.
func (d *Daemon) route(ctx context.Context, msg chat.Inbound) {
	if msg.Callback != nil {
		if err := d.workflow.HandleCallback(ctx, msg); err != nil {
			log.Printf("bot: callback from %s: %v", msg.UserID, err)
		}
		return
	}

	consumed, err := d.workflow.HandleMessage(ctx, msg)
	if err != nil {
		log.Printf("bot: reschedule message from %s: %v", msg.UserID, err)
	}
	if consumed {
		return
	}

	if err := d.engine.Handle(ctx, msg); err != nil {
		log.Printf("bot: message from %s: %v", msg.UserID, err)
	}
}

// runSchedulers manages the cron timers for conversation expiry and the
// daily digest.
func (d *Daemon) runSchedulers(ctx context.Context) {
	var sweepTimer, digestTimer *time.Timer
	if dur := nextCronDuration(d.sweepCron, d.now().In(d.loc)); dur > 0 {
		sweepTimer = time.NewTimer(dur)
	}
	if d.digestEnabled && d.digestCron != "" {
		if dur := nextCronDuration(d.digestCron, d.now().In(d.loc)); dur > 0 {
			digestTimer = time.NewTimer(dur)
		}
	}

	defer func() {
		if sweepTimer != nil {
			sweepTimer.Stop()
		}
		if digestTimer != nil {
			digestTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timerChan(sweepTimer):
			if n := d.engine.ExpireStale(d.sweepMaxAge); n > 0 {
				log.Printf("bot: expired %d stale conversations", n)
			}
			if dur := nextCronDuration(d.sweepCron, d.now().In(d.loc)); dur > 0 {
				sweepTimer.Reset(dur)
			}
		case <-timerChan(digestTimer):
			d.fireDigest(ctx)
			if dur := nextCronDuration(d.digestCron, d.now().In(d.loc)); dur > 0 {
				digestTimer.Reset(dur)
			}
		}
	}
}

// fireDigest sends the approver a count of today's requests. A day with no
// requests sends nothing.
func (d *Daemon) fireDigest(ctx context.Context) {
	now := d.now().In(d.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.loc)

	count, err := d.store.CountSince(midnight)
	if err != nil {
		log.Printf("bot: digest count: %v", err)
		return
	}
	if count == 0 {
		return
	}

	text := fmt.Sprintf("За сегодня поступило заявок: %d.", count)
	if _, err := d.adapter.Send(ctx, chat.Outbound{ChatID: d.approver, Text: text}); err != nil {
		log.Printf("bot: send digest: %v", err)
	}
}
