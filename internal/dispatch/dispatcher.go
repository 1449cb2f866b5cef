package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/clientdesk/internal/content"
	"github.com/foxzi/clientdesk/internal/mailer"
	"github.com/foxzi/clientdesk/internal/metrics"
	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/ratelimit"
	"github.com/foxzi/clientdesk/internal/variables"
)

// DefaultDelay is the pause between two recipients
const DefaultDelay = time.Second

var (
	// ErrNoSender is returned when the run has no freelancer to send as
	ErrNoSender = errors.New("no sender configured")
	// ErrEmptyMessage is returned when subject or content is blank
	ErrEmptyMessage = errors.New("subject and content are required")
)

// Request describes one bulk send
type Request struct {
	Recipients      []models.Client
	Sender          *models.User
	Subject         string
	Content         string
	CustomVariables map[string]string
}

// Observer receives a snapshot of the run after every transition
type Observer interface {
	OnUpdate(run Run)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(run Run)

// OnUpdate implements Observer
func (f ObserverFunc) OnUpdate(run Run) { f(run) }

// Limiter decides whether the owner may send another message
type Limiter interface {
	Allow(ctx context.Context, ownerID string) (*ratelimit.Result, error)
}

// Dispatcher sends a message to recipients one at a time
type Dispatcher struct {
	sender   mailer.Sender
	engine   *variables.Engine
	limiter  Limiter
	observer Observer
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithDelay sets the pause between recipients
func WithDelay(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d >= 0 {
			disp.delay = d
		}
	}
}

// WithLimiter enforces send quotas per recipient
func WithLimiter(l Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithObserver registers the run observer
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithEngine sets the variable engine used for rendering
func WithEngine(e *variables.Engine) Option {
	return func(d *Dispatcher) {
		if e != nil {
			d.engine = e
		}
	}
}

// WithSleep replaces the pause implementation
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// WithClock sets the time source for status timestamps
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher
func New(sender mailer.Sender, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sender: sender,
		engine: variables.New(),
		delay:  DefaultDelay,
		sleep:  sleepContext,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Prepare validates req and returns the initial run with every recipient pending
func (d *Dispatcher) Prepare(req Request) (*Run, error) {
	if d.sender == nil || req.Sender == nil {
		return nil, ErrNoSender
	}
	if req.Subject == "" || req.Content == "" {
		return nil, ErrEmptyMessage
	}

	run := NewRun(req.Sender.ID, req.Recipients)
	run.Subject = req.Subject
	run.StartedAt = d.now()
	return run, nil
}

// Dispatch runs a bulk send to completion. Send failures are recorded on
// the run; the error is only returned for an invalid request.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Run, error) {
	run, err := d.Prepare(req)
	if err != nil {
		return nil, err
	}
	return d.Execute(ctx, req, run), nil
}

// Execute processes a prepared run in recipient order. When ctx is
// cancelled between recipients the rest stay pending and the run is
// marked cancelled.
func (d *Dispatcher) Execute(ctx context.Context, req Request, prepared *Run) *Run {
	run := prepared.Clone()
	logger := d.logger.With("run_id", run.ID, "owner_id", run.OwnerID)
	logger.Info("dispatch started", "recipients", len(run.Statuses))

	metrics.RunStarted()
	start := time.Now()
	d.notify(run)

	for i := range run.Statuses {
		if i > 0 && d.delay > 0 {
			if err := d.sleep(ctx, d.delay); err != nil {
				run.Cancelled = true
				break
			}
		}
		if ctx.Err() != nil {
			run.Cancelled = true
			break
		}

		run = d.advance(run, i, StateSending, nil)

		err := d.sendOne(ctx, req, req.Recipients[i])
		if err != nil {
			logger.Warn("send failed", "client_id", run.Statuses[i].RecipientID, "email", run.Statuses[i].Email, "error", err)
			run = d.advance(run, i, StateFailed, err)
			continue
		}
		run = d.advance(run, i, StateSent, nil)
	}

	run.FinishedAt = d.now()
	summary := Summarize(run)
	metrics.RunFinished(summary.Outcome, time.Since(start).Seconds())
	d.notify(run)

	logger.Info("dispatch finished", "outcome", summary.Outcome, "summary", summary.String())
	return &run
}

func (d *Dispatcher) advance(run Run, index int, to State, outcome error) Run {
	next, err := Advance(run, index, to, outcome)
	if err != nil {
		// The loop only issues legal transitions
		d.logger.Error("unexpected transition", "run_id", run.ID, "error", err)
		return run
	}
	next.Statuses[index].UpdatedAt = d.now()
	d.notify(next)
	return next
}

func (d *Dispatcher) notify(run Run) {
	if d.observer != nil {
		d.observer.OnUpdate(run.Clone())
	}
}

func (d *Dispatcher) sendOne(ctx context.Context, req Request, recipient models.Client) error {
	vctx := variables.Context{
		Client:          &recipient,
		User:            req.Sender,
		ProjectType:     recipient.ProjectType,
		CustomVariables: req.CustomVariables,
	}
	vars := d.engine.AvailableVariables(vctx)

	htmlBody, textBody, err := content.Render(req.Content, d.engine.Fill(vars))
	if err != nil {
		return fmt.Errorf("failed to render body: %w", err)
	}

	msg := &mailer.Message{
		To:       recipient.Email,
		ToName:   recipient.Name,
		Subject:  d.engine.Substitute(req.Subject, vars),
		HTML:     htmlBody,
		Text:     textBody,
		FromName: req.Sender.Name,
		ReplyTo:  req.Sender.Email,
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	// Quota is only spent on messages that are actually handed to the provider
	if d.limiter != nil {
		res, err := d.limiter.Allow(ctx, req.Sender.ID)
		if err != nil {
			return fmt.Errorf("rate limit check failed: %w", err)
		}
		if !res.Allowed {
			return res
		}
	}

	return d.sender.Send(ctx, msg)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
