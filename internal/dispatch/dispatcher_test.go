package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/clientdesk/internal/generate"
	"github.com/foxzi/clientdesk/internal/mailer"
	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu     sync.Mutex
	msgs   []*mailer.Message
	times  []time.Time
	failOn map[int]error
	onSend func(n int)
}

func (s *recordingSender) Send(ctx context.Context, msg *mailer.Message) error {
	s.mu.Lock()
	n := len(s.msgs)
	s.msgs = append(s.msgs, msg)
	s.times = append(s.times, time.Now())
	s.mu.Unlock()

	if s.onSend != nil {
		s.onSend(n)
	}
	return s.failOn[n]
}

func (s *recordingSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.To
	}
	return out
}

type fakeSleeper struct {
	calls []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	f.calls = append(f.calls, d)
	return ctx.Err()
}

func testUser() *models.User {
	return &models.User{ID: "owner-1", Name: "Sue", Email: "sue@x.com"}
}

func testRequest() Request {
	return Request{
		Recipients: testRecipients(),
		Sender:     testUser(),
		Subject:    "Hello {{clientName}}",
		Content:    "Hi {{clientName}} from {{clientCompany}}, signed {{freelancerName}}",
	}
}

func states(run *Run) []State {
	out := make([]State, len(run.Statuses))
	for i, st := range run.Statuses {
		out[i] = st.State
	}
	return out
}

func TestDispatch_PartialFailure(t *testing.T) {
	sender := &recordingSender{failOn: map[int]error{1: errors.New("550 mailbox unavailable")}}
	sl := &fakeSleeper{}
	d := New(sender, discardLogger(), WithSleep(sl.sleep))

	run, err := d.Dispatch(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, []State{StateSent, StateFailed, StateSent}, states(run))
	assert.Equal(t, "550 mailbox unavailable", run.Statuses[1].Error)
	assert.Empty(t, run.Statuses[0].Error)
	assert.True(t, run.Finished())
	assert.False(t, run.Cancelled)

	summary := Summarize(*run)
	assert.Equal(t, OutcomePartialFailure, summary.Outcome)
	assert.Equal(t, "2 sent, 1 failed", summary.String())
}

func TestDispatch_AllFailedRunsToCompletion(t *testing.T) {
	boom := errors.New("provider down")
	sender := &recordingSender{failOn: map[int]error{0: boom, 1: boom, 2: boom}}
	d := New(sender, discardLogger(), WithDelay(0))

	run, err := d.Dispatch(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Len(t, sender.recipients(), 3)
	assert.Equal(t, OutcomeAllFailed, Summarize(*run).Outcome)
}

func TestDispatch_Pacing(t *testing.T) {
	sender := &recordingSender{}
	sl := &fakeSleeper{}
	d := New(sender, discardLogger(), WithSleep(sl.sleep))

	_, err := d.Dispatch(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"john@acme.test", "mary@globex.test", "ann@initech.test"}, sender.recipients())
	assert.Equal(t, []time.Duration{DefaultDelay, DefaultDelay}, sl.calls)
}

func TestDispatch_RealDelay(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, discardLogger(), WithDelay(30*time.Millisecond))

	_, err := d.Dispatch(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, sender.times, 3)
	for i := 1; i < len(sender.times); i++ {
		assert.GreaterOrEqual(t, sender.times[i].Sub(sender.times[i-1]), 30*time.Millisecond)
	}
}

func TestDispatch_Message(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, discardLogger(), WithDelay(0))

	_, err := d.Dispatch(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, sender.msgs, 3)

	msg := sender.msgs[0]
	assert.Equal(t, "john@acme.test", msg.To)
	assert.Equal(t, "John", msg.ToName)
	assert.Equal(t, "Hello John", msg.Subject)
	assert.Equal(t, "Hi John from Acme, signed Sue", msg.Text)
	assert.Contains(t, msg.HTML, "<p>Hi John from Acme, signed Sue</p>")
	assert.Equal(t, "Sue", msg.FromName)
	assert.Equal(t, "sue@x.com", msg.ReplyTo)

	assert.Equal(t, "Hello Mary", sender.msgs[1].Subject)
}

func TestDispatch_HTMLContentAndCustomVariables(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, discardLogger(), WithDelay(0))

	req := testRequest()
	req.Recipients = req.Recipients[:1]
	req.Content = "<p>Hi {{clientName}}, see {{offer}}</p>"
	req.CustomVariables = map[string]string{"offer": "the attached proposal"}

	_, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "<p>Hi John, see the attached proposal</p>", sender.msgs[0].HTML)
	assert.Equal(t, "Hi John, see the attached proposal", sender.msgs[0].Text)
}

func TestDispatch_ObserverSequence(t *testing.T) {
	var snapshots []Run
	obs := ObserverFunc(func(run Run) { snapshots = append(snapshots, run) })

	sender := &recordingSender{failOn: map[int]error{1: errors.New("rejected")}}
	d := New(sender, discardLogger(), WithDelay(0), WithObserver(obs))

	req := testRequest()
	req.Recipients = req.Recipients[:2]
	_, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	// start, 2 transitions per recipient, finish
	require.Len(t, snapshots, 6)
	assert.Equal(t, []State{StatePending, StatePending}, states(&snapshots[0]))
	assert.Equal(t, []State{StateSending, StatePending}, states(&snapshots[1]))
	assert.Equal(t, []State{StateSent, StatePending}, states(&snapshots[2]))
	assert.Equal(t, []State{StateSent, StateSending}, states(&snapshots[3]))
	assert.Equal(t, []State{StateSent, StateFailed}, states(&snapshots[4]))
	assert.True(t, snapshots[5].Finished())

	// snapshots are independent copies
	snapshots[0].Statuses[0].State = StateFailed
	assert.Equal(t, StateSending, snapshots[1].Statuses[0].State)
}

func TestDispatch_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &recordingSender{onSend: func(n int) {
		if n == 0 {
			cancel()
		}
	}}
	d := New(sender, discardLogger(), WithDelay(time.Hour))

	run, err := d.Dispatch(ctx, testRequest())
	require.NoError(t, err)

	assert.Equal(t, []State{StateSent, StatePending, StatePending}, states(run))
	assert.True(t, run.Cancelled)
	assert.True(t, run.Finished())
	assert.Equal(t, OutcomeCancelled, Summarize(*run).Outcome)
	assert.Len(t, sender.recipients(), 1)
}

type denyingLimiter struct {
	calls   int
	allowed int
}

func (l *denyingLimiter) Allow(ctx context.Context, ownerID string) (*ratelimit.Result, error) {
	l.calls++
	if l.calls <= l.allowed {
		return &ratelimit.Result{Allowed: true}, nil
	}
	return &ratelimit.Result{DeniedBy: ratelimit.LevelOwner, RetryAfter: 30 * time.Minute}, nil
}

func TestDispatch_RateLimitDenialIsFailure(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, discardLogger(), WithDelay(0), WithLimiter(&denyingLimiter{allowed: 1}))

	run, err := d.Dispatch(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, []State{StateSent, StateFailed, StateFailed}, states(run))
	assert.Contains(t, run.Statuses[1].Error, "quota exceeded")
	assert.Len(t, sender.recipients(), 1)
}

func TestDispatch_InvalidRecipientSpendsNoQuota(t *testing.T) {
	sender := &recordingSender{}
	limiter := &denyingLimiter{allowed: 10}
	d := New(sender, discardLogger(), WithDelay(0), WithLimiter(limiter))

	req := testRequest()
	req.Recipients[1].Email = "not-an-address"

	run, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []State{StateSent, StateFailed, StateSent}, states(run))
	assert.Equal(t, mailer.ErrInvalidRecipient.Error(), run.Statuses[1].Error)
	assert.Equal(t, 2, limiter.calls)
	assert.Len(t, sender.recipients(), 2)
}

func TestDispatch_GeneratedHTMLBody(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, discardLogger(), WithDelay(0))

	user := testUser()
	user.Brand.PrimaryColor = "#ff6600"

	req := testRequest()
	req.Recipients = req.Recipients[:1]
	req.Sender = user
	req.Content = generate.Cleanup("```html\n" +
		`<p style="color: {{primaryColor}}">Hi {{clientName}}</p><p><a href="{{ctaUrl}}">{{ctaText}}</a></p>` +
		"\n```")

	_, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, sender.msgs, 1)

	htmlBody := sender.msgs[0].HTML
	assert.Contains(t, htmlBody, `href="mailto:sue@x.com"`)
	assert.Contains(t, htmlBody, "#ff6600")
	assert.Contains(t, htmlBody, "Hi John")
	assert.NotContains(t, htmlBody, "{{")
}

func TestDispatch_ValuesAreEscapedInHTML(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, discardLogger(), WithDelay(0))

	req := testRequest()
	req.Recipients = req.Recipients[:1]
	req.Recipients[0].Company = "Smith & <Sons>"

	req.Content = "<p>Welcome {{clientCompany}}</p>"
	_, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	req.Content = "Welcome {{clientCompany}}"
	_, err = d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, sender.msgs, 2)
	for _, msg := range sender.msgs {
		assert.Contains(t, msg.HTML, "Smith &amp; &lt;Sons&gt;")
		assert.Equal(t, "Welcome Smith & <Sons>", msg.Text)
	}
}

func TestDispatch_InvalidRequest(t *testing.T) {
	d := New(&recordingSender{}, discardLogger())

	req := testRequest()
	req.Sender = nil
	_, err := d.Dispatch(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoSender)

	_, err = New(nil, discardLogger()).Dispatch(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrNoSender)

	req = testRequest()
	req.Content = ""
	_, err = d.Dispatch(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestDispatch_NoRecipients(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, discardLogger())

	req := testRequest()
	req.Recipients = nil
	run, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, run.Statuses)
	assert.Equal(t, OutcomeEmpty, Summarize(*run).Outcome)
}

func TestPrepare_InitialStateBeforeSending(t *testing.T) {
	d := New(&recordingSender{}, discardLogger())

	req := testRequest()
	req.Recipients = req.Recipients[:2]
	run, err := d.Prepare(req)
	require.NoError(t, err)
	assert.Equal(t, []State{StatePending, StatePending}, states(run))
	assert.Equal(t, "owner-1", run.OwnerID)
	assert.Equal(t, "Hello {{clientName}}", run.Subject)
}
