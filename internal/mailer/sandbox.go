package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/foxzi/clientdesk/internal/store"
)

// Captured is a message stored by the sandbox provider
type Captured struct {
	ID           string            `json:"id"`
	From         string            `json:"from"`
	To           string            `json:"to"`
	ReplyTo      string            `json:"reply_to,omitempty"`
	Subject      string            `json:"subject"`
	HTML         string            `json:"html,omitempty"`
	Text         string            `json:"text,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Attachments  []string          `json:"attachments,omitempty"`
	CapturedAt   time.Time         `json:"captured_at"`
	SimulatedErr string            `json:"simulated_error,omitempty"`
}

// SimulatedError is returned when the sandbox fakes a delivery failure
type SimulatedError struct {
	Message   string
	Temporary bool
}

func (e *SimulatedError) Error() string {
	return e.Message
}

var simulatedErrors = []string{
	"550 User not found",
	"451 Temporary failure",
	"452 Insufficient storage",
	"421 Service not available",
}

// Sandbox captures messages in the document store instead of sending them
type Sandbox struct {
	identity
	store  store.Store
	logger *slog.Logger

	mu               sync.Mutex
	rnd              *rand.Rand
	simulateErrors   bool
	errorProbability float64 // 0.0 to 1.0
}

// NewSandbox creates the sandbox provider
func NewSandbox(s store.Store, senderEmail, senderName string, logger *slog.Logger) *Sandbox {
	return &Sandbox{
		identity:         identity{email: senderEmail, name: senderName},
		store:            s,
		logger:           logger,
		rnd:              rand.New(rand.NewSource(time.Now().UnixNano())),
		errorProbability: 0.1,
	}
}

// SetErrorSimulation enables or disables random delivery failures
func (s *Sandbox) SetErrorSimulation(enabled bool, probability float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.simulateErrors = enabled
	if probability > 0 && probability <= 1 {
		s.errorProbability = probability
	}
}

// Send stores the message. With error simulation on, some sends fail after capture.
func (s *Sandbox) Send(ctx context.Context, msg *Message) error {
	captured := &Captured{
		ID:         store.NewID(),
		From:       s.from(msg),
		To:         Address(msg.ToName, msg.To),
		ReplyTo:    msg.ReplyTo,
		Subject:    msg.Subject,
		HTML:       msg.HTML,
		Text:       msg.Text,
		Headers:    msg.Headers,
		CapturedAt: time.Now().UTC(),
	}
	for _, a := range msg.Attachments {
		captured.Attachments = append(captured.Attachments, a.Filename)
	}

	errMsg := s.pickError()
	captured.SimulatedErr = errMsg

	if _, err := store.CreateDoc(ctx, s.store, store.CollectionSandbox, "", captured.ID, captured); err != nil {
		if errMsg == "" {
			return fmt.Errorf("sandbox: failed to save message: %w", err)
		}
		s.logger.Error("sandbox: failed to save message", "error", err)
	}

	if errMsg != "" {
		s.logger.Info("sandbox: simulated failure", "id", captured.ID, "to", captured.To, "error", errMsg)
		return &SimulatedError{
			Message:   errMsg,
			Temporary: strings.HasPrefix(errMsg, "4"),
		}
	}

	s.logger.Info("sandbox: message captured", "id", captured.ID, "to", captured.To, "subject", msg.Subject)
	return nil
}

func (s *Sandbox) pickError() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.simulateErrors || s.rnd.Float64() >= s.errorProbability {
		return ""
	}
	return simulatedErrors[s.rnd.Intn(len(simulatedErrors))]
}

// List returns captured messages, newest first. A zero limit returns all.
func (s *Sandbox) List(ctx context.Context, limit int) ([]Captured, error) {
	msgs, err := store.GetAll[Captured](ctx, s.store, store.CollectionSandbox, "")
	if err != nil {
		return nil, err
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CapturedAt.After(msgs[j].CapturedAt)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// Get returns a captured message by id
func (s *Sandbox) Get(ctx context.Context, id string) (*Captured, error) {
	return store.GetOne[Captured](ctx, s.store, store.CollectionSandbox, id)
}

// Clear deletes all captured messages and returns how many were removed
func (s *Sandbox) Clear(ctx context.Context) (int, error) {
	docs, err := s.store.All(ctx, store.CollectionSandbox, "")
	if err != nil {
		return 0, err
	}

	for _, doc := range docs {
		if err := s.store.Delete(ctx, store.CollectionSandbox, doc.ID, ""); err != nil {
			return 0, fmt.Errorf("failed to delete %s: %w", doc.ID, err)
		}
	}
	return len(docs), nil
}
