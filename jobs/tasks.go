package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/remitdesk/remitdesk/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvitationSend delivers an invitation e-mail.
	TaskInvitationSend = "invitation:send"
	// TaskInvitationExpire flips lapsed pending invitations to EXPIRED.
	TaskInvitationExpire = "invitation:expire"
)

// InvitationPayload describes one invitation e-mail.
type InvitationPayload struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewInvitationTask constructs an invitation:send task.
func NewInvitationTask(payload InvitationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvitationSend, data, asynq.MaxRetry(5)), nil
}

// NewInvitationExpireTask constructs the periodic expiry sweep task.
func NewInvitationExpireTask() *asynq.Task {
	return asynq.NewTask(TaskInvitationExpire, nil)
}

// Message is a plain-text e-mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers e-mail.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// InvitationMailer handles invitation:send tasks.
type InvitationMailer struct {
	sender  Sender
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewInvitationMailer constructs the mail job.
func NewInvitationMailer(sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvitationMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationMailer{sender: sender, logger: logger, metrics: metrics}
}

// Handle processes TaskInvitationSend tasks.
func (m *InvitationMailer) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := m.metrics.Track(TaskInvitationSend)
	var payload InvitationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Link == "" {
		return tracker.End(fmt.Errorf("%w: incomplete invitation payload", asynq.SkipRetry))
	}
	msg := invitationMessage(payload)
	if err := m.sender.Send(ctx, msg); err != nil {
		m.logger.Warn("invitation mail failed", slog.String("to", payload.Email), slog.Any("error", err))
		return tracker.End(err)
	}
	m.logger.Info("invitation mail sent", slog.String("to", payload.Email), slog.String("role", payload.Role))
	return tracker.End(nil)
}

func invitationMessage(p InvitationPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "You have been invited to RemitDesk as %s.\r\n\r\n", p.Role)
	fmt.Fprintf(&b, "Accept the invitation here:\r\n%s\r\n\r\n", p.Link)
	if !p.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "The link expires on %s.\r\n", p.ExpiresAt.UTC().Format("02 Jan 2006 15:04 MST"))
	}
	return Message{To: p.Email, Subject: "Your RemitDesk invitation", Body: b.String()}
}

// Expirer marks lapsed invitations.
type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// InvitationSweeper handles invitation:expire tasks.
type InvitationSweeper struct {
	store   Expirer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewInvitationSweeper constructs the expiry job.
func NewInvitationSweeper(store Expirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvitationSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationSweeper{store: store, logger: logger, metrics: metrics, now: time.Now}
}

// Handle processes TaskInvitationExpire tasks.
func (s *InvitationSweeper) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := s.metrics.Track(TaskInvitationExpire)
	if s.store == nil {
		return tracker.End(errors.New("invitation sweeper: store not configured"))
	}
	n, err := s.store.ExpireStale(ctx, s.now().UTC())
	if err != nil {
		return tracker.End(err)
	}
	s.metrics.AddExpired(n)
	if n > 0 {
		s.logger.Info("invitations expired", slog.Int64("count", n))
	}
	return tracker.End(nil)
}
