package notification

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/push"
	"givedesk.io/backoffice/internal/queue"
	"givedesk.io/backoffice/internal/store"
)

func init() {
	_ = logger.Init("error", "json")
}

// memoryDirectory is an in-memory RecipientDirectory.
type memoryDirectory struct {
	mu         sync.Mutex
	recipients map[string]*domain.Recipient
	resolveErr error
	pruneErr   error
	prunes     [][]string
}

func newMemoryDirectory(rs ...*domain.Recipient) *memoryDirectory {
	d := &memoryDirectory{recipients: make(map[string]*domain.Recipient)}
	for _, r := range rs {
		d.recipients[string(r.Role)+"/"+r.ID] = r
	}
	return d
}

func (d *memoryDirectory) get(id string, role domain.RecipientRole) (*domain.Recipient, error) {
	r, ok := d.recipients[string(role)+"/"+id]
	if !ok {
		return nil, apperrors.ErrRecipientNotFound(string(role), id)
	}
	return r, nil
}

func (d *memoryDirectory) Resolve(_ context.Context, id string, role domain.RecipientRole) (*domain.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolveErr != nil {
		return nil, d.resolveErr
	}
	r, err := d.get(id, role)
	if err != nil {
		return nil, err
	}
	cp := *r
	cp.PushTokens = slices.Clone(r.PushTokens)
	return &cp, nil
}

func (d *memoryDirectory) UpdatePreferences(_ context.Context, id string, role domain.RecipientRole, prefs domain.NotificationPreferences) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.get(id, role)
	if err != nil {
		return err
	}
	r.Preferences = &prefs
	return nil
}

func (d *memoryDirectory) AddPushToken(_ context.Context, id string, role domain.RecipientRole, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.get(id, role)
	if err != nil {
		return err
	}
	if !slices.Contains(r.PushTokens, token) {
		r.PushTokens = append(r.PushTokens, token)
	}
	return nil
}

func (d *memoryDirectory) RemovePushTokens(_ context.Context, id string, role domain.RecipientRole, tokens []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prunes = append(d.prunes, slices.Clone(tokens))
	if d.pruneErr != nil {
		return d.pruneErr
	}
	r, err := d.get(id, role)
	if err != nil {
		return err
	}
	r.PushTokens = slices.DeleteFunc(r.PushTokens, func(t string) bool { return slices.Contains(tokens, t) })
	return nil
}

func (d *memoryDirectory) tokens(id string, role domain.RecipientRole) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, _ := d.get(id, role)
	return slices.Clone(r.PushTokens)
}

// callLog records channel invocations across senders in order.
type callLog struct {
	mu    sync.Mutex
	calls []domain.Channel
}

func (l *callLog) add(ch domain.Channel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, ch)
}

func (l *callLog) list() []domain.Channel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

// memorySender records sends and returns err.
type memorySender struct {
	channel domain.Channel
	log     *callLog
	err     error
	block   bool
}

func (s *memorySender) Channel() domain.Channel { return s.channel }

func (s *memorySender) Send(ctx context.Context, _ *domain.NotificationRecord) error {
	s.log.add(s.channel)
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func allSenders(log *callLog) map[domain.Channel]*memorySender {
	out := make(map[domain.Channel]*memorySender, len(domain.DispatchOrder))
	for _, ch := range domain.DispatchOrder {
		out[ch] = &memorySender{channel: ch, log: log}
	}
	return out
}

func senderList(m map[domain.Channel]*memorySender) []Sender {
	out := make([]Sender, 0, len(m))
	for _, ch := range domain.DispatchOrder {
		if s, ok := m[ch]; ok {
			out = append(out, s)
		}
	}
	return out
}

// fakeGateway records batches and answers with per-token statuses.
type fakeGateway struct {
	mu      sync.Mutex
	batches [][]push.Message
	failed  map[string]bool
	// errOnBatch fails the batch with this 1-based index.
	errOnBatch int
	err        error
}

func (g *fakeGateway) SendBatch(_ context.Context, msgs []push.Message) ([]push.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.batches = append(g.batches, slices.Clone(msgs))
	if g.errOnBatch == len(g.batches) {
		return nil, g.err
	}
	tickets := make([]push.Ticket, len(msgs))
	for i, m := range msgs {
		status := push.TicketOK
		if g.failed[m.Token] {
			status = push.TicketError
		}
		tickets[i] = push.Ticket{Token: m.Token, Status: status}
	}
	return tickets, nil
}

type enqueued struct {
	queue   string
	kind    string
	payload interface{}
}

// fakeEnqueuer records AddJob calls.
type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueued
	err  error
}

func (q *fakeEnqueuer) AddJob(_ context.Context, queueName, kind string, payload interface{}, _ *queue.JobOptions) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return 0, q.err
	}
	q.jobs = append(q.jobs, enqueued{queue: queueName, kind: kind, payload: payload})
	return int64(len(q.jobs)), nil
}

// memoryStore is an in-memory Store.
type memoryStore struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*domain.NotificationRecord
	statuses  []domain.Status
	createErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[uuid.UUID]*domain.NotificationRecord)}
}

func (s *memoryStore) Create(_ context.Context, rec *domain.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *rec
	s.records[rec.ID] = &cp
	s.statuses = append(s.statuses, rec.Status)
	return nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return apperrors.ErrNotificationNotFound(id.String())
	}
	rec.Status = status
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *memoryStore) ListByRecipient(_ context.Context, recipientID string, role domain.RecipientRole, filter store.ListFilter) ([]*domain.NotificationRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.NotificationRecord
	for _, r := range s.records {
		if r.RecipientID == recipientID && r.RecipientRole == role && (!filter.UnreadOnly || !r.Read) {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (s *memoryStore) UnreadCount(_ context.Context, recipientID string, role domain.RecipientRole) (int, error) {
	items, _, _ := s.ListByRecipient(context.Background(), recipientID, role, store.ListFilter{UnreadOnly: true})
	return len(items), nil
}

func (s *memoryStore) MarkRead(_ context.Context, id uuid.UUID, recipientID string, role domain.RecipientRole) (*domain.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.RecipientID != recipientID || r.RecipientRole != role {
		return nil, apperrors.ErrNotificationNotFound(id.String())
	}
	r.Read = true
	return r, nil
}

func (s *memoryStore) MarkAllRead(_ context.Context, recipientID string, role domain.RecipientRole) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.records {
		if r.RecipientID == recipientID && r.RecipientRole == role && !r.Read {
			r.Read = true
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) get(id uuid.UUID) *domain.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func testRecord(role domain.RecipientRole, id string, category domain.Category) *domain.NotificationRecord {
	return domain.NewNotification{
		RecipientID:   id,
		RecipientRole: role,
		Title:         "Pledge received",
		Body:          "Thank you for your pledge",
		Category:      category,
		Payload:       map[string]interface{}{"pledge_id": "p-1", "amount": 25},
	}.Record(fixedNow())
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}
