package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"givedesk.io/backoffice/internal/api/middleware"
	"givedesk.io/backoffice/internal/domain"
	"givedesk.io/backoffice/internal/notification"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/queue"
	"givedesk.io/backoffice/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

type recipientKey struct {
	role domain.RecipientRole
	id   string
}

// fakeNotifications is an in-memory NotificationService.
type fakeNotifications struct {
	mu          sync.Mutex
	records     []*domain.NotificationRecord
	prefs       map[recipientKey]domain.NotificationPreferences
	devices     map[recipientKey][]string
	prefWrites  int
	lastFilter  store.ListFilter
	sendErr     error
	knownSender map[recipientKey]bool
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{
		prefs:       map[recipientKey]domain.NotificationPreferences{},
		devices:     map[recipientKey][]string{},
		knownSender: map[recipientKey]bool{},
	}
}

func (f *fakeNotifications) add(role domain.RecipientRole, id string, read bool) *domain.NotificationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := &domain.NotificationRecord{
		ID:            uuid.New(),
		RecipientID:   id,
		RecipientRole: role,
		Title:         "Pledge received",
		Body:          "Thank you",
		Category:      domain.CategoryPledge,
		Status:        domain.StatusSent,
		Read:          read,
		CreatedAt:     time.Now().UTC(),
	}
	f.records = append(f.records, rec)
	return rec
}

func (f *fakeNotifications) SendNotification(_ context.Context, n domain.NewNotification) (*domain.NotificationRecord, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if !f.knownSender[recipientKey{n.RecipientRole, n.RecipientID}] {
		return nil, apperrors.ErrRecipientNotFound(string(n.RecipientRole), n.RecipientID)
	}
	rec := n.Record(time.Now())
	rec.Status = domain.StatusSent
	f.mu.Lock()
	f.records = append(f.records, rec)
	f.mu.Unlock()
	return rec, nil
}

func (f *fakeNotifications) owned(recipientID string, role domain.RecipientRole, unreadOnly bool) []*domain.NotificationRecord {
	var out []*domain.NotificationRecord
	for _, r := range f.records {
		if r.RecipientID == recipientID && r.RecipientRole == role && (!unreadOnly || !r.Read) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeNotifications) List(_ context.Context, recipientID string, role domain.RecipientRole, filter store.ListFilter) (*notification.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	items := f.owned(recipientID, role, filter.UnreadOnly)
	page, perPage := filter.Normalized()
	return &notification.Page{Items: items, Total: len(items), Page: page, PerPage: perPage}, nil
}

func (f *fakeNotifications) UnreadCount(_ context.Context, recipientID string, role domain.RecipientRole) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.owned(recipientID, role, true)), nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, id uuid.UUID, recipientID string, role domain.RecipientRole) (*domain.NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.owned(recipientID, role, false) {
		if r.ID == id {
			r.Read = true
			return r, nil
		}
	}
	return nil, apperrors.ErrNotificationNotFound(id.String())
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, recipientID string, role domain.RecipientRole) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.owned(recipientID, role, true) {
		r.Read = true
		n++
	}
	return n, nil
}

func (f *fakeNotifications) GetPreferences(_ context.Context, recipientID string, role domain.RecipientRole) (domain.NotificationPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.prefs[recipientKey{role, recipientID}]; ok {
		return p, nil
	}
	return domain.DefaultPreferences(), nil
}

func (f *fakeNotifications) UpdatePreferences(_ context.Context, recipientID string, role domain.RecipientRole, prefs domain.NotificationPreferences) (domain.NotificationPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefWrites++
	f.prefs[recipientKey{role, recipientID}] = prefs
	return prefs, nil
}

func (f *fakeNotifications) RegisterDevice(_ context.Context, recipientID string, role domain.RecipientRole, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := recipientKey{role, recipientID}
	f.devices[k] = append(f.devices[k], token)
	return nil
}

func (f *fakeNotifications) UnregisterDevice(_ context.Context, recipientID string, role domain.RecipientRole, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := recipientKey{role, recipientID}
	kept := f.devices[k][:0]
	for _, t := range f.devices[k] {
		if t != token {
			kept = append(kept, t)
		}
	}
	f.devices[k] = kept
	return nil
}

// fakeQueues is an in-memory QueueAdmin.
type fakeQueues struct {
	mu      sync.Mutex
	paused  map[string]bool
	initErr error
}

func newFakeQueues() *fakeQueues {
	return &fakeQueues{paused: map[string]bool{}}
}

func (f *fakeQueues) QueueInfos() ([]queue.Info, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return []queue.Info{
		{Name: "notification", Concurrency: 10, Consumer: true, MaxAttempts: 3},
		{Name: "email", Concurrency: 5, Consumer: true, MaxAttempts: 3},
		{Name: "payment", MaxAttempts: 3},
		{Name: "report", Concurrency: 1, Consumer: true, MaxAttempts: 3},
	}, nil
}

func (f *fakeQueues) set(name string, paused bool) error {
	switch name {
	case "notification", "email", "payment", "report":
	default:
		return apperrors.QueueNotFoundError(name)
	}
	f.mu.Lock()
	f.paused[name] = paused
	f.mu.Unlock()
	return nil
}

func (f *fakeQueues) PauseQueue(_ context.Context, name string) error  { return f.set(name, true) }
func (f *fakeQueues) ResumeQueue(_ context.Context, name string) error { return f.set(name, false) }

// newTestRouter mounts the handlers the way internal/app does, with the
// caller's principal injected in place of JWT validation.
func newTestRouter(srv *Server, who *middleware.Principal) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.ErrorHandler())
	router.Use(func(c *gin.Context) {
		if who != nil {
			c.Request = c.Request.WithContext(middleware.SetPrincipal(c.Request.Context(), *who))
		}
		c.Next()
	})

	router.GET("/health/live", srv.GetLiveness)
	router.GET("/health/ready", srv.GetReadiness)

	v1 := router.Group("/api/v1")
	v1.GET("/notifications", srv.ListNotifications)
	v1.POST("/notifications", middleware.RequireRole(domain.RoleAdmin, domain.RoleStaff), srv.CreateNotification)
	v1.GET("/notifications/unread-count", srv.GetUnreadCount)
	v1.GET("/notifications/preferences", srv.GetPreferences)
	v1.PUT("/notifications/preferences", srv.UpdatePreferences)
	v1.PUT("/notifications/read-all", srv.MarkAllNotificationsRead)
	v1.PUT("/notifications/:id/read", srv.MarkNotificationRead)
	v1.POST("/notifications/devices", srv.RegisterDevice)
	v1.DELETE("/notifications/devices/:token", srv.UnregisterDevice)
	v1.GET("/ws/notifications", srv.ServeNotificationSocket)

	admin := v1.Group("/admin", middleware.RequireRole(domain.RoleAdmin))
	admin.GET("/queues", srv.ListQueues)
	admin.POST("/queues/:name/pause", srv.PauseQueue)
	admin.POST("/queues/:name/resume", srv.ResumeQueue)
	return router
}
