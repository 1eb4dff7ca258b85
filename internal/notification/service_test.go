package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/store"
)

func newTestService(t *testing.T) (*Service, *memoryStore, *memoryDirectory, *fakeEnqueuer) {
	t.Helper()
	records := newMemoryStore()
	dir := newMemoryDirectory(
		&domain.Recipient{ID: "c-1", Role: domain.RoleContributor, Email: "donor@example.org"},
		&domain.Recipient{ID: "c-2", Role: domain.RoleContributor},
	)
	q := &fakeEnqueuer{}
	svc := NewService(records, dir, q)
	svc.now = fixedNow
	return svc, records, dir, q
}

func pledgeNotice() domain.NewNotification {
	return domain.NewNotification{
		RecipientID:   "c-1",
		RecipientRole: domain.RoleContributor,
		Title:         "Pledge received",
		Body:          "Thanks for pledging",
		Category:      domain.CategoryPledge,
		Payload:       map[string]interface{}{"pledge_id": "p-9"},
	}
}

func TestService_SendNotification(t *testing.T) {
	t.Parallel()

	svc, records, _, q := newTestService(t)

	rec, err := svc.SendNotification(context.Background(), pledgeNotice())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSent, rec.Status)
	require.NotNil(t, rec.SentAt)
	assert.Equal(t, []domain.Status{domain.StatusPending, domain.StatusSent}, records.statuses)
	assert.Equal(t, domain.StatusSent, records.get(rec.ID).Status)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, config.QueueNotification, q.jobs[0].queue)
	assert.Equal(t, JobKindSendNotification, q.jobs[0].kind)
	enqueued, ok := q.jobs[0].payload.(*domain.NotificationRecord)
	require.True(t, ok, "the full record is the job payload")
	assert.Equal(t, rec.ID, enqueued.ID)
	assert.Equal(t, "p-9", enqueued.Payload["pledge_id"])
}

func TestService_SendNotificationEnqueueFailure(t *testing.T) {
	t.Parallel()

	svc, records, _, q := newTestService(t)
	q.err = errors.New("broker unavailable")

	rec, err := svc.SendNotification(context.Background(), pledgeNotice())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindExternalService, apperrors.KindOf(err))
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusFailed, records.get(rec.ID).Status)
}

func TestService_SendNotificationRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*domain.NewNotification)
		kind   apperrors.Kind
	}{
		{"unknown role", func(n *domain.NewNotification) { n.RecipientRole = "GUEST" }, apperrors.KindBusinessLogic},
		{"unknown category", func(n *domain.NewNotification) { n.Category = "LOTTERY" }, apperrors.KindBusinessLogic},
		{"missing title", func(n *domain.NewNotification) { n.Title = "" }, apperrors.KindValidation},
		{"missing recipient", func(n *domain.NewNotification) { n.RecipientID = "" }, apperrors.KindValidation},
		{"unknown recipient", func(n *domain.NewNotification) { n.RecipientID = "c-404" }, apperrors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, records, _, q := newTestService(t)
			n := pledgeNotice()
			tt.mutate(&n)

			_, err := svc.SendNotification(context.Background(), n)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
			assert.Empty(t, records.statuses, "nothing persisted")
			assert.Empty(t, q.jobs, "nothing enqueued")
		})
	}
}

func TestService_Inbox(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.SendNotification(ctx, pledgeNotice())
	require.NoError(t, err)
	_, err = svc.SendNotification(ctx, pledgeNotice())
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx, "c-1", domain.RoleContributor)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Owner mismatch is not found and leaves the record unread.
	_, err = svc.MarkRead(ctx, first.ID, "c-2", domain.RoleContributor)
	assert.True(t, apperrors.IsNotFound(err))

	read, err := svc.MarkRead(ctx, first.ID, "c-1", domain.RoleContributor)
	require.NoError(t, err)
	assert.True(t, read.Read)

	page, err := svc.List(ctx, "c-1", domain.RoleContributor, store.ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PerPage)

	n, err := svc.MarkAllRead(ctx, "c-1", domain.RoleContributor)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = svc.MarkRead(ctx, uuid.New(), "c-1", domain.RoleContributor)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_Preferences(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	prefs, err := svc.GetPreferences(ctx, "c-1", domain.RoleContributor)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPreferences(), prefs)

	updated, err := svc.UpdatePreferences(ctx, "c-1", domain.RoleContributor, domain.NotificationPreferences{
		Push:  false,
		Email: true,
		Types: map[domain.Category]bool{domain.CategoryPromotional: true},
	})
	require.NoError(t, err)
	assert.True(t, updated.Types[domain.CategoryPromotional])

	prefs, err = svc.GetPreferences(ctx, "c-1", domain.RoleContributor)
	require.NoError(t, err)
	assert.False(t, prefs.Push)
	assert.True(t, prefs.CategoryEnabled(domain.CategoryPromotional))

	_, err = svc.UpdatePreferences(ctx, "c-1", domain.RoleContributor, domain.NotificationPreferences{
		Types: map[domain.Category]bool{"LOTTERY": true},
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	prefs, err = svc.GetPreferences(ctx, "c-1", domain.RoleContributor)
	require.NoError(t, err)
	assert.True(t, prefs.Email, "rejected update leaves preferences untouched")

	_, err = svc.GetPreferences(ctx, "c-404", domain.RoleContributor)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_Devices(t *testing.T) {
	t.Parallel()

	svc, _, dir, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterDevice(ctx, "c-1", domain.RoleContributor, " ExponentPushToken[x] "))
	require.NoError(t, svc.RegisterDevice(ctx, "c-1", domain.RoleContributor, "ExponentPushToken[x]"))
	assert.Equal(t, []string{"ExponentPushToken[x]"}, dir.tokens("c-1", domain.RoleContributor))

	err := svc.RegisterDevice(ctx, "c-1", domain.RoleContributor, "  ")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	require.NoError(t, svc.UnregisterDevice(ctx, "c-1", domain.RoleContributor, "ExponentPushToken[x]"))
	require.NoError(t, svc.UnregisterDevice(ctx, "c-1", domain.RoleContributor, "ExponentPushToken[x]"))
	assert.Empty(t, dir.tokens("c-1", domain.RoleContributor))
}
