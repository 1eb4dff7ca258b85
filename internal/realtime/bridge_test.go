package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"givedesk.io/backoffice/internal/domain"
)

func TestRedisBridge_TopicRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewRedisBridge(nil, nil, nil, "backoffice_queue")

	tests := []struct {
		role domain.RecipientRole
		id   string
	}{
		{domain.RoleAdmin, "a-1"},
		{domain.RoleBeneficiary, "urn:bene:7"},
	}
	for _, tt := range tests {
		topic := b.Topic(tt.role, tt.id)
		role, id, ok := b.parseTopic(topic)
		require.True(t, ok, topic)
		assert.Equal(t, tt.role, role)
		assert.Equal(t, tt.id, id)
	}

	for _, bad := range []string{
		"other:realtime:ADMIN:a-1",
		"backoffice_queue:realtime:GUEST:a-1",
		"backoffice_queue:realtime:ADMIN",
		"backoffice_queue:realtime:ADMIN:",
	} {
		_, _, ok := b.parseTopic(bad)
		assert.False(t, ok, bad)
	}
}

func TestRedisBridge_DeliversAcrossInstances(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	prefix := "test_" + time.Now().Format("150405.000000")

	// Subscriber instance holds the session; publisher instance has none.
	subHub := NewHub(newTestPools(t))
	sub := NewRedisBridge(client, subHub, newTestPools(t), prefix)
	require.NoError(t, sub.Start(context.Background()))
	t.Cleanup(func() { _ = sub.Close() })

	pub := NewRedisBridge(client, NewHub(newTestPools(t)), newTestPools(t), prefix)

	conn := connect(t, subHub, domain.RoleContributor, "c-9")
	require.NoError(t, pub.Emit(context.Background(), domain.RoleContributor, "c-9", map[string]string{"title": "hi"}))

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Contains(t, string(raw), `"title":"hi"`)
}
