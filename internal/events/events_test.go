package events_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/koopa0/neon-pong/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNop 測試空實現
func TestNop(t *testing.T) {
	var p events.Publisher = events.Nop{}
	assert.NoError(t, p.Publish(context.Background(), events.Event{Type: events.TypeRoomCreated}))
	p.Close()
}

// TestNATS_Subject 測試 subject 組合
func TestNATS_Subject(t *testing.T) {
	p := events.NewNATS(nil, "", "i-1")
	assert.Equal(t, "pong.match.finished", p.Subject(events.TypeMatchFinished))

	p = events.NewNATS(nil, "arcade", "i-1")
	assert.Equal(t, "arcade.room.created", p.Subject(events.TypeRoomCreated))
}

// TestNATS_Publish 需要 NATS_URL 指向可用的 NATS 伺服器
func TestNATS_Publish(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	s, err := sub.SubscribeSync("pongtest.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := events.Connect(url, "pongtest", "instance-1")
	require.NoError(t, err)
	defer pub.Close()

	err = pub.Publish(context.Background(), events.Event{
		Type:     events.TypeMatchFinished,
		RoomCode: "ABCD",
		Winner:   "left",
		Left:     9,
		Right:    3,
	})
	require.NoError(t, err)

	msg, err := s.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pongtest.match.finished", msg.Subject)

	var got events.Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "ABCD", got.RoomCode)
	assert.Equal(t, "left", got.Winner)
	assert.Equal(t, 9, got.Left)
	assert.Equal(t, "instance-1", got.Instance)
	assert.False(t, got.Timestamp.IsZero())
}

// TestNATS_PublishCancelled 已取消的 context 不發佈
func TestNATS_PublishCancelled(t *testing.T) {
	p := events.NewNATS(nil, "", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, events.Event{Type: events.TypeRoomClosed}), context.Canceled)
}
