package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord(t *testing.T) {
	gameID := uuid.New()
	data := []byte(`{"game_id":"` + gameID.String() + `","action_index":3,"turn_version":2,"actor":"alice","action_type":"turn_forfeited","action_payload":{"penalty":1},"timestamp":42}`)

	rec, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, gameID, rec.GameID)
	assert.Equal(t, 3, rec.ActionIndex)
	assert.Equal(t, int64(2), rec.TurnVersion)
	assert.Equal(t, "alice", rec.Actor)
	assert.Equal(t, "turn_forfeited", rec.ActionType)
	assert.EqualValues(t, 1, rec.ActionPayload["penalty"])
}

func TestDecodeRecordInvalid(t *testing.T) {
	_, err := DecodeRecord([]byte("not json"))
	assert.Error(t, err)
}

// Needs a running redis; set REDIS_ADDR to enable.
func TestPublishAndPop(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := Connect(ctx, addr, 0)
	require.NoError(t, err)
	defer rdb.Close()

	queue := "ichi_actions_test_" + uuid.NewString()
	defer rdb.Del(ctx, queue)

	rec := GameActionRecord{GameID: uuid.New(), ActionIndex: 1, Actor: "bob", ActionType: "turn_started"}
	require.NoError(t, NewPublisher(rdb, queue).PublishGameAction(ctx, rec))

	got, err := NewQueue(rdb, queue).Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.GameID, got.GameID)
	assert.Equal(t, "bob", got.Actor)
}
