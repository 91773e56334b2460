package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherManagerDistributesWithSequenceNumbers(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	defer func() { _ = pubSub.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, TopicErrors)
	require.NoError(t, err)

	manager := NewPublisherManager()
	manager.SubscribePublisher(TopicErrors, pubSub)

	manager.PublishBlind(map[string]string{"error": "first"})
	manager.PublishBlind(map[string]string{"error": "second"})

	for i, expected := range []string{"first", "second"} {
		select {
		case msg := <-messages:
			var payload map[string]string
			require.NoError(t, json.Unmarshal(msg.Payload, &payload))
			assert.Equal(t, expected, payload["error"])
			assert.Equal(t, fmt.Sprintf("%d", i), msg.Metadata.Get("sequence_number"))
			msg.Ack()
		case <-time.After(5 * time.Second):
			t.Fatal("message was not delivered")
		}
	}
}

func TestDecodePayload(t *testing.T) {
	config := &PlanningConfig{Platform: "instagram", Days: []string{"tuesday"}}
	data, err := json.Marshal(config)
	require.NoError(t, err)

	got, err := DecodePayload[PlanningConfig](data)
	require.NoError(t, err)
	assert.Equal(t, config.Platform, got.Platform)
	assert.Equal(t, config.Days, got.Days)

	_, err = DecodePayload[PlanningConfig]([]byte("not json"))
	require.Error(t, err)
}
