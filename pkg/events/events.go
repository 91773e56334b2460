package events

import (
	"encoding/json"
	"time"

	"github.com/taomfnbd/chamalloW/pkg/attachments"
)

// Topics for the outbound side channels. The chat core publishes here and
// the webhook integration adapter consumes, so a flaky remote never blocks
// the success path.
const (
	TopicAgentConfig    = "chamallow.agent"
	TopicPlanningConfig = "chamallow.planning"
	TopicErrors         = "chamallow.errors"
)

// AgentConfig carries the knowledge-base instructions, documents and
// keywords used to train the generation agent. Instructions are grouped by
// context tab (general, photo, instagram, linkedin).
type AgentConfig struct {
	Instructions map[string][]string     `json:"instructions"`
	Documents    []*attachments.Document `json:"documents"`
	Keywords     []string                `json:"keywords"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}

// PlanningConfig carries content-scheduling preferences for a platform.
type PlanningConfig struct {
	Platform  string    `json:"platform"`
	Days      []string  `json:"days"`
	Time      string    `json:"time"`
	Frequency string    `json:"frequency"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DecodePayload unmarshals a watermill message payload into T.
func DecodePayload[T any](payload []byte) (*T, error) {
	var ret T
	if err := json.Unmarshal(payload, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}
