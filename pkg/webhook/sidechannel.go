package webhook

import (
	"bytes"
	"io"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/taomfnbd/chamalloW/pkg/events"
)

// SideChannel forwards agent and planning configuration events to their
// webhooks. It consumes from the event router so the chat core never waits
// on these calls: a forwarding failure is logged and dropped, never
// retried or surfaced.
type SideChannel struct {
	httpClient  *http.Client
	agentURL    string
	planningURL string
}

type SideChannelOption func(*SideChannel)

func WithSideChannelHTTPClient(httpClient *http.Client) SideChannelOption {
	return func(s *SideChannel) {
		s.httpClient = httpClient
	}
}

func NewSideChannel(agentURL string, planningURL string, options ...SideChannelOption) *SideChannel {
	ret := &SideChannel{
		httpClient:  &http.Client{},
		agentURL:    agentURL,
		planningURL: planningURL,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// RegisterHandlers subscribes the forwarder to the configuration topics.
// Topics without a configured webhook are skipped.
func (s *SideChannel) RegisterHandlers(router *events.EventRouter) {
	if s.agentURL != "" {
		router.AddHandler("agent-config-forwarder", events.TopicAgentConfig, s.forwardTo(s.agentURL))
	}
	if s.planningURL != "" {
		router.AddHandler("planning-config-forwarder", events.TopicPlanningConfig, s.forwardTo(s.planningURL))
	}
}

func (s *SideChannel) forwardTo(target string) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		resp, err := s.httpClient.Post(target, "application/json", bytes.NewReader(msg.Payload))
		if err != nil {
			log.Warn().Err(err).Str("url", target).Msg("failed to forward configuration")
			return nil
		}
		defer func(body io.ReadCloser) {
			_ = body.Close()
		}(resp.Body)
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			log.Warn().Int("status", resp.StatusCode).Str("url", target).Msg("configuration webhook rejected the payload")
		} else {
			log.Debug().Str("url", target).Msg("forwarded configuration")
		}
		// fire-and-forget: never nack, a failed forward is dropped
		return nil
	}
}
