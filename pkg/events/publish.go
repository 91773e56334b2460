package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// PublisherManager distributes payloads to a set of Publishers. A publisher
// is "subscribed" with the topic it should receive on; Publish serializes
// the payload once and hands it to every subscribed publisher.
//
// The manager keeps a sequence number for outgoing messages, in the order
// they are handled by Publish.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, sub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], sub)
}

// Publish distributes a payload to all publishers across all topics.
// Serializing the payload to JSON is done by Publish itself.
func (s *PublisherManager) Publish(payload interface{}) error {
	// lock for the sequence number
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", s.sequenceNumber))
	s.sequenceNumber++

	for topic, subs := range s.Publishers {
		for _, sub := range subs {
			err = sub.Publish(topic, msg)
			if err != nil {
				log.Warn().Err(err).Msg("failed to publish")
			}
		}
	}

	return nil
}

// PublishBlind is the fire-and-forget variant: failures are logged, never
// propagated.
func (s *PublisherManager) PublishBlind(payload interface{}) {
	err := s.Publish(payload)
	if err != nil {
		log.Warn().Err(err).Msg("failed to publish")
	}
}
