package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/taomfnbd/chamalloW/pkg/attachments"
)

// Generator dispatches one generation request and returns the raw,
// non-normalized result.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// GenerationRequest is the contract between the store and the generation
// client.
type GenerationRequest struct {
	Platform       Platform
	Message        string
	ConversationID uuid.UUID
	Attachments    []attachments.Encoded
}

// GenerationResult carries the raw decoded response body. For the image
// platform, Image is non-nil and the payload has already been interpreted
// as a text-or-image reply.
type GenerationResult struct {
	// Payload is the decoded JSON body (or the raw text when the body was
	// not parseable). Normalization happens in the store.
	Payload interface{}
	// Score is 0 when the service sent none.
	Score int
	Image *ImageReply
}

// ImageReply is the image-platform response shape. URL is empty for
// text-only replies.
type ImageReply struct {
	URL  string
	Text string
}

// Persister snapshots the whole conversation registry to durable storage.
type Persister interface {
	Save(conversations []*Conversation) error
	Load() ([]*Conversation, error)
}

// Publisher distributes fire-and-forget events. Satisfied by
// events.PublisherManager.
type Publisher interface {
	PublishBlind(payload interface{})
}

// ErrGenerationInFlight is returned when a send or regenerate is attempted
// while another generation is already running. The UI gates sending while
// loading, so hitting this is a caller error; the store leaves its state
// untouched.
var ErrGenerationInFlight = errors.New("a generation request is already in flight")

// SendFailedNotice is the transient banner text shown when a generation
// request fails.
const SendFailedNotice = "Impossible d'envoyer le message. Vérifiez votre connexion."

const defaultNoticeTTL = 4 * time.Second

// DefaultScore is attached to assistant messages when the service omits a
// score (text platforms only).
const DefaultScore = 85

// DefaultImageCaption accompanies a generated image when the service sends
// no caption text.
const DefaultImageCaption = "Voici l'image générée."

// GenerationFailed is published on the error topic when a request fails.
type GenerationFailed struct {
	Platform       Platform  `json:"platform"`
	ConversationID uuid.UUID `json:"conversationId"`
	Error          string    `json:"error"`
}

// Store owns the conversation registry and the active-thread pointer, and
// orchestrates the request/response lifecycle against the generation
// service. It is designed for a single cooperative execution context: the
// only suspension point is the awaited generation call, guarded by a single
// loading flag.
//
// Construct isolated instances through NewStore and inject dependencies via
// options; there is no ambient global store.
type Store struct {
	conversations []*Conversation
	currentID     uuid.UUID
	loading       bool

	notice        string
	noticeExpires time.Time
	noticeTTL     time.Duration

	generator Generator
	persister Persister
	publisher Publisher

	now    func() time.Time
	logger zerolog.Logger
}

type StoreOption func(*Store)

func WithGenerator(g Generator) StoreOption {
	return func(s *Store) {
		s.generator = g
	}
}

func WithPersister(p Persister) StoreOption {
	return func(s *Store) {
		s.persister = p
	}
}

func WithPublisher(p Publisher) StoreOption {
	return func(s *Store) {
		s.publisher = p
	}
}

func WithNoticeTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.noticeTTL = ttl
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore builds a store and rehydrates the registry from the persister
// when one is configured. A read failure starts with an empty registry,
// logged but not fatal.
func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		conversations: []*Conversation{},
		noticeTTL:     defaultNoticeTTL,
		now:           time.Now,
		logger:        log.Logger,
	}
	for _, option := range options {
		option(ret)
	}

	if ret.persister != nil {
		convs, err := ret.persister.Load()
		if err != nil {
			ret.logger.Warn().Err(err).Msg("failed to load conversations, starting empty")
		} else if convs != nil {
			ret.conversations = convs
		}
	}

	return ret
}

// Conversations returns the registry, newest first.
func (s *Store) Conversations() []*Conversation {
	return s.conversations
}

// CurrentConversation returns the active conversation, or nil when none is
// selected.
func (s *Store) CurrentConversation() *Conversation {
	if s.currentID == uuid.Nil {
		return nil
	}
	return s.findConversation(s.currentID)
}

// ConversationFor resolves the active conversation as seen from a platform
// view: a conversation from another platform is never shown in the active
// view, so it resolves to nil.
func (s *Store) ConversationFor(platform Platform) *Conversation {
	conv := s.CurrentConversation()
	if conv == nil || conv.Platform != platform {
		return nil
	}
	return conv
}

// IsLoading reports whether a generation request is in flight.
func (s *Store) IsLoading() bool {
	return s.loading
}

// Notice returns the active transient error banner, or "" once it expired.
func (s *Store) Notice() string {
	if s.notice == "" || s.now().After(s.noticeExpires) {
		return ""
	}
	return s.notice
}

// NewConversation allocates an empty conversation at the head of the
// registry and makes it active.
func (s *Store) NewConversation(platform Platform) *Conversation {
	conv := NewConversation(platform)
	s.conversations = append([]*Conversation{conv}, s.conversations...)
	s.currentID = conv.ID
	s.logger.Debug().
		Str("conversation_id", conv.ID.String()).
		Str("platform", string(platform)).
		Msg("created conversation")
	s.persist()
	return conv
}

// SelectConversation points the active marker at the given conversation.
// Returns false when the id is unknown, leaving the marker unchanged.
func (s *Store) SelectConversation(id uuid.UUID) bool {
	if s.findConversation(id) == nil {
		return false
	}
	s.currentID = id
	return true
}

// DeleteConversation removes a conversation from the registry. Irreversible.
// Deleting the active conversation clears the active marker.
func (s *Store) DeleteConversation(id uuid.UUID) {
	kept := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(s.conversations) {
		return
	}
	s.conversations = kept
	if s.currentID == id {
		s.currentID = uuid.Nil
	}
	s.persist()
}

// SendMessage appends the user's message to the target conversation,
// dispatches a generation request, and appends the assistant reply. The
// target is the active conversation when it matches the platform; otherwise
// a new conversation is created so a thread never mixes platforms.
//
// The user message is appended optimistically: a failed generation leaves it
// in the transcript, raises a transient notice, and appends nothing else.
func (s *Store) SendMessage(ctx context.Context, platform Platform, content string, atts []*attachments.Attachment) error {
	if s.loading {
		return ErrGenerationInFlight
	}

	conv := s.CurrentConversation()
	if conv == nil || conv.Platform != platform {
		conv = s.NewConversation(platform)
	}

	userMsg := NewMessage(RoleUser, content, WithAttachments(atts...))
	conv.Append(userMsg)
	s.persist()

	s.loading = true
	defer func() {
		s.loading = false
	}()

	s.logger.Debug().
		Str("conversation_id", conv.ID.String()).
		Str("platform", string(platform)).
		Int("attachment_count", len(atts)).
		Msg("dispatching generation request")

	result, err := s.generate(ctx, GenerationRequest{
		Platform:       platform,
		Message:        content,
		ConversationID: conv.ID,
		Attachments:    attachments.EncodeAll(atts),
	})
	if err != nil {
		s.reportFailure(conv, err)
		return err
	}

	conv.Append(s.assistantMessage(result))
	s.persist()
	return nil
}

// UpdateMessage replaces a message's displayable content within the active
// conversation. No-op when no conversation is active or the id is unknown.
func (s *Store) UpdateMessage(id uuid.UUID, newContent string) {
	conv := s.CurrentConversation()
	if conv == nil {
		return
	}
	msg, _ := conv.FindMessage(id)
	if msg == nil {
		return
	}
	msg.Edit(newContent)
	conv.UpdatedAt = s.now()
	s.persist()
}

// RegenerateMessage re-runs the prompt immediately preceding the target
// message and replaces the target's content and score in place. A missing
// preceding message silently no-ops, matching the optimistic UI which only
// offers regeneration on assistant replies.
func (s *Store) RegenerateMessage(ctx context.Context, id uuid.UUID) error {
	if s.loading {
		return ErrGenerationInFlight
	}
	conv := s.CurrentConversation()
	if conv == nil {
		return nil
	}
	msg, idx := conv.FindMessage(id)
	if msg == nil || idx <= 0 {
		return nil
	}
	prompt := conv.Messages[idx-1].Content + " (Regenerate)"

	s.loading = true
	defer func() {
		s.loading = false
	}()

	result, err := s.generate(ctx, GenerationRequest{
		Platform:       conv.Platform,
		Message:        prompt,
		ConversationID: conv.ID,
	})
	if err != nil {
		s.reportFailure(conv, err)
		return err
	}

	msg.Content = NormalizeResponse(result.Payload)
	msg.Score = scoreOrDefault(result.Score)
	conv.UpdatedAt = s.now()
	s.persist()
	return nil
}

// ValidateMessage locks the target message from further inline editing.
// Terminal and idempotent; there is no unlock.
func (s *Store) ValidateMessage(id uuid.UUID) {
	conv := s.CurrentConversation()
	if conv == nil {
		return
	}
	msg, _ := conv.FindMessage(id)
	if msg == nil {
		return
	}
	msg.Validate()
	s.persist()
}

func (s *Store) generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	if s.generator == nil {
		return nil, errors.New("no generator configured")
	}
	return s.generator.Generate(ctx, req)
}

// assistantMessage turns a raw generation result into the transcript entry.
// Image replies carry the generated picture as an attachment; text replies
// are normalized and stay editable until validated.
func (s *Store) assistantMessage(result *GenerationResult) *Message {
	if result.Image != nil {
		text := result.Image.Text
		if result.Image.URL != "" {
			if text == "" {
				text = DefaultImageCaption
			}
			att := attachments.NewReference(attachments.TypeImage, result.Image.URL, "generated.jpg")
			return NewMessage(RoleAssistant, text, WithAttachments(att))
		}
		return NewMessage(RoleAssistant, text)
	}

	return NewMessage(RoleAssistant,
		NormalizeResponse(result.Payload),
		WithScore(scoreOrDefault(result.Score)),
		WithEditable(true),
	)
}

func (s *Store) reportFailure(conv *Conversation, err error) {
	s.logger.Warn().Err(err).
		Str("conversation_id", conv.ID.String()).
		Msg("generation request failed")
	s.notice = SendFailedNotice
	s.noticeExpires = s.now().Add(s.noticeTTL)
	if s.publisher != nil {
		s.publisher.PublishBlind(&GenerationFailed{
			Platform:       conv.Platform,
			ConversationID: conv.ID,
			Error:          err.Error(),
		})
	}
}

// persist snapshots the registry whenever it is non-empty. Write failures
// lose that one attempt, logged but never surfaced.
func (s *Store) persist() {
	if s.persister == nil || len(s.conversations) == 0 {
		return
	}
	if err := s.persister.Save(s.conversations); err != nil {
		s.logger.Warn().Err(err).Msg("failed to save conversations")
	}
}

func (s *Store) findConversation(id uuid.UUID) *Conversation {
	for _, c := range s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func scoreOrDefault(score int) int {
	if score == 0 {
		return DefaultScore
	}
	return score
}
