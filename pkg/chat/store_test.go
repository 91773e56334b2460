package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taomfnbd/chamalloW/pkg/attachments"
)

type stubGenerator struct {
	generate func(req GenerationRequest) (*GenerationResult, error)
	requests []GenerationRequest
}

func (g *stubGenerator) Generate(_ context.Context, req GenerationRequest) (*GenerationResult, error) {
	g.requests = append(g.requests, req)
	return g.generate(req)
}

func textGenerator(content string, score int) *stubGenerator {
	return &stubGenerator{
		generate: func(GenerationRequest) (*GenerationResult, error) {
			return &GenerationResult{
				Payload: map[string]interface{}{"response": content},
				Score:   score,
			}, nil
		},
	}
}

type recordingPersister struct {
	saved   [][]*Conversation
	loaded  []*Conversation
	loadErr error
}

func (p *recordingPersister) Save(convs []*Conversation) error {
	p.saved = append(p.saved, convs)
	return nil
}

func (p *recordingPersister) Load() ([]*Conversation, error) {
	return p.loaded, p.loadErr
}

type recordingPublisher struct {
	payloads []interface{}
}

func (p *recordingPublisher) PublishBlind(payload interface{}) {
	p.payloads = append(p.payloads, payload)
}

func TestSendMessageAppendsUserAssistantPair(t *testing.T) {
	gen := &stubGenerator{
		generate: func(GenerationRequest) (*GenerationResult, error) {
			return &GenerationResult{
				Payload: map[string]interface{}{"response": "💪 Post généré"},
				Score:   91,
			}, nil
		},
	}
	store := NewStore(WithGenerator(gen))

	err := store.SendMessage(context.Background(), PlatformLinkedIn, "Idée de post motivation", nil)
	require.NoError(t, err)

	conv := store.CurrentConversation()
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 2)

	user := conv.Messages[0]
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "Idée de post motivation", user.Content)

	assistant := conv.Messages[1]
	assert.Equal(t, RoleAssistant, assistant.Role)
	assert.Equal(t, "💪 Post généré", assistant.Content)
	assert.Equal(t, 91, assistant.Score)
	assert.True(t, assistant.IsEditable)
}

func TestSendMessageAlternatesInCallOrder(t *testing.T) {
	gen := textGenerator("ok", 90)
	store := NewStore(WithGenerator(gen))

	prompts := []string{"first", "second", "third"}
	for _, prompt := range prompts {
		require.NoError(t, store.SendMessage(context.Background(), PlatformInstagram, prompt, nil))
	}

	require.Len(t, store.Conversations(), 1)
	conv := store.CurrentConversation()
	require.Len(t, conv.Messages, 6)
	for i, prompt := range prompts {
		assert.Equal(t, RoleUser, conv.Messages[2*i].Role)
		assert.Equal(t, prompt, conv.Messages[2*i].Content)
		assert.Equal(t, RoleAssistant, conv.Messages[2*i+1].Role)
	}
}

func TestSendMessageNeverMixesPlatforms(t *testing.T) {
	gen := textGenerator("ok", 90)
	store := NewStore(WithGenerator(gen))

	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "linkedin post", nil))
	linkedinConv := store.CurrentConversation()

	require.NoError(t, store.SendMessage(context.Background(), PlatformInstagram, "instagram post", nil))
	instagramConv := store.CurrentConversation()

	require.NotEqual(t, linkedinConv.ID, instagramConv.ID)
	assert.Len(t, store.Conversations(), 2)
	assert.Len(t, linkedinConv.Messages, 2)
	assert.Len(t, instagramConv.Messages, 2)
	assert.Equal(t, PlatformInstagram, instagramConv.Platform)
}

func TestSendMessageDerivesTitleFromFirstMessage(t *testing.T) {
	gen := textGenerator("ok", 90)
	store := NewStore(WithGenerator(gen))

	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn,
		"Un très long sujet de post qui dépasse largement la limite", nil))

	conv := store.CurrentConversation()
	assert.Equal(t, "Un très long sujet de post qui...", conv.Title)

	// subsequent messages do not retitle
	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "autre chose", nil))
	assert.Equal(t, "Un très long sujet de post qui...", conv.Title)
}

func TestSendMessageDefaultScore(t *testing.T) {
	gen := &stubGenerator{
		generate: func(GenerationRequest) (*GenerationResult, error) {
			return &GenerationResult{Payload: "just text"}, nil
		},
	}
	store := NewStore(WithGenerator(gen))

	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "hello", nil))

	conv := store.CurrentConversation()
	assert.Equal(t, DefaultScore, conv.Messages[1].Score)
}

func TestSendMessageImageReplyBecomesAttachment(t *testing.T) {
	gen := &stubGenerator{
		generate: func(GenerationRequest) (*GenerationResult, error) {
			return &GenerationResult{
				Image: &ImageReply{URL: "https://example.com/generated.png", Text: ""},
			}, nil
		},
	}
	store := NewStore(WithGenerator(gen))

	require.NoError(t, store.SendMessage(context.Background(), PlatformImages, "génère une image", nil))

	conv := store.CurrentConversation()
	assistant := conv.Messages[1]
	assert.Equal(t, DefaultImageCaption, assistant.Content)
	require.Len(t, assistant.Attachments, 1)
	assert.Equal(t, attachments.TypeImage, assistant.Attachments[0].Type)
	assert.Equal(t, "https://example.com/generated.png", assistant.Attachments[0].URI())
	assert.False(t, assistant.IsEditable)
}

func TestSendMessageImageTextOnlyReply(t *testing.T) {
	gen := &stubGenerator{
		generate: func(GenerationRequest) (*GenerationResult, error) {
			return &GenerationResult{
				Image: &ImageReply{Text: "Décris ce que tu veux voir !"},
			}, nil
		},
	}
	store := NewStore(WithGenerator(gen))

	require.NoError(t, store.SendMessage(context.Background(), PlatformImages, "bonjour", nil))

	conv := store.CurrentConversation()
	assistant := conv.Messages[1]
	assert.Equal(t, "Décris ce que tu veux voir !", assistant.Content)
	assert.Empty(t, assistant.Attachments)
}

func TestSendMessageFailureKeepsUserMessage(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	gen := &stubGenerator{
		generate: func(GenerationRequest) (*GenerationResult, error) {
			return nil, errors.New("connection refused")
		},
	}
	publisher := &recordingPublisher{}
	store := NewStore(WithGenerator(gen), WithPublisher(publisher), WithClock(clock))

	err := store.SendMessage(context.Background(), PlatformLinkedIn, "hello", nil)
	require.Error(t, err)

	conv := store.CurrentConversation()
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, RoleUser, conv.Messages[0].Role)

	assert.Equal(t, SendFailedNotice, store.Notice())
	require.Len(t, publisher.payloads, 1)
	failure, ok := publisher.payloads[0].(*GenerationFailed)
	require.True(t, ok)
	assert.Equal(t, PlatformLinkedIn, failure.Platform)
	assert.Equal(t, conv.ID, failure.ConversationID)

	// notice auto-expires
	now = now.Add(5 * time.Second)
	assert.Empty(t, store.Notice())
	assert.False(t, store.IsLoading())
}

func TestSendMessageRejectsConcurrentCall(t *testing.T) {
	var store *Store
	var reentrantErr error
	gen := &stubGenerator{}
	gen.generate = func(GenerationRequest) (*GenerationResult, error) {
		// a second send while the first is in flight must not corrupt state
		reentrantErr = store.SendMessage(context.Background(), PlatformLinkedIn, "again", nil)
		return &GenerationResult{Payload: "ok"}, nil
	}
	store = NewStore(WithGenerator(gen))

	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "hello", nil))

	require.ErrorIs(t, reentrantErr, ErrGenerationInFlight)
	require.Len(t, store.Conversations(), 1)
	assert.Len(t, store.CurrentConversation().Messages, 2)
}

func TestUpdateMessage(t *testing.T) {
	gen := textGenerator("generated", 90)
	store := NewStore(WithGenerator(gen))
	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "hello", nil))

	conv := store.CurrentConversation()
	assistant := conv.Messages[1]
	originalID := assistant.ID
	originalRole := assistant.Role
	originalTime := assistant.Timestamp

	store.UpdateMessage(assistant.ID, "edited text")

	assert.Equal(t, "edited text", assistant.Content)
	assert.Equal(t, "edited text", assistant.EditedContent)
	assert.Equal(t, originalID, assistant.ID)
	assert.Equal(t, originalRole, assistant.Role)
	assert.Equal(t, originalTime, assistant.Timestamp)
}

func TestUpdateMessageUnknownIDIsNoop(t *testing.T) {
	gen := textGenerator("generated", 90)
	store := NewStore(WithGenerator(gen))
	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "hello", nil))

	store.UpdateMessage(uuid.New(), "edited")

	conv := store.CurrentConversation()
	assert.Equal(t, "generated", conv.Messages[1].Content)
	assert.Empty(t, conv.Messages[1].EditedContent)
}

func TestValidateMessageIsIdempotent(t *testing.T) {
	gen := textGenerator("generated", 90)
	store := NewStore(WithGenerator(gen))
	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "hello", nil))

	assistant := store.CurrentConversation().Messages[1]
	require.True(t, assistant.IsEditable)

	store.ValidateMessage(assistant.ID)
	assert.False(t, assistant.IsEditable)

	store.ValidateMessage(assistant.ID)
	assert.False(t, assistant.IsEditable)
}

func TestRegenerateMessageReplacesContentAndScore(t *testing.T) {
	responses := []*GenerationResult{
		{Payload: map[string]interface{}{"response": "first draft"}, Score: 80},
		{Payload: map[string]interface{}{"response": "better draft"}, Score: 95},
	}
	gen := &stubGenerator{}
	gen.generate = func(GenerationRequest) (*GenerationResult, error) {
		result := responses[0]
		responses = responses[1:]
		return result, nil
	}
	store := NewStore(WithGenerator(gen))
	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "hello", nil))

	assistant := store.CurrentConversation().Messages[1]
	require.NoError(t, store.RegenerateMessage(context.Background(), assistant.ID))

	assert.Equal(t, "better draft", assistant.Content)
	assert.Equal(t, 95, assistant.Score)
	assert.True(t, assistant.IsEditable)

	require.Len(t, gen.requests, 2)
	assert.Equal(t, "hello (Regenerate)", gen.requests[1].Message)
}

func TestRegenerateMessageWithoutPrecedingPromptIsNoop(t *testing.T) {
	gen := textGenerator("generated", 90)
	store := NewStore(WithGenerator(gen))
	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "hello", nil))

	user := store.CurrentConversation().Messages[0]
	require.NoError(t, store.RegenerateMessage(context.Background(), user.ID))

	// only the initial send hit the generator
	assert.Len(t, gen.requests, 1)
	assert.Equal(t, "hello", user.Content)
}

func TestNewSelectDeleteConversation(t *testing.T) {
	store := NewStore()

	first := store.NewConversation(PlatformLinkedIn)
	second := store.NewConversation(PlatformInstagram)

	// newest first, newest active
	require.Len(t, store.Conversations(), 2)
	assert.Equal(t, second.ID, store.Conversations()[0].ID)
	assert.Equal(t, second.ID, store.CurrentConversation().ID)
	assert.Equal(t, PlaceholderTitle, first.Title)

	assert.True(t, store.SelectConversation(first.ID))
	assert.Equal(t, first.ID, store.CurrentConversation().ID)

	assert.False(t, store.SelectConversation(uuid.New()))
	assert.Equal(t, first.ID, store.CurrentConversation().ID)

	store.DeleteConversation(first.ID)
	require.Len(t, store.Conversations(), 1)
	assert.Nil(t, store.CurrentConversation())
}

func TestConversationForPlatformView(t *testing.T) {
	store := NewStore()
	conv := store.NewConversation(PlatformLinkedIn)

	assert.Equal(t, conv, store.ConversationFor(PlatformLinkedIn))
	assert.Nil(t, store.ConversationFor(PlatformInstagram))
}

func TestStorePersistsOnMutation(t *testing.T) {
	gen := textGenerator("generated", 90)
	persister := &recordingPersister{}
	store := NewStore(WithGenerator(gen), WithPersister(persister))

	require.NoError(t, store.SendMessage(context.Background(), PlatformLinkedIn, "hello", nil))
	// conversation creation, the optimistic user append, the assistant reply
	assert.Len(t, persister.saved, 3)

	store.ValidateMessage(store.CurrentConversation().Messages[1].ID)
	assert.Len(t, persister.saved, 4)
}

func TestStoreLoadsPersistedConversations(t *testing.T) {
	conv := NewConversation(PlatformLinkedIn)
	persister := &recordingPersister{loaded: []*Conversation{conv}}

	store := NewStore(WithPersister(persister))
	require.Len(t, store.Conversations(), 1)
	assert.Equal(t, conv.ID, store.Conversations()[0].ID)
	// nothing is active until selected
	assert.Nil(t, store.CurrentConversation())
}

func TestStoreLoadFailureStartsEmpty(t *testing.T) {
	persister := &recordingPersister{loadErr: errors.New("corrupt")}

	store := NewStore(WithPersister(persister))
	assert.Empty(t, store.Conversations())
}

func TestSendMessageForwardsEncodedAttachments(t *testing.T) {
	gen := textGenerator("ok", 90)
	store := NewStore(WithGenerator(gen))

	att := attachments.NewInline(attachments.TypeImage, []byte("png-bytes"), "photo.png")
	require.NoError(t, store.SendMessage(context.Background(), PlatformInstagram, "poste ça", []*attachments.Attachment{att}))

	require.Len(t, gen.requests, 1)
	require.Len(t, gen.requests[0].Attachments, 1)
	assert.Equal(t, []byte("png-bytes"), gen.requests[0].Attachments[0].Data)
	assert.Equal(t, "photo.png", gen.requests[0].Attachments[0].Name)

	// the stored user message keeps the original attachment
	userMsg := store.CurrentConversation().Messages[0]
	require.Len(t, userMsg.Attachments, 1)
	assert.Equal(t, att.ID, userMsg.Attachments[0].ID)
}
