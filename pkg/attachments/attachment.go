package attachments

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeImage    Type = "image"
	TypeDocument Type = "document"
	TypeAudio    Type = "audio"
)

// Source is the tagged variant describing where an attachment's bytes live.
// An attachment either points at a resource (local path or remote URL) or
// carries its bytes inline.
type Source interface {
	sourceKind() string
}

// ByReference locates the attachment through a resource locator.
type ByReference struct {
	URI string
}

func (ByReference) sourceKind() string { return "reference" }

// Inline carries the attachment bytes directly, as produced by capture APIs
// that hand back data instead of a file path.
type Inline struct {
	Data []byte
}

func (Inline) sourceKind() string { return "inline" }

// Attachment is a piece of media referenced by a chat message.
type Attachment struct {
	ID       uuid.UUID
	Type     Type
	Name     string
	MimeType string
	// Duration in seconds, audio only.
	Duration float64
	Source   Source
}

type Option func(*Attachment)

func WithID(id uuid.UUID) Option {
	return func(a *Attachment) {
		a.ID = id
	}
}

func WithMimeType(mimeType string) Option {
	return func(a *Attachment) {
		a.MimeType = mimeType
	}
}

func WithDuration(seconds float64) Option {
	return func(a *Attachment) {
		a.Duration = seconds
	}
}

// NewReference creates an attachment pointing at a local path or remote URL.
func NewReference(t Type, uri string, name string, options ...Option) *Attachment {
	if name == "" {
		name = filepath.Base(uri)
	}
	ret := &Attachment{
		ID:     uuid.New(),
		Type:   t,
		Name:   name,
		Source: ByReference{URI: uri},
	}
	for _, option := range options {
		option(ret)
	}
	if ret.MimeType == "" {
		ret.MimeType = MediaTypeFromExtension(filepath.Ext(name))
	}
	return ret
}

// NewInline creates an attachment from bytes already held in memory.
func NewInline(t Type, data []byte, name string, options ...Option) *Attachment {
	ret := &Attachment{
		ID:     uuid.New(),
		Type:   t,
		Name:   name,
		Source: Inline{Data: data},
	}
	for _, option := range options {
		option(ret)
	}
	if ret.MimeType == "" {
		ret.MimeType = MediaTypeFromExtension(filepath.Ext(name))
	}
	return ret
}

// URI returns the resource locator for by-reference attachments, "" otherwise.
func (a *Attachment) URI() string {
	if ref, ok := a.Source.(ByReference); ok {
		return ref.URI
	}
	return ""
}

// attachmentJSON is the storage and wire shape. The Source variant flattens
// into a uri / base64 pair; on decode, inline bytes win over the locator.
type attachmentJSON struct {
	ID       uuid.UUID `json:"id"`
	Type     Type      `json:"type"`
	Name     string    `json:"name"`
	MimeType string    `json:"mimeType,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	URI      string    `json:"uri,omitempty"`
	Base64   []byte    `json:"base64,omitempty"`
}

func (a *Attachment) MarshalJSON() ([]byte, error) {
	out := attachmentJSON{
		ID:       a.ID,
		Type:     a.Type,
		Name:     a.Name,
		MimeType: a.MimeType,
		Duration: a.Duration,
	}
	switch src := a.Source.(type) {
	case ByReference:
		out.URI = src.URI
	case Inline:
		out.Base64 = src.Data
	}
	return json.Marshal(out)
}

func (a *Attachment) UnmarshalJSON(data []byte) error {
	var in attachmentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.ID = in.ID
	a.Type = in.Type
	a.Name = in.Name
	a.MimeType = in.MimeType
	a.Duration = in.Duration
	if len(in.Base64) > 0 {
		a.Source = Inline{Data: in.Base64}
	} else {
		a.Source = ByReference{URI: in.URI}
	}
	return nil
}

// MediaTypeFromExtension maps a file extension to a content type for the
// formats the generation service accepts. Returns "" for anything else.
func MediaTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	default:
		return ""
	}
}

// TypeForMime buckets a content type into an attachment type.
func TypeForMime(mimeType string) Type {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return TypeImage
	case strings.HasPrefix(mimeType, "audio/"):
		return TypeAudio
	default:
		return TypeDocument
	}
}

// Document is a knowledge-base file uploaded when training the agent.
type Document struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	URI        string    `json:"uri"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func NewDocument(name string, uri string, mimeType string) *Document {
	if mimeType == "" {
		mimeType = MediaTypeFromExtension(filepath.Ext(name))
	}
	return &Document{
		ID:         uuid.New(),
		Name:       name,
		URI:        uri,
		Type:       mimeType,
		UploadedAt: time.Now(),
	}
}
