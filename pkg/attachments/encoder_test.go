package attachments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeInlinePassthrough(t *testing.T) {
	att := NewInline(TypeImage, []byte("raw-bytes"), "photo.png")

	encoded := Encode(att)
	assert.Equal(t, []byte("raw-bytes"), encoded.Data)
	assert.Equal(t, "photo.png", encoded.Name)
	assert.Equal(t, "image/png", encoded.MimeType)
	assert.Empty(t, encoded.URI)
}

func TestEncodeReadsLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("quelques notes"), 0o600))

	att := NewReference(TypeDocument, path, "")
	encoded := Encode(att)

	assert.Equal(t, []byte("quelques notes"), encoded.Data)
	assert.Equal(t, "notes.txt", encoded.Name)
	assert.Equal(t, "text/plain", encoded.MimeType)
}

func TestEncodeMissingFileFallsBackToReference(t *testing.T) {
	att := NewReference(TypeDocument, "/nonexistent/report.pdf", "")
	encoded := Encode(att)

	assert.Nil(t, encoded.Data)
	assert.Equal(t, "/nonexistent/report.pdf", encoded.URI)
	assert.Equal(t, "report.pdf", encoded.Name)
	assert.Equal(t, "application/pdf", encoded.MimeType)
}

func TestEncodeRemoteURLStaysByReference(t *testing.T) {
	att := NewReference(TypeImage, "https://example.com/generated.jpg", "generated.jpg")
	encoded := Encode(att)

	assert.Nil(t, encoded.Data)
	assert.Equal(t, "https://example.com/generated.jpg", encoded.URI)
}

func TestEncodeUnknownMimeTypeDefaults(t *testing.T) {
	att := NewInline(TypeDocument, []byte("x"), "blob.bin")
	encoded := Encode(att)

	assert.Equal(t, "application/octet-stream", encoded.MimeType)
}

func TestEncodeAudioKeepsDuration(t *testing.T) {
	att := NewInline(TypeAudio, []byte("pcm"), "memo.m4a", WithDuration(12.5))
	encoded := Encode(att)

	assert.Equal(t, 12.5, encoded.Duration)
	assert.Equal(t, "audio/mp4", encoded.MimeType)
}

func TestAttachmentJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		att  *Attachment
	}{
		{"by reference", NewReference(TypeImage, "/tmp/photo.png", "photo.png")},
		{"inline", NewInline(TypeAudio, []byte("audio-bytes"), "memo.wav", WithDuration(3))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.att)
			require.NoError(t, err)

			var got Attachment
			require.NoError(t, json.Unmarshal(data, &got))

			assert.Equal(t, tt.att.ID, got.ID)
			assert.Equal(t, tt.att.Type, got.Type)
			assert.Equal(t, tt.att.Name, got.Name)
			assert.Equal(t, tt.att.MimeType, got.MimeType)
			assert.Equal(t, tt.att.Duration, got.Duration)
			assert.Equal(t, tt.att.Source, got.Source)
		})
	}
}

func TestTypeForMime(t *testing.T) {
	assert.Equal(t, TypeImage, TypeForMime("image/png"))
	assert.Equal(t, TypeAudio, TypeForMime("audio/mpeg"))
	assert.Equal(t, TypeDocument, TypeForMime("application/pdf"))
	assert.Equal(t, TypeDocument, TypeForMime(""))
}
