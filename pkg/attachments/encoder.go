package attachments

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Attachments above this size are not inlined and travel by reference only.
const maxInlineSize = 20 * 1024 * 1024

// Encoded is the transport-ready form of an attachment. Data is populated
// when the bytes could be resolved; URI is kept for by-reference fallback.
type Encoded struct {
	Name     string
	MimeType string
	Duration float64
	URI      string
	Data     []byte
}

// Encode prepares an attachment for dispatch. Inline sources pass through
// unchanged. By-reference sources pointing at a local file are read and
// inlined; remote URLs and unreadable files stay by reference. A read
// failure is non-fatal: the attachment is sent with reduced fidelity.
func Encode(a *Attachment) Encoded {
	ret := Encoded{
		Name:     a.Name,
		MimeType: a.MimeType,
		Duration: a.Duration,
	}
	if ret.MimeType == "" {
		ret.MimeType = "application/octet-stream"
	}

	switch src := a.Source.(type) {
	case Inline:
		ret.Data = src.Data
		return ret
	case ByReference:
		ret.URI = src.URI
		if strings.HasPrefix(src.URI, "http://") || strings.HasPrefix(src.URI, "https://") {
			return ret
		}
		data, err := readLocalFile(src.URI)
		if err != nil {
			log.Warn().Err(err).
				Str("uri", src.URI).
				Str("name", a.Name).
				Msg("could not inline attachment, sending by reference")
			return ret
		}
		ret.Data = data
		return ret
	default:
		return ret
	}
}

// EncodeAll encodes a batch of attachments, preserving order.
func EncodeAll(atts []*Attachment) []Encoded {
	if len(atts) == 0 {
		return nil
	}
	ret := make([]Encoded, 0, len(atts))
	for _, a := range atts {
		ret = append(ret, Encode(a))
	}
	return ret
}

func readLocalFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat file")
	}
	if fi.Size() > maxInlineSize {
		return nil, errors.Errorf("file size %d exceeds inline limit", fi.Size())
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file content")
	}
	return data, nil
}
