package persist

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/taomfnbd/chamalloW/pkg/chat"
)

// FileStore snapshots the whole conversation registry to a single JSON
// file, read in full at startup and overwritten in full on every change.
// Timestamps rehydrate from their serialized string form through the
// standard time.Time JSON encoding.
type FileStore struct {
	path string
}

var _ chat.Persister = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Save(conversations []*chat.Conversation) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create history directory")
	}

	file, err := os.Create(f.path)
	if err != nil {
		return errors.Wrap(err, "failed to create history file")
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(conversations); err != nil {
		return errors.Wrap(err, "failed to encode conversations")
	}

	return nil
}

// Load reads the history file. An absent file is not an error and yields an
// empty registry.
func (f *FileStore) Load() ([]*chat.Conversation, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read history file")
	}

	var conversations []*chat.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, errors.Wrap(err, "failed to decode history file")
	}

	return conversations, nil
}
