package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"github.com/llmspell/spellkernel/src/kernel/mapper"
	"github.com/llmspell/spellkernel/src/kernel/model"
)

// FileStore keeps one JSON document per session in a directory.
type FileStore struct {
	fs  fs.KernelFS
	dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(kfs fs.KernelFS, dir string) *FileStore {
	return &FileStore{fs: kfs, dir: dir}
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, url.PathEscape(sessionID)+".json")
}

func (s *FileStore) Get(ctx context.Context, sessionID string) (*entity.SessionState, bool, error) {
	name := s.path(sessionID)
	exists, err := s.fs.FileExists(name)
	if err != nil {
		return nil, false, fmt.Errorf("checking %s: %w", name, err)
	}
	if !exists {
		return nil, false, nil
	}
	data, err := s.fs.ReadFile(name)
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", name, err)
	}
	var m model.SessionState
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w", name, err)
	}
	return mapper.ModelToSessionState(&m), true, nil
}

func (s *FileStore) Set(ctx context.Context, state *entity.SessionState) error {
	data, err := json.Marshal(mapper.SessionStateToModel(state))
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", state.SessionID, err)
	}
	return s.fs.WriteFileAtomic(s.path(state.SessionID), data, 0o600)
}

func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	return s.fs.Remove(s.path(sessionID))
}

func (s *FileStore) Kind() string { return KindFile }
