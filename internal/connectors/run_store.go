package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"chemrecon/internal"
)

const hashPrefixLen = 12

// RunStore keeps fetched run attachments under one inbox directory. Files are
// named "<sha256-prefix>_<name>" so identical content is stored once.
type RunStore struct {
	dir string
}

func NewRunStore(dir string) *RunStore {
	return &RunStore{dir: dir}
}

func (s *RunStore) Dir() string { return s.dir }

// Store writes att unless a file with the same content hash already exists.
// It returns the stored path and whether a new file was written.
func (s *RunStore) Store(att internal.RunAttachment) (string, bool, error) {
	sum := sha256.Sum256(att.Content)
	prefix := hex.EncodeToString(sum[:])[:hashPrefixLen]

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", false, err
	}
	if existing, err := s.findByHash(prefix); err != nil {
		return "", false, err
	} else if existing != "" {
		return existing, false, nil
	}

	path := filepath.Join(s.dir, prefix+"_"+att.FileName)
	if err := os.WriteFile(path, att.Content, 0o644); err != nil {
		return "", false, err
	}
	return path, true, nil
}

func (s *RunStore) findByHash(prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, prefix+"_*"))
	if err != nil || len(matches) == 0 {
		return "", err
	}
	return matches[0], nil
}
