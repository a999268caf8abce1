package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"gopkg.in/yaml.v3"
)

const credentialsFile = "credentials.yml"

// FileStore keeps credentials in a YAML file readable only by the user.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// DefaultFilePath returns the credentials file location in the user data
// directory.
func DefaultFilePath() (string, error) {
	scope := gap.NewScope(gap.User, "readaloud")
	path, err := scope.DataPath(credentialsFile)
	if err != nil {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	return path, nil
}

// NewFileStore creates a store for the file at path. The file is created on
// the first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(values[key])
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value under key.
func (s *FileStore) Set(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("refusing to store an empty credential")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

func (s *FileStore) load() (map[string]string, error) {
	values := map[string]string{}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials: %w", err)
	}

	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unable to parse credentials file %s: %w", s.path, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

// save writes values through a temporary file so a crash never leaves a
// truncated credentials file behind.
func (s *FileStore) save(values map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("unable to encode credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("unable to write credentials: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to write credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to write credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("unable to write credentials: %w", err)
	}

	log.Debug("Saved credentials", "path", s.path, "keys", len(values))
	return nil
}
