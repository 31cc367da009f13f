package tap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FileCredentialStore writes rotated tokens back into the JSON config file,
// leaving every other key untouched.
type FileCredentialStore struct {
	Path string

	mu sync.Mutex
}

func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{Path: path}
}

func (s *FileCredentialStore) SaveCredential(ctx context.Context, cred Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cred.Token == nil {
		return fmt.Errorf("no token to save")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.Path)
	if err != nil {
		return fmt.Errorf("failed to stat config file %w", err)
	}
	json, err := os.ReadFile(s.Path)
	if err != nil {
		return fmt.Errorf("failed to read config file %w", err)
	}
	if !gjson.ValidBytes(json) {
		return fmt.Errorf("config file %s is not JSON, credentials not saved", s.Path)
	}

	updates := []struct {
		key   string
		value any
	}{
		{"access_token", cred.Token.AccessToken},
		{"refresh_token", cred.Token.RefreshToken},
		{"expires_in", cred.ExpiresAt()},
	}
	for _, u := range updates {
		json, err = sjson.SetBytes(json, u.key, u.value)
		if err != nil {
			return fmt.Errorf("failed to set %s %w", u.key, err)
		}
	}

	// write to a sibling file and rename so a crash never leaves a truncated config
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(json); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config file %w", err)
	}
	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp config file %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file %w", err)
	}
	if err = os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to replace config file %w", err)
	}
	return nil
}
