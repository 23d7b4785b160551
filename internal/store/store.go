package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Patch describes a partial update to apply to a stored credential.
type Patch struct {
	AccessToken *string
	ExpiresIn   *int64
	Timestamp   *int64
	Enable      *bool
	HasQuota    *bool
	ProjectID   *string
	Email       *string
}

// Store owns data/accounts.json. All writes are whole-file and serialized
// by mu; sessionId is an in-memory-only identifier and is never written.
type Store struct {
	path string

	mu   sync.RWMutex
	list []*Credential

	// onChange, when set, is invoked after any successful write or
	// external-edit reload so subscribers (the rotator) can refresh.
	onChange func([]*Credential)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open loads path (creating an empty store file if absent) and starts a
// filesystem watch so edits made outside the process are picked up.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.persistAllLocked([]*Credential{}); err != nil {
			return nil, err
		}
	}
	if err := s.reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warnf("credential store: fsnotify unavailable, external edits will not be picked up: %v", err)
		return s, nil
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		log.Warnf("credential store: watch %s: %v", filepath.Dir(path), err)
		return s, nil
	}
	s.watcher = fw
	s.done = make(chan struct{})
	go s.watchLoop()
	return s, nil
}

// OnChange registers a callback invoked with a snapshot of the credential
// list after every successful mutation (including external reloads).
func (s *Store) OnChange(fn func([]*Credential)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) watchLoop() {
	defer close(s.done)
	target := filepath.Clean(s.path)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				log.Warnf("credential store: reload after external edit: %v", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("credential store watcher: %v", err)
		}
	}
}

// Close releases the filesystem watch.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	<-s.done
	return err
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var onDisk []*Credential
	if len(data) > 0 {
		if err := json.Unmarshal(data, &onDisk); err != nil {
			return fmt.Errorf("credential store: decode %s: %w", s.path, err)
		}
	}
	for _, c := range onDisk {
		assignSessionID(c)
	}
	s.mu.Lock()
	s.list = onDisk
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(s.List())
	}
	return nil
}

// List returns a snapshot of all stored credentials, including disabled
// ones, as clones safe for the caller to read without synchronization.
func (s *Store) List() []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Credential, len(s.list))
	for i, c := range s.list {
		out[i] = c.Clone()
	}
	return out
}

// Add appends a new credential (created via OAuth exchange or admin
// import) and persists the whole file.
func (s *Store) Add(c *Credential) error {
	if c == nil {
		return fmt.Errorf("credential store: nil credential")
	}
	s.mu.Lock()
	for _, existing := range s.list {
		if existing.RefreshToken == c.RefreshToken {
			s.mu.Unlock()
			return fmt.Errorf("credential store: refresh_token already present")
		}
	}
	assignSessionID(c)
	s.list = append(s.list, c)
	snapshot := cloneAll(s.list)
	err := s.persistAllLocked(s.list)
	cb := s.onChange
	s.mu.Unlock()
	if err == nil && cb != nil {
		cb(snapshot)
	}
	return err
}

// Update applies patch to the credential identified by refreshToken and
// persists the result.
func (s *Store) Update(refreshToken string, patch Patch) error {
	s.mu.Lock()
	var target *Credential
	for _, c := range s.list {
		if c.RefreshToken == refreshToken {
			target = c
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return fmt.Errorf("credential store: unknown refresh_token")
	}
	applyPatch(target, patch)
	snapshot := cloneAll(s.list)
	err := s.persistAllLocked(s.list)
	cb := s.onChange
	s.mu.Unlock()
	if err == nil && cb != nil {
		cb(snapshot)
	}
	return err
}

// Delete removes the credential identified by refreshToken.
func (s *Store) Delete(refreshToken string) error {
	s.mu.Lock()
	kept := make([]*Credential, 0, len(s.list))
	found := false
	for _, c := range s.list {
		if c.RefreshToken == refreshToken {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("credential store: unknown refresh_token")
	}
	s.list = kept
	snapshot := cloneAll(s.list)
	err := s.persistAllLocked(s.list)
	cb := s.onChange
	s.mu.Unlock()
	if err == nil && cb != nil {
		cb(snapshot)
	}
	return err
}

// PersistOne writes a single credential's current in-memory state to disk
// (used by the rotator after a token refresh) by rewriting the whole file.
func (s *Store) PersistOne(c *Credential) error {
	s.mu.Lock()
	for i, existing := range s.list {
		if existing.RefreshToken == c.RefreshToken {
			merged := c.Clone()
			merged.SessionID = existing.SessionID
			s.list[i] = merged
			break
		}
	}
	err := s.persistAllLocked(s.list)
	s.mu.Unlock()
	return err
}

// PersistAll rewrites the whole file from list, replacing the in-memory
// state entirely.
func (s *Store) PersistAll(list []*Credential) error {
	s.mu.Lock()
	for _, c := range list {
		if c.SessionID == "" {
			assignSessionID(c)
		}
	}
	s.list = list
	err := s.persistAllLocked(s.list)
	s.mu.Unlock()
	return err
}

func (s *Store) persistAllLocked(list []*Credential) error {
	type onDiskCredential struct {
		RefreshToken string `json:"refresh_token"`
		AccessToken  string `json:"access_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Timestamp    int64  `json:"timestamp"`
		Enable       bool   `json:"enable"`
		HasQuota     bool   `json:"hasQuota"`
		ProjectID    string `json:"projectId,omitempty"`
		Email        string `json:"email,omitempty"`
	}
	out := make([]onDiskCredential, len(list))
	for i, c := range list {
		out[i] = onDiskCredential{
			RefreshToken: c.RefreshToken,
			AccessToken:  c.AccessToken,
			ExpiresIn:    c.ExpiresIn,
			Timestamp:    c.Timestamp,
			Enable:       c.Enable,
			HasQuota:     c.HasQuota,
			ProjectID:    c.ProjectID,
			Email:        c.Email,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func applyPatch(c *Credential, p Patch) {
	if p.AccessToken != nil {
		c.AccessToken = *p.AccessToken
	}
	if p.ExpiresIn != nil {
		c.ExpiresIn = *p.ExpiresIn
	}
	if p.Timestamp != nil {
		c.Timestamp = *p.Timestamp
	}
	if p.Enable != nil {
		c.Enable = *p.Enable
	}
	if p.HasQuota != nil {
		c.HasQuota = *p.HasQuota
	}
	if p.ProjectID != nil {
		c.ProjectID = *p.ProjectID
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
}

func cloneAll(list []*Credential) []*Credential {
	out := make([]*Credential, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}
	return out
}
