// Package jsonl implements store.Store on three JSON-lines logs, one
// record per line: users.jsonl, groups.jsonl and messages.jsonl. Appends
// are flushed and fsynced before returning; mutating a record (group
// membership, message delivery state) rewrites the whole log through a
// temp file. In-memory indexes are built at open time and kept
// write-through with the files.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chatbroker/internal/store"
)

const (
	usersFile    = "users.jsonl"
	groupsFile   = "groups.jsonl"
	messagesFile = "messages.jsonl"
)

// Store keeps each log behind its own mutex. The lock is held across the
// durable write so the index never reflects a record the file does not.
type Store struct {
	dir string

	usersMu   sync.Mutex
	usersByID map[string]*store.User
	userOrder []string

	groupsMu     sync.Mutex
	groupsByName map[string]*store.Group
	groupOrder   []string

	messagesMu   sync.Mutex
	messages     []*store.Message
	messagesByID map[string]*store.Message
}

// New opens (or creates) the data directory and loads all three logs.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		dir:          dataDir,
		usersByID:    make(map[string]*store.User),
		groupsByName: make(map[string]*store.Group),
		messagesByID: make(map[string]*store.Message),
	}

	if err := s.loadUsers(); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if err := s.loadGroups(); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	if err := s.loadMessages(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	return s, nil
}

// Close is a no-op for file-per-operation storage; it exists to satisfy
// store.Store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readLines decodes every non-empty line of the named log into fresh
// values produced by decode. A missing file is an empty log.
func (s *Store) readLines(name string, decode func([]byte) error) error {
	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := decode(line); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", name, err)
	}
	return nil
}

// appendLine appends one JSON record to the named log and fsyncs before
// returning, so an acknowledged write survives a crash.
func (s *Store) appendLine(name string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}
	return nil
}

// rewriteLines replaces the named log with the given records, going
// through a temp file and rename so a crash mid-rewrite leaves the old
// log intact.
func (s *Store) rewriteLines(name string, recs []any) error {
	tmp := s.path(name) + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", tmp, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return syncDir(s.dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
