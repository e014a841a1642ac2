package directory

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"

	"github.com/AgentIsComing/live-screen-share-releases/internal/clock"
)

// record is the stored form of a room or code entry. Code entries carry no
// password hash.
type record struct {
	RoomID       string    `msgpack:"room_id"`
	Address      string    `msgpack:"address"`
	Code         string    `msgpack:"code"`
	PasswordHash []byte    `msgpack:"password_hash,omitempty"`
	ExpiresAt    time.Time `msgpack:"expires_at"`
}

func roomKey(roomID string) string {
	sum := blake3.Sum256([]byte(roomID))
	return "room:" + hex.EncodeToString(sum[:])
}

func codeKey(code string) string {
	return "code:" + code
}

type entry struct {
	value   []byte
	expires time.Time
}

// Store is an in-memory key/value store whose entries vanish at their
// expiry time.
type Store struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]entry
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{clock: clk, entries: make(map[string]entry)}
}

// Get returns the value for key unless it is missing or expired.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !s.clock.Now().Before(e.expires) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

func (s *Store) Put(key string, value []byte, expires time.Time) {
	s.mu.Lock()
	s.entries[key] = entry{value: value, expires: expires}
	s.mu.Unlock()
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Sweep drops expired entries and returns how many remain.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for key, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, key)
		}
	}
	return len(s.entries)
}

func (s *Store) getRecord(key string) (*record, bool, error) {
	raw, ok := s.Get(key)
	if !ok {
		return nil, false, nil
	}
	var rec record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *Store) putRecord(key string, rec *record) error {
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	s.Put(key, raw, rec.ExpiresAt)
	return nil
}
