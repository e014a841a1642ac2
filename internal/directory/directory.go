// Package directory maps a room id and password, or a five-digit join code,
// to the signaling address of a live broadcast.
package directory

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/AgentIsComing/live-screen-share-releases/internal/clock"
	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

// TTL bounds for a registration.
const (
	DefaultTTL = 900 * time.Second
	MinTTL     = 60 * time.Second
	MaxTTL     = 3600 * time.Second
)

const codeAttempts = 30

// ErrNoFreeCode is returned when every code drawn was already taken.
var ErrNoFreeCode = errors.New("no free code available")

var codePattern = regexp.MustCompile(`^\d{5}$`)

// Directory is what the host and viewer commands use, either in-process or
// over HTTP.
type Directory interface {
	Register(ctx context.Context, roomID, password, address string, ttl time.Duration) (*Registration, error)
	Resolve(ctx context.Context, roomID, password string) (*Resolution, error)
	ResolveCode(ctx context.Context, code string) (*Resolution, error)
}

// Registration is the result of Register.
type Registration struct {
	Address   string    `json:"wsUrl"`
	RoomID    string    `json:"roomId,omitempty"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	TTL       int       `json:"ttlSeconds"`
}

// Resolution is the result of Resolve and ResolveCode.
type Resolution struct {
	Address   string    `json:"wsUrl"`
	RoomID    string    `json:"roomId,omitempty"`
	Code      string    `json:"code,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ClampTTL bounds ttl to [MinTTL, MaxTTL]. Zero or negative means fallback.
func ClampTTL(ttl, fallback time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = fallback
	}
	return min(max(ttl, MinTTL), MaxTTL)
}

// Service is the in-process Directory.
type Service struct {
	store      *Store
	clock      clock.Clock
	logger     *slog.Logger
	hashCost   int
	defaultTTL time.Duration
	newCode    func() string

	// mu serializes registrations so check-and-set on a room is atomic.
	mu sync.Mutex
}

var _ Directory = (*Service)(nil)

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) { s.defaultTTL = ClampTTL(ttl, DefaultTTL) }
}

// WithCodeGenerator replaces the random five-digit code source.
func WithCodeGenerator(gen func() string) Option {
	return func(s *Service) { s.newCode = gen }
}

func NewService(opts ...Option) *Service {
	s := &Service{
		clock:      clock.Real(),
		logger:     slog.Default(),
		hashCost:   bcrypt.DefaultCost,
		defaultTTL: DefaultTTL,
		newCode:    randomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = NewStore(s.clock)
	return s
}

func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%05d", 10000+n.Int64())
}

// NormalizeAddress trims a signaling address and checks its scheme.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	lower := strings.ToLower(address)
	if !strings.HasPrefix(lower, "ws://") && !strings.HasPrefix(lower, "wss://") {
		return "", protocol.WrapError("register", protocol.ErrProtocol, "wsUrl must start with ws:// or wss://")
	}
	return address, nil
}

// Register publishes address under roomID and a fresh join code. An empty
// roomID registers a code only. A live room registered with another
// password is a conflict; the same password refreshes it.
func (s *Service) Register(ctx context.Context, roomID, password, address string, ttl time.Duration) (*Registration, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	roomID = strings.TrimSpace(roomID)
	ttl = ClampTTL(ttl, s.defaultTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Sweep()

	expiresAt := s.clock.Now().Add(ttl)
	rec := &record{RoomID: roomID, Address: address, ExpiresAt: expiresAt}

	if roomID != "" {
		existing, ok, err := s.store.getRecord(roomKey(roomID))
		if err != nil {
			return nil, protocol.NewOpError("register", err)
		}
		if ok {
			if bcrypt.CompareHashAndPassword(existing.PasswordHash, []byte(password)) != nil {
				return nil, protocol.WrapError("register", protocol.ErrConflict, "room is registered with another password")
			}
			rec.PasswordHash = existing.PasswordHash
			if codeRec, live, _ := s.store.getRecord(codeKey(existing.Code)); live && codeRec.RoomID == roomID {
				rec.Code = existing.Code
			}
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
			if err != nil {
				return nil, protocol.NewOpError("register", err)
			}
			rec.PasswordHash = hash
		}
	}

	if rec.Code == "" {
		code, ok := s.allocateCode()
		if !ok {
			return nil, protocol.NewOpError("register", ErrNoFreeCode)
		}
		rec.Code = code
	}

	if roomID != "" {
		if err := s.store.putRecord(roomKey(roomID), rec); err != nil {
			return nil, protocol.NewOpError("register", err)
		}
	}
	codeRec := *rec
	codeRec.PasswordHash = nil
	if err := s.store.putRecord(codeKey(rec.Code), &codeRec); err != nil {
		return nil, protocol.NewOpError("register", err)
	}

	s.logger.Info("room registered", "room", roomID, "code", rec.Code, "ttl", ttl)
	return &Registration{
		Address:   address,
		RoomID:    roomID,
		Code:      rec.Code,
		ExpiresAt: expiresAt,
		TTL:       int(ttl / time.Second),
	}, nil
}

func (s *Service) allocateCode() (string, bool) {
	for range codeAttempts {
		code := s.newCode()
		if _, taken := s.store.Get(codeKey(code)); !taken {
			return code, true
		}
	}
	return "", false
}

// Resolve looks a room up by id and password.
func (s *Service) Resolve(ctx context.Context, roomID, password string) (*Resolution, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, protocol.WrapError("resolve", protocol.ErrProtocol, "roomId is required")
	}
	rec, ok, err := s.store.getRecord(roomKey(roomID))
	if err != nil {
		return nil, protocol.NewOpError("resolve", err)
	}
	if !ok {
		return nil, protocol.WrapError("resolve", protocol.ErrNotFound, "room not found or expired")
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
		return nil, protocol.NewOpError("resolve", protocol.ErrBadPassword)
	}
	return &Resolution{Address: rec.Address, RoomID: rec.RoomID, Code: rec.Code, ExpiresAt: rec.ExpiresAt}, nil
}

// ResolveCode looks a registration up by its join code.
func (s *Service) ResolveCode(ctx context.Context, code string) (*Resolution, error) {
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return nil, protocol.WrapError("resolve", protocol.ErrProtocol, "code must be exactly 5 digits")
	}
	rec, ok, err := s.store.getRecord(codeKey(code))
	if err != nil {
		return nil, protocol.NewOpError("resolve", err)
	}
	if !ok {
		return nil, protocol.WrapError("resolve", protocol.ErrNotFound, "code not found or expired")
	}
	return &Resolution{Address: rec.Address, RoomID: rec.RoomID, Code: code, ExpiresAt: rec.ExpiresAt}, nil
}
