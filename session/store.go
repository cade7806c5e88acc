package session

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultKey is the fixed storage key for the session record.
const DefaultKey = "goauth.session"

// Store reads and writes the single session record through a [Storage].
//
// Store is safe for concurrent use when the underlying Storage is.
type Store struct {
	storage Storage
	key     string
	now     func() time.Time
	logger  *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithKey overrides [DefaultKey].
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithNow sets the time source used by [Store.IsValid].
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for corrupt-record diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store over storage. A nil storage falls back to a
// fresh [MemoryStorage].
func NewStore(storage Storage, opts ...Option) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Store{
		storage: storage,
		key:     DefaultKey,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the storage key in use.
func (s *Store) Key() string {
	return s.key
}

// Save writes sess, replacing any previous record. No validation is done.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, s.key, data)
}

// Load returns the stored session. It returns ErrNotFound when nothing is
// stored, ErrCorrupt for an unparsable record, and ErrStorageUnavailable
// for backend failures.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	data, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Read returns the stored session, or nil when it is absent, corrupt or the
// backend failed.
func (s *Store) Read(ctx context.Context) *Session {
	sess, err := s.Load(ctx)
	if err == nil {
		return sess
	}
	switch {
	case errors.Is(err, ErrNotFound):
	case errors.Is(err, ErrCorrupt):
		s.logger.Debug("session_record_corrupt", slog.String("key", s.key))
	default:
		s.logger.Warn("session_read_failed", slog.String("key", s.key), slog.Any("error", err))
	}
	return nil
}

// Remove deletes the record. Removing an absent record is not an error.
func (s *Store) Remove(ctx context.Context) error {
	return s.storage.Delete(ctx, s.key)
}

// IsValid reports whether a usable, unexpired session is stored.
func (s *Store) IsValid(ctx context.Context) bool {
	return s.Read(ctx).Valid(s.now())
}
