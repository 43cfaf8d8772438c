package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/sealdrop/internal/blobstore"
	filesDomain "github.com/allisson/sealdrop/internal/files/domain"
	"github.com/allisson/sealdrop/internal/notification"
	outboxDomain "github.com/allisson/sealdrop/internal/outbox/domain"
)

type txKey struct{}

// memStore is a serializable in-memory metadata store. Transactions hold one global lock and
// restore a snapshot on error, which is the behavior the row lock gives for a single id.
type memStore struct {
	mu        sync.Mutex
	files     map[uuid.UUID]filesDomain.File
	events    []*outboxDomain.OutboxEvent
	createErr error
	getErr    error
	outboxErr error
	commitErr error
}

func newMemStore() *memStore {
	return &memStore{files: make(map[uuid.UUID]filesDomain.File)}
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files := maps.Clone(s.files)
	events := slices.Clone(s.events)

	err := fn(context.WithValue(ctx, txKey{}, true))
	if err == nil {
		err = s.commitErr
	}
	if err != nil {
		s.files, s.events = files, events
	}
	return err
}

// locked runs fn under the store lock unless the caller is inside a transaction.
func (s *memStore) locked(ctx context.Context, fn func()) {
	if ctx.Value(txKey{}) == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	fn()
}

func (s *memStore) Create(ctx context.Context, file *filesDomain.File) error {
	var err error
	s.locked(ctx, func() {
		if s.createErr != nil {
			err = s.createErr
			return
		}
		s.files[file.ID] = *file
	})
	return err
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (*filesDomain.File, error) {
	return s.get(ctx, id)
}

func (s *memStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*filesDomain.File, error) {
	return s.get(ctx, id)
}

func (s *memStore) get(ctx context.Context, id uuid.UUID) (*filesDomain.File, error) {
	var (
		file filesDomain.File
		ok   bool
	)
	s.locked(ctx, func() {
		file, ok = s.files[id]
	})
	if s.getErr != nil {
		return nil, s.getErr
	}
	if !ok {
		return nil, filesDomain.ErrFileNotFound
	}
	return &file, nil
}

func (s *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	var err error
	s.locked(ctx, func() {
		if _, ok := s.files[id]; !ok {
			err = filesDomain.ErrFileNotFound
			return
		}
		delete(s.files, id)
	})
	return err
}

func (s *memStore) CountExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	s.locked(ctx, func() {
		for _, file := range s.files {
			if file.CreatedAt.Before(cutoff) {
				count++
			}
		}
	})
	return count, nil
}

func (s *memStore) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*filesDomain.File, error) {
	var expired []*filesDomain.File
	s.locked(ctx, func() {
		for _, file := range s.files {
			if file.CreatedAt.Before(cutoff) {
				expired = append(expired, &file)
			}
		}
	})
	slices.SortFunc(expired, func(a, b *filesDomain.File) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *memStore) fileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *memStore) eventsOfType(eventType string) []*outboxDomain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*outboxDomain.OutboxEvent
	for _, event := range s.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

// memOutbox shares the memStore transaction.
type memOutbox struct {
	store *memStore
}

func (o memOutbox) Create(ctx context.Context, event *outboxDomain.OutboxEvent) error {
	var err error
	o.store.locked(ctx, func() {
		if o.store.outboxErr != nil {
			err = o.store.outboxErr
			return
		}
		o.store.events = append(o.store.events, event)
	})
	return err
}

// plainGateHasher stands in for Argon2id in tests that do not exercise hashing cost.
type plainGateHasher struct{}

func (plainGateHasher) Hash(digest string) (string, error) {
	return "plain$" + digest, nil
}

func (plainGateHasher) Verify(credential, hashedGate string) bool {
	if credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte("plain$"+credential), []byte(hashedGate)) == 1
}

// failingBlobStore wraps a store and fails selected operations.
type failingBlobStore struct {
	BlobStore
	writeErr  error
	openErr   error
	deleteErr error
}

func (f *failingBlobStore) Write(ctx context.Context, key string, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.BlobStore.Write(ctx, key, data)
}

func (f *failingBlobStore) Open(ctx context.Context, key string) (*blobstore.Reader, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.BlobStore.Open(ctx, key)
}

func (f *failingBlobStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.BlobStore.Delete(ctx, key)
}

// MockNotifier is a mock implementation of notification.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n notification.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

var errInjected = errors.New("injected failure")

// MockGateHasher is a mock implementation of service.GateHasher
type MockGateHasher struct {
	mock.Mock
}

func (m *MockGateHasher) Hash(digest string) (string, error) {
	args := m.Called(digest)
	return args.String(0), args.Error(1)
}

func (m *MockGateHasher) Verify(credential, hashedGate string) bool {
	args := m.Called(credential, hashedGate)
	return args.Bool(0)
}
