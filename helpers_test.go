package bulwark_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-bulwark"
	"github.com/goliatone/go-bulwark/repository"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "CorrectHorse9!"
	testDevice   = "device-a"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []bulwark.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event bulwark.ActivityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Types() []bulwark.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bulwark.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(ctx, db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// stack is a fully wired engine over an in-memory database.
type stack struct {
	clock     *testClock
	db        *bun.DB
	repo      bulwark.RepositoryManager
	grants    *repository.Authorization
	keys      *bulwark.SigningKeyStore
	tokens    *bulwark.TokenStrategy
	directory *bulwark.Directory
	auth      *bulwark.Authenticator
	activity  *recordingSink
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := newTestDB(t)
	clock := newTestClock()
	repo := repository.NewRepositoryManager(db)
	sink := &recordingSink{}

	keys := bulwark.NewSigningKeyStore(repo.SigningKeys()).
		WithClock(clock.Now).
		WithLogger(silentLogger{})

	tokens := bulwark.NewTokenStrategy(keys, "bulwark-test", "bulwark-test").
		WithClock(clock.Now).
		WithLogger(silentLogger{})

	directory := bulwark.NewDirectory(repo.Accounts()).
		WithHasher(bulwark.BcryptHasher{Cost: bcrypt.MinCost}).
		WithClock(clock.Now).
		WithActivitySink(sink).
		WithLogger(silentLogger{})

	auth := bulwark.NewAuthenticator(directory, tokens, repo.Tokens(), repo.Authorization()).
		WithClock(clock.Now).
		WithActivitySink(sink).
		WithLogger(silentLogger{})

	return &stack{
		clock:     clock,
		db:        db,
		repo:      repo,
		grants:    repository.NewAuthorization(db),
		keys:      keys,
		tokens:    tokens,
		directory: directory,
		auth:      auth,
		activity:  sink,
	}
}

// activeAccount creates and verifies an account.
func (s *stack) activeAccount(t *testing.T, email string) *bulwark.Account {
	t.Helper()
	ctx := context.Background()
	token, err := s.directory.Create(ctx, email, testPassword)
	require.NoError(t, err)
	require.NoError(t, s.directory.Verify(ctx, email, token.Token))
	account, err := s.directory.GetAccount(ctx, email)
	require.NoError(t, err)
	return account
}

// login authenticates and acknowledges a pair for testDevice.
func (s *stack) login(t *testing.T, email string) *bulwark.Authenticated {
	t.Helper()
	ctx := context.Background()
	pair, err := s.auth.Authenticate(ctx, email, testPassword, "")
	require.NoError(t, err)
	require.NoError(t, s.auth.Acknowledge(ctx, *pair, email, testDevice))
	return pair
}
