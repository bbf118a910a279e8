package bulwark

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultKeyRetention matches the default refresh token TTL.
const DefaultKeyRetention = 24 * time.Hour

// DefaultKeyReloadRateLimit bounds how often an unknown generation may
// trigger a reload from the repository.
const DefaultKeyReloadRateLimit = 5 * time.Second

// SigningKeyRepository persists signing key generations. Insert must fail
// with ErrGenerationConflict when the generation already exists.
type SigningKeyRepository interface {
	List(ctx context.Context) ([]*SigningKeyGeneration, error)
	Insert(ctx context.Context, key *SigningKeyGeneration) error
	Delete(ctx context.Context, generation int) error
}

// SigningKey is a parsed key generation.
type SigningKey struct {
	Generation int
	Created    time.Time
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

// SigningKeyStore caches key generations for the process. Reads are safe
// for concurrent use, rotation and purge are serialized.
type SigningKeyStore struct {
	repo      SigningKeyRepository
	clock     Clock
	retention time.Duration
	reloadMin time.Duration
	logger    Logger

	mu      sync.RWMutex
	keys    map[int]*SigningKey
	current int
	loaded  bool

	writeMu    sync.Mutex
	lastReload time.Time
}

// NewSigningKeyStore returns a store backed by repo. Keys are loaded lazily.
func NewSigningKeyStore(repo SigningKeyRepository) *SigningKeyStore {
	return &SigningKeyStore{
		repo:      repo,
		clock:     time.Now,
		retention: DefaultKeyRetention,
		reloadMin: DefaultKeyReloadRateLimit,
		logger:    defLogger{},
		keys:      map[int]*SigningKey{},
	}
}

func (s *SigningKeyStore) WithClock(c Clock) *SigningKeyStore {
	s.clock = normalizeClock(c)
	return s
}

// WithRetention sets how long a generation keeps verifying after it stops
// signing. It should be at least the refresh token TTL.
func (s *SigningKeyStore) WithRetention(d time.Duration) *SigningKeyStore {
	if d > 0 {
		s.retention = d
	}
	return s
}

// WithReloadRateLimit sets the minimum time between reloads caused by
// tokens carrying an unknown generation.
func (s *SigningKeyStore) WithReloadRateLimit(d time.Duration) *SigningKeyStore {
	if d >= 0 {
		s.reloadMin = d
	}
	return s
}

func (s *SigningKeyStore) WithLogger(l Logger) *SigningKeyStore {
	s.logger = normalizeLogger(l)
	return s
}

// CurrentGeneration returns the highest generation, generating the first
// one when the store is empty.
func (s *SigningKeyStore) CurrentGeneration(ctx context.Context) (*SigningKey, error) {
	if key := s.cachedCurrent(); key != nil {
		return key, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if key := s.cachedCurrent(); key != nil {
		return key, nil
	}

	if err := s.reload(ctx); err != nil {
		return nil, err
	}

	if key := s.cachedCurrent(); key != nil {
		return key, nil
	}

	s.logger.Info("no signing key found, generating the first generation")
	return s.generate(ctx, true)
}

// Generation returns a retained generation. Generations newer than the
// cached current one trigger a reload, at most once per reload rate limit,
// so rotations made by other processes become visible.
func (s *SigningKeyStore) Generation(ctx context.Context, generation int) (*SigningKey, error) {
	s.mu.RLock()
	key, ok := s.keys[generation]
	current := s.current
	loaded := s.loaded
	s.mu.RUnlock()

	if ok {
		return key, nil
	}

	if loaded && generation <= current {
		return nil, Fail(ErrKeyRotatedOut, nil, map[string]any{"generation": generation})
	}

	if err := s.reloadForMiss(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	key, ok = s.keys[generation]
	s.mu.RUnlock()
	if !ok {
		return nil, Fail(ErrKeyRotatedOut, nil, map[string]any{"generation": generation})
	}
	return key, nil
}

// Generations returns the retained generation numbers in ascending order.
func (s *SigningKeyStore) Generations() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.keys))
	for g := range s.keys {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

// RotateKey generates a new highest generation. Earlier generations keep
// verifying until PurgeRetired removes them.
func (s *SigningKeyStore) RotateKey(ctx context.Context) (*SigningKey, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.reload(ctx); err != nil {
		return nil, err
	}

	key, err := s.generate(ctx, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rotated signing key to generation %d", key.Generation)
	return key, nil
}

// PurgeRetired deletes every generation whose successor has been signing
// for longer than the retention window. The current generation is never
// purged. It returns the number of generations removed.
func (s *SigningKeyStore) PurgeRetired(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.reload(ctx); err != nil {
		return 0, err
	}

	s.mu.RLock()
	generations := make([]*SigningKey, 0, len(s.keys))
	for _, k := range s.keys {
		generations = append(generations, k)
	}
	s.mu.RUnlock()

	sort.Slice(generations, func(i, j int) bool {
		return generations[i].Generation < generations[j].Generation
	})

	now := s.clock()
	purged := 0
	for i := 0; i < len(generations)-1; i++ {
		successor := generations[i+1]
		if successor.Created.Add(s.retention).After(now) {
			continue
		}

		gen := generations[i].Generation
		if err := s.repo.Delete(ctx, gen); err != nil {
			return purged, PersistenceError(err, "signing_keys.delete")
		}

		s.mu.Lock()
		delete(s.keys, gen)
		s.mu.Unlock()

		purged++
		s.logger.Info("purged signing key generation %d", gen)
	}

	return purged, nil
}

func (s *SigningKeyStore) reloadForMiss(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()

	now := s.clock()
	if loaded && !s.lastReload.IsZero() && now.Sub(s.lastReload) < s.reloadMin {
		return nil
	}
	if err := s.reload(ctx); err != nil {
		return err
	}
	s.lastReload = now
	return nil
}

func (s *SigningKeyStore) cachedCurrent() *SigningKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded || s.current == 0 {
		return nil
	}
	return s.keys[s.current]
}

// generate must be called with writeMu held and a fresh cache. With
// bootstrap set, a generation created concurrently by another process is
// accepted as the result.
func (s *SigningKeyStore) generate(ctx context.Context, bootstrap bool) (*SigningKey, error) {
	for attempt := 0; attempt < 2; attempt++ {
		s.mu.RLock()
		next := s.current + 1
		s.mu.RUnlock()

		record, key, err := newSigningKeyGeneration(next, s.clock())
		if err != nil {
			return nil, err
		}

		err = s.repo.Insert(ctx, record)
		if err == nil {
			s.mu.Lock()
			s.keys[key.Generation] = key
			if key.Generation > s.current {
				s.current = key.Generation
			}
			s.loaded = true
			s.mu.Unlock()
			return key, nil
		}

		if !IsKind(err, ErrGenerationConflict) {
			return nil, PersistenceError(err, "signing_keys.insert")
		}

		s.logger.Warn("signing key generation %d created concurrently, reloading", next)
		if err := s.reload(ctx); err != nil {
			return nil, err
		}
		if key := s.cachedCurrent(); bootstrap && key != nil {
			return key, nil
		}
	}

	return nil, Fail(ErrGenerationConflict, nil, map[string]any{"operation": "signing_keys.generate"})
}

func (s *SigningKeyStore) reload(ctx context.Context) error {
	records, err := s.repo.List(ctx)
	if err != nil {
		return PersistenceError(err, "signing_keys.list")
	}

	keys := make(map[int]*SigningKey, len(records))
	current := 0
	for _, record := range records {
		key, err := parseSigningKey(record)
		if err != nil {
			s.logger.Error("skipping unreadable signing key generation %d: %v", record.Generation, err)
			continue
		}
		keys[key.Generation] = key
		if key.Generation > current {
			current = key.Generation
		}
	}

	s.mu.Lock()
	s.keys = keys
	s.current = current
	s.loaded = true
	s.mu.Unlock()

	return nil
}

func newSigningKeyGeneration(generation int, now time.Time) (*SigningKeyGeneration, *SigningKey, error) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate signing key: %w", err)
	}

	privateDER, err := x509.MarshalECPrivateKey(private)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}

	created := now.UTC()
	record := &SigningKeyGeneration{
		ID:         uuid.New(),
		Generation: generation,
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privateDER})),
		PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})),
		Created:    created,
	}

	return record, &SigningKey{
		Generation: generation,
		Created:    created,
		PrivateKey: private,
		PublicKey:  &private.PublicKey,
	}, nil
}

func parseSigningKey(record *SigningKeyGeneration) (*SigningKey, error) {
	private, err := jwt.ParseECPrivateKeyFromPEM([]byte(record.PrivateKey))
	if err != nil {
		return nil, err
	}

	public, err := jwt.ParseECPublicKeyFromPEM([]byte(record.PublicKey))
	if err != nil {
		return nil, err
	}

	return &SigningKey{
		Generation: record.Generation,
		Created:    record.Created,
		PrivateKey: private,
		PublicKey:  public,
	}, nil
}
