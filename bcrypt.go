package bulwark

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNoEmptyString is returned when hashing an empty password.
	ErrNoEmptyString = errors.New("password must not be empty")
	// ErrMismatchedHashAndPassword is returned when a password does not match its hash.
	ErrMismatchedHashAndPassword = errors.New("password does not match hash")
)

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher is the default PasswordHasher. A zero Cost uses the build
// default.
type BcryptHasher struct {
	Cost int
}

func (b BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}
	cost := b.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

func (b BcryptHasher) Compare(hash, password string) error {
	return ComparePasswordAndHash(password, hash)
}

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return BcryptHasher{}.Hash(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash hashes a random password. Accounts provisioned from a
// social identity get one so password login stays closed for them.
func RandomPasswordHash(hasher PasswordHasher) (string, error) {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return hasher.Hash(uuid.NewString() + uuid.NewString())
}

func normalizeHasher(h PasswordHasher) PasswordHasher {
	if h == nil {
		return BcryptHasher{}
	}
	return h
}
