// Package password hashes and verifies account passwords.
package password

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const argon2Prefix = "$argon2id$"

// ErrTooLong is returned by Bcrypt.Hash for input beyond bcrypt's 72-byte limit.
var ErrTooLong = errors.New("password exceeds 72 bytes")

// Hasher produces a salted, irreversible encoding of a password.
type Hasher interface {
	Hash(plain string) (string, error)
}

type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(plain string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrTooLong
	}
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

type Argon2id struct {
	Params *argon2id.Params
}

func (a Argon2id) Hash(plain string) (string, error) {
	p := a.Params
	if p == nil {
		p = argon2id.DefaultParams
	}
	return argon2id.CreateHash(plain, p)
}

// New picks the hasher by name; the empty name means bcrypt.
func New(name string) (Hasher, error) {
	switch name {
	case "", "bcrypt":
		return Bcrypt{}, nil
	case "argon2id":
		return Argon2id{}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}

// Verify checks plain against an encoded hash produced by either hasher.
// A mismatch is reported as (false, nil).
func Verify(plain, encoded string) (bool, error) {
	if strings.HasPrefix(encoded, argon2Prefix) {
		return argon2id.ComparePasswordAndHash(plain, encoded)
	}
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}
