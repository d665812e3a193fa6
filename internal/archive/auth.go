package archive

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var errNoCredential = errors.New("missing credential")

// Authorizer decides whether a bearer credential may access the archive.
type Authorizer interface {
	Authorize(credential string) error
}

// TokenAuthorizer accepts exactly one token.
type TokenAuthorizer struct {
	token string
}

// NewTokenAuthorizer accepts the given token.
func NewTokenAuthorizer(token string) TokenAuthorizer {
	return TokenAuthorizer{token: token}
}

func (a TokenAuthorizer) Authorize(credential string) error {
	if credential == "" {
		return errNoCredential
	}
	if a.token == "" || subtle.ConstantTimeCompare([]byte(credential), []byte(a.token)) != 1 {
		return errors.New("credential rejected")
	}
	return nil
}

// HashAuthorizer accepts tokens matching a bcrypt hash, so the archive side
// never needs the plaintext token.
type HashAuthorizer struct {
	hash []byte
}

// NewHashAuthorizer validates hash and returns an authorizer for it.
func NewHashAuthorizer(hash string) (HashAuthorizer, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return HashAuthorizer{}, fmt.Errorf("invalid credential hash: %w", err)
	}
	return HashAuthorizer{hash: []byte(hash)}, nil
}

// HashToken returns a bcrypt hash for token, suitable for NewHashAuthorizer.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (a HashAuthorizer) Authorize(credential string) error {
	if credential == "" {
		return errNoCredential
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(credential)); err != nil {
		return errors.New("credential rejected")
	}
	return nil
}

type denyAll struct{}

func (denyAll) Authorize(string) error { return errors.New("no authorizer configured") }
