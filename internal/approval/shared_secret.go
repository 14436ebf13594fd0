package approval

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt" // Password hashing
)

// SharedSecret accepts any one of a set of organization-wide secrets. The
// secret does not identify the approver; identity comes from the caller.
type SharedSecret struct {
	hashes [][]byte
}

// NewSharedSecret builds a verifier from bcrypt hashes of the secrets
func NewSharedSecret(hashes []string) (*SharedSecret, error) {
	out := make([][]byte, 0, len(hashes))
	for i, h := range hashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("approval secret hash #%d: %w", i+1, err)
		}
		out = append(out, []byte(h))
	}
	return &SharedSecret{hashes: out}, nil
}

// Verify implements Verifier
func (s *SharedSecret) Verify(_ context.Context, _ uint, credential string) (bool, error) {
	for _, h := range s.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(credential)) == nil {
			return true, nil
		}
	}
	return false, nil
}
