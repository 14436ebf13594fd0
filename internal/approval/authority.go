// Package approval decides whether an approval attempt carries a valid credential.
package approval

import (
	"context"
	"fmt"

	"fund_ledger/internal/domain"
)

// Verifier checks one kind of credential
type Verifier interface {
	Verify(ctx context.Context, approverID uint, credential string) (bool, error)
}

// Authority dispatches to the verifier registered for each method
type Authority struct {
	verifiers map[domain.ApprovalMethod]Verifier
}

// NewAuthority creates an authority with no verifiers
func NewAuthority() *Authority {
	return &Authority{verifiers: make(map[domain.ApprovalMethod]Verifier)}
}

// Register installs v for method, replacing any previous verifier
func (a *Authority) Register(method domain.ApprovalMethod, v Verifier) *Authority {
	a.verifiers[method] = v
	return a
}

// Verify reports whether credential is acceptable for method. An unknown or
// unconfigured method is a validation error, not a rejection.
func (a *Authority) Verify(ctx context.Context, approverID uint, credential string, method domain.ApprovalMethod) (bool, error) {
	v, ok := a.verifiers[method]
	if !ok {
		return false, fmt.Errorf("%w: unsupported approval method %q", domain.ErrValidation, method)
	}
	if credential == "" {
		return false, nil
	}
	return v.Verify(ctx, approverID, credential)
}
