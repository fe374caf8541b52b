// Package identity maps caller credentials to stable account identifiers.
// Full credential validation is out of scope; the pool trusts the resolved
// identifier as stable and unforgeable.
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrUnknownCaller indicates the credential could not be resolved.
var ErrUnknownCaller = errors.New("identity: unknown caller")

// AccountID is a stable user identifier. Collateral accounts are keyed by it.
type AccountID string

// Credential is an opaque caller credential presented with each operation.
type Credential string

// Resolver maps a credential to an AccountID. Resolution happens exactly once
// per operation, before any ledger lookup.
type Resolver interface {
	Resolve(ctx context.Context, cred Credential) (AccountID, error)
}

// Passthrough treats the credential itself as the account identifier after
// normalization. It is the trust model of the host layer: the transport has
// already authenticated the caller.
type Passthrough struct{}

func (Passthrough) Resolve(_ context.Context, cred Credential) (AccountID, error) {
	id := strings.TrimSpace(string(cred))
	if id == "" {
		return "", ErrUnknownCaller
	}
	return AccountID(id), nil
}
