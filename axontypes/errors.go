// Package axontypes defines the wire and state data model shared by the
// executor, the consensus adapter and the BFT driver: blocks, signed
// transactions, accounts, validators, epochs and the consensus message
// family.
package axontypes

import "errors"

// Error kinds named in the error handling design. Packages that need a
// more specific sentinel wrap one of these with fmt.Errorf("%w: ...").
var (
	ErrDecode          = errors.New("decode error")
	ErrAuthorization   = errors.New("authorization error")
	ErrExecutionRevert = errors.New("execution revert")
	ErrBackend         = errors.New("backend error")
	ErrConsensus       = errors.New("consensus protocol violation")
	ErrTimeout         = errors.New("phase deadline exceeded")
)
