package foldgrad

import "errors"

var (
	// ErrSetup: the relation's declared arity is inconsistent with its
	// constraint synthesis, detected once during Preprocess.
	ErrSetup = errors.New("foldgrad: setup failed")

	// ErrArityMismatch: initial state length does not match the relation.
	ErrArityMismatch = errors.New("foldgrad: state arity mismatch")

	// ErrOutOfRange: a gradient value exceeds the fixed-point window or is
	// not a finite number.
	ErrOutOfRange = errors.New("foldgrad: value outside fixed-point range")

	// ErrConstraintUnsatisfied: step synthesis produced an inconsistent
	// assignment. A bug in the relation or malformed input, fatal for the
	// session.
	ErrConstraintUnsatisfied = errors.New("foldgrad: constraint system unsatisfied")

	// ErrInvalidProof: the expected, non-exceptional outcome of a failed
	// verification.
	ErrInvalidProof = errors.New("foldgrad: invalid proof")

	// ErrProofEncoding: malformed or version-mismatched proof bytes,
	// rejected before any cryptographic check runs.
	ErrProofEncoding = errors.New("foldgrad: malformed proof encoding")

	// ErrCompression: the wrapped verification circuit did not synthesize.
	ErrCompression = errors.New("foldgrad: compression failed")

	// ErrInternal: an engine malfunction, distinct from an invalid proof.
	ErrInternal = errors.New("foldgrad: internal error")
)
