package foldgrad

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

type paramsKey struct {
	relation string
	stateLen int
	inputLen int
	cfg      HashConfig
}

type paramsEntry struct {
	pp  *ProverParams
	vp  *VerifierParams
	err error
}

var (
	paramsMu    sync.Mutex
	paramsCache = map[paramsKey]*paramsEntry{}
)

// cachedParams memoizes Preprocess process-wide per relation shape. Generator
// derivation dominates setup cost and every session over the same relation
// shares identical parameters, so one derivation serves all of them.
func cachedParams(rel StepRelation, cfg HashConfig) (*ProverParams, *VerifierParams, error) {
	// %#v spells out the relation's field values, so two relations of the
	// same type but different configuration never share an entry.
	key := paramsKey{
		relation: fmt.Sprintf("%#v", rel),
		stateLen: rel.StateLen(),
		inputLen: rel.InputLen(),
		cfg:      cfg,
	}
	paramsMu.Lock()
	e, ok := paramsCache[key]
	if !ok {
		e = &paramsEntry{}
		e.pp, e.vp, e.err = Preprocess(rel, cfg)
		paramsCache[key] = e
	}
	paramsMu.Unlock()
	return e.pp, e.vp, e.err
}

// Session is the float-level handle around an accumulator: gradients go in as
// float64 slices, the running aggregate and proofs come out. A session is
// strictly sequential; run concurrent aggregations as separate sessions.
type Session struct {
	acc *Accumulator
	vp  *VerifierParams
}

// NewSession preprocesses (or reuses) parameters for the relation and opens
// an accumulator at the given initial aggregate.
func NewSession(rel StepRelation, z0 ...float64) (*Session, error) {
	pp, vp, err := cachedParams(rel, DefaultHashConfig())
	if err != nil {
		return nil, err
	}
	z, err := EncodeVector(z0)
	if err != nil {
		return nil, err
	}
	acc, err := Init(pp, rel, z)
	if err != nil {
		return nil, err
	}
	return &Session{acc: acc, vp: vp}, nil
}

// ProveStep folds one gradient into the aggregate and returns the new state.
func (s *Session) ProveStep(gradient ...float64) ([]float64, error) {
	in, err := EncodeVector(gradient)
	if err != nil {
		return nil, err
	}
	if err := s.acc.ProveStep(in); err != nil {
		return nil, err
	}
	return s.State()
}

// ProveBatch folds a sequence of gradients and returns the final state.
func (s *Session) ProveBatch(gradients [][]float64) ([]float64, error) {
	for i, g := range gradients {
		if _, err := s.ProveStep(g...); err != nil {
			return nil, fmt.Errorf("batch step %d: %w", i, err)
		}
	}
	return s.State()
}

// State decodes the current aggregate.
func (s *Session) State() ([]float64, error) {
	return DecodeVector(s.acc.State())
}

// NumSteps returns how many gradients have been folded.
func (s *Session) NumSteps() uint64 {
	return s.acc.NumSteps()
}

// FinalProof snapshots the session into serialized proof bytes. The session
// stays usable; calling again without new steps yields identical bytes.
func (s *Session) FinalProof() ([]byte, error) {
	p, err := s.acc.IVCProof()
	if err != nil {
		return nil, err
	}
	return p.Bytes()
}

// Params returns the verifier parameters matching this session's proofs.
func (s *Session) Params() *VerifierParams {
	return s.vp
}

// VerifyProofBytes parses and verifies proof bytes against the session's
// parameters. Malformed bytes and failed verification both yield false;
// the two cases are logged apart since a decode failure never reaches the
// cryptographic checks.
func (s *Session) VerifyProofBytes(b []byte) bool {
	p, err := ParseProof(b)
	if err != nil {
		log.Println("proof rejected before verification:", err)
		return false
	}
	if err := Verify(s.vp, p); err != nil {
		if errors.Is(err, ErrInvalidProof) {
			log.Println("proof verification failed:", err)
		} else {
			log.Println("verifier malfunction:", err)
		}
		return false
	}
	return true
}
