package foldgrad

import (
	"math/big"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/grumpkin"
	grumpkinfr "github.com/consensys/gnark-crypto/ecc/grumpkin/fr"
)

// Transcript derives non-interactive challenges from everything absorbed so
// far. It is a chained Poseidon2 compression: state' = Compress(state, v).
// Challenges also advance the state, so no two draws coincide and reordering
// any absorbed value changes every later challenge.
type Transcript struct {
	h     Hasher
	state fr.Element
	round uint64
}

// NewTranscript seeds the transcript with the public-parameters binding so a
// proof made under different parameters derives unrelated challenges.
func NewTranscript(h Hasher, ppHash fr.Element) *Transcript {
	t := &Transcript{h: h}
	t.state = h.Compress(t.state, ppHash)
	return t
}

func (t *Transcript) Absorb(vals ...fr.Element) {
	for _, v := range vals {
		t.state = t.h.Compress(t.state, v)
	}
}

func (t *Transcript) AbsorbUint(v uint64) {
	var e fr.Element
	e.SetUint64(v)
	t.Absorb(e)
}

func (t *Transcript) AbsorbPoint(p bn254.G1Affine) {
	t.Absorb(t.h.HashG1(p))
}

func (t *Transcript) AbsorbPointGrumpkin(p grumpkin.G1Affine) {
	t.Absorb(t.h.HashG1Grumpkin(p))
}

func (t *Transcript) AbsorbScalarGrumpkin(v grumpkinfr.Element) {
	t.Absorb(t.h.HashScalarGrumpkin(v))
}

// Challenge draws a BN254-Fr challenge and advances the state.
func (t *Transcript) Challenge() fr.Element {
	t.round++
	var ctr fr.Element
	ctr.SetUint64(t.round)
	t.state = t.h.Compress(t.state, ctr)
	return t.state
}

// ChallengeGrumpkin draws a challenge embedded into the Grumpkin scalar
// field. The embedding is canonical: BN254's scalar modulus is smaller than
// Grumpkin's.
func (t *Transcript) ChallengeGrumpkin() grumpkinfr.Element {
	c := t.Challenge()
	var b big.Int
	c.BigInt(&b)
	var out grumpkinfr.Element
	out.SetBigInt(&b)
	return out
}

// State exposes the running digest for binding into proofs.
func (t *Transcript) State() fr.Element {
	return t.state
}

// resumeTranscript reopens a transcript at a recorded state and round counter
// so the verifier can replay the challenges of the final fold.
func resumeTranscript(h Hasher, state fr.Element, round uint64) *Transcript {
	return &Transcript{h: h, state: state, round: round}
}
