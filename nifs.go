package foldgrad

import (
	"fmt"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Instance is the public half of a (possibly relaxed) R1CS claim: Pedersen
// commitments to the witness and error vectors, the relaxation scalar u and
// the public inputs x. A strict instance has U = 1 and an identity CmE.
type Instance struct {
	CmW bn254.G1Affine
	CmE bn254.G1Affine
	U   fr.Element
	X   []fr.Element
}

// Witness is the private half. Never serialized into transcripts; it travels
// inside IVCProof only so the verifier can open the commitments.
type Witness struct {
	W []fr.Element
	E []fr.Element
}

// NewStrictInstance wraps a freshly synthesized step: u = 1, no error term.
func NewStrictInstance(cmW bn254.G1Affine, x []fr.Element) Instance {
	var one fr.Element
	one.SetOne()
	return Instance{CmW: cmW, U: one, X: append([]fr.Element(nil), x...)}
}

// ZeroRelaxedPair is the identity element of folding: zero vectors, u = 0,
// identity commitments. It satisfies the relaxed relation trivially.
func ZeroRelaxedPair(shape *Shape) (Instance, Witness) {
	inst := Instance{X: make([]fr.Element, shape.NbPub)}
	wit := Witness{
		W: make([]fr.Element, shape.NbWit),
		E: make([]fr.Element, shape.NbRows()),
	}
	return inst, wit
}

// Digest binds every field of the instance into one element.
func (u *Instance) Digest(h Hasher) fr.Element {
	vals := make([]fr.Element, 0, len(u.X)+3)
	vals = append(vals, h.HashG1(u.CmW), h.HashG1(u.CmE), u.U)
	vals = append(vals, u.X...)
	return h.Sum(vals...)
}

func (t *Transcript) AbsorbInstance(u *Instance) {
	t.AbsorbPoint(u.CmW)
	t.AbsorbPoint(u.CmE)
	t.Absorb(u.U)
	t.Absorb(u.X...)
}

// pointFold records one commitment combination Out = P1 + r·P2 performed
// during a fold, to be attested by the auxiliary circuit on Grumpkin.
type pointFold struct {
	P1, P2, Out bn254.G1Affine
	R           fr.Element
}

// foldStep folds a strict incoming pair into the relaxed running pair under a
// transcript challenge. Returns the folded pair, the cross-term commitment and
// the two point operations the auxiliary circuit must attest.
func foldStep(shape *Shape, pk *PedersenKey, tr *Transcript,
	running Instance, runningWit Witness,
	incoming Instance, incomingWit Witness) (Instance, Witness, bn254.G1Affine, [2]pointFold, error) {

	var none [2]pointFold
	var one fr.Element
	one.SetOne()
	if !incoming.U.Equal(&one) || !incoming.CmE.IsInfinity() {
		return Instance{}, Witness{}, bn254.G1Affine{}, none, fmt.Errorf("%w: incoming instance is not strict", ErrInternal)
	}

	z1, err := shape.Z(runningWit.W, running.X, running.U)
	if err != nil {
		return Instance{}, Witness{}, bn254.G1Affine{}, none, err
	}
	z2, err := shape.Z(incomingWit.W, incoming.X, incoming.U)
	if err != nil {
		return Instance{}, Witness{}, bn254.G1Affine{}, none, err
	}
	t := shape.CrossTerm(z1, z2, running.U, incoming.U)
	cmT, err := pk.Commit(t)
	if err != nil {
		return Instance{}, Witness{}, bn254.G1Affine{}, none, fmt.Errorf("%w: commit cross term: %v", ErrInternal, err)
	}

	tr.AbsorbInstance(&running)
	tr.AbsorbInstance(&incoming)
	tr.AbsorbPoint(cmT)
	r := tr.Challenge()

	folded := Instance{
		CmW: FoldPoints(running.CmW, incoming.CmW, r),
		CmE: FoldPoints(running.CmE, cmT, r),
		X:   make([]fr.Element, len(running.X)),
	}
	var tmp fr.Element
	folded.U.Mul(&r, &incoming.U)
	folded.U.Add(&folded.U, &running.U)
	for i := range folded.X {
		tmp.Mul(&r, &incoming.X[i])
		folded.X[i].Add(&running.X[i], &tmp)
	}

	foldedWit := Witness{
		W: make([]fr.Element, len(runningWit.W)),
		E: make([]fr.Element, len(runningWit.E)),
	}
	for i := range foldedWit.W {
		tmp.Mul(&r, &incomingWit.W[i])
		foldedWit.W[i].Add(&runningWit.W[i], &tmp)
	}
	for i := range foldedWit.E {
		tmp.Mul(&r, &t[i])
		foldedWit.E[i].Add(&runningWit.E[i], &tmp)
	}

	ops := [2]pointFold{
		{P1: running.CmW, P2: incoming.CmW, Out: folded.CmW, R: r},
		{P1: running.CmE, P2: cmT, Out: folded.CmE, R: r},
	}
	return folded, foldedWit, cmT, ops, nil
}
