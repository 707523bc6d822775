// Package compress wraps a folded chain into a single Groth16 proof. The
// circuit replays the constant-cost verifier checks over the step relation's
// matrices, baked in as constants at compile time, and recomputes the
// Poseidon2 binding digest so the two public inputs pin down the whole
// snapshot: the parameter hash and the proof digest.
package compress

import (
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/foldgrad/foldgrad"
	"github.com/foldgrad/foldgrad/circuits/hasher"
)

// row mirrors one sparse matrix row with constant coefficients.
type row []entry

type entry struct {
	col   int
	coeff *big.Int
}

// InstanceVars carries a relaxed instance into the circuit. Commitments enter
// in decomposed form, the same limbs the native digest hashes.
type InstanceVars struct {
	CmW hasher.G1DecomposedVars
	CmE hasher.G1DecomposedVars
	U   frontend.Variable
	X   []frontend.Variable
}

// Circuit checks one running relaxed instance and one strict incoming
// instance against the step relation, then binds everything to the public
// digest. Matrices live in unexported fields so the frontend treats them as
// compile-time constants.
type Circuit struct {
	PPHash frontend.Variable `gnark:",public"`
	Digest frontend.Variable `gnark:",public"`

	I  frontend.Variable
	Z0 []frontend.Variable
	Zi []frontend.Variable

	Running   InstanceVars
	RunningW  []frontend.Variable
	RunningE  []frontend.Variable
	Incoming  InstanceVars
	IncomingW []frontend.Variable

	// The auxiliary chain is checked natively; its digest enters the
	// binding hash as witness, as does the transcript state.
	AuxDigest frontend.Variable
	TrState   frontend.Variable

	nbWit    int
	nbPub    int
	stateLen int
	a, b, c  []row
}

// NewCircuit builds a compile-time placeholder sized to the verifier
// parameters, with the relation matrices embedded as constants.
func NewCircuit(vp *foldgrad.VerifierParams) *Circuit {
	shape := vp.StepShape
	c := &Circuit{
		Z0:        make([]frontend.Variable, vp.StateLen),
		Zi:        make([]frontend.Variable, vp.StateLen),
		RunningW:  make([]frontend.Variable, shape.NbWit),
		RunningE:  make([]frontend.Variable, shape.NbRows()),
		IncomingW: make([]frontend.Variable, shape.NbWit),
		nbWit:     shape.NbWit,
		nbPub:     shape.NbPub,
		stateLen:  vp.StateLen,
	}
	c.Running.X = make([]frontend.Variable, shape.NbPub)
	c.Incoming.X = make([]frontend.Variable, shape.NbPub)
	c.a = constRows(shape.A)
	c.b = constRows(shape.B)
	c.c = constRows(shape.C)
	return c
}

func constRows(m [][]foldgrad.Entry) []row {
	out := make([]row, len(m))
	for i, r := range m {
		out[i] = make(row, len(r))
		for j, e := range r {
			v := new(big.Int)
			e.Coeff.BigInt(v)
			out[i][j] = entry{col: e.Col, coeff: v}
		}
	}
	return out
}

// combine evaluates one matrix row against z = (w | x | u).
func (c *Circuit) combine(api frontend.API, r row, w, x []frontend.Variable, u frontend.Variable) frontend.Variable {
	var acc frontend.Variable = 0
	for _, e := range r {
		var v frontend.Variable
		switch {
		case e.col < c.nbWit:
			v = w[e.col]
		case e.col < c.nbWit+c.nbPub:
			v = x[e.col-c.nbWit]
		default:
			v = u
		}
		acc = api.Add(acc, api.Mul(e.coeff, v))
	}
	return acc
}

func (c *Circuit) Define(api frontend.API) error {
	perm, err := hasher.NewPoseidon2FromParameters(api)
	if err != nil {
		return err
	}

	// Running pair satisfies the relaxed relation Az∘Bz = u·Cz + E.
	for i := range c.a {
		az := c.combine(api, c.a[i], c.RunningW, c.Running.X, c.Running.U)
		bz := c.combine(api, c.b[i], c.RunningW, c.Running.X, c.Running.U)
		cz := c.combine(api, c.c[i], c.RunningW, c.Running.X, c.Running.U)
		api.AssertIsEqual(api.Mul(az, bz), api.Add(api.Mul(c.Running.U, cz), c.RunningE[i]))
	}

	// Incoming pair is strict: u = 1, E = 0.
	for i := range c.a {
		az := c.combine(api, c.a[i], c.IncomingW, c.Incoming.X, 1)
		bz := c.combine(api, c.b[i], c.IncomingW, c.Incoming.X, 1)
		cz := c.combine(api, c.c[i], c.IncomingW, c.Incoming.X, 1)
		api.AssertIsEqual(api.Mul(az, bz), cz)
	}
	api.AssertIsEqual(c.Incoming.U, 1)
	c.assertIdentityDecomp(api, c.Incoming.CmE)

	// The incoming public column ends with the chain slots; right before
	// them sits the claimed aggregate state.
	n := len(c.Incoming.X)
	tail := c.Incoming.X[n-foldgrad.CHAIN_SLOTS-c.stateLen : n-foldgrad.CHAIN_SLOTS]
	for i := 0; i < c.stateLen; i++ {
		api.AssertIsEqual(tail[i], c.Zi[i])
	}
	api.AssertIsEqual(c.Incoming.X[n-4], c.I)

	// Rebuild both instance digests and the binding digest the way the
	// native hasher chains them.
	runDigest := c.instanceDigest(perm, c.Running)
	incDigest := c.instanceDigest(perm, c.Incoming)

	// The step's running-digest slot must point at the accumulator being
	// checked here.
	api.AssertIsEqual(c.Incoming.X[n-2], runDigest)

	vals := []frontend.Variable{c.PPHash, c.I}
	vals = append(vals, c.Z0...)
	vals = append(vals, c.Zi...)
	vals = append(vals, runDigest, incDigest, c.AuxDigest, c.TrState)
	api.AssertIsEqual(c.Digest, perm.HashSumVars(vals...))
	return nil
}

func (c *Circuit) instanceDigest(perm *hasher.Permutation, u InstanceVars) frontend.Variable {
	vals := []frontend.Variable{
		perm.HashG1Vars(u.CmW),
		perm.HashG1Vars(u.CmE),
		u.U,
	}
	vals = append(vals, u.X...)
	return perm.HashSumVars(vals...)
}

// assertIdentityDecomp pins the decomposed limbs of the point at infinity.
func (c *Circuit) assertIdentityDecomp(api frontend.API, g hasher.G1DecomposedVars) {
	api.AssertIsEqual(g.XQ, 0)
	api.AssertIsEqual(g.XM, 0)
	api.AssertIsEqual(g.YQ, 0)
	api.AssertIsEqual(g.YM, 0)
}
