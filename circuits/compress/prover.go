package compress

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/foldgrad/foldgrad"
	"github.com/foldgrad/foldgrad/circuits/hasher"
)

// ProvingKeys holds Groth16 keys for the wrapping circuit.
type ProvingKeys struct {
	PK  groth16.ProvingKey
	VK  groth16.VerifyingKey
	CCS constraint.ConstraintSystem
}

var (
	cachedKeys = map[[32]byte]*ProvingKeys{}
	keysMutex  sync.Mutex
)

// Setup compiles the wrapping circuit for the given parameters and runs the
// Groth16 setup. Keys are cached per relation shape.
func Setup(vp *foldgrad.VerifierParams) (*ProvingKeys, error) {
	if vp.HashCfg != foldgrad.DefaultHashConfig() {
		return nil, fmt.Errorf("%w: wrapping circuit is fixed to the default hash parameters", foldgrad.ErrCompression)
	}

	key := vp.StepShape.Digest()
	keysMutex.Lock()
	defer keysMutex.Unlock()
	if keys, ok := cachedKeys[key]; ok {
		return keys, nil
	}

	ccs, err := frontend.Compile(foldgrad.FIELD, r1cs.NewBuilder, NewCircuit(vp))
	if err != nil {
		return nil, fmt.Errorf("%w: circuit compilation: %v", foldgrad.ErrCompression, err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("%w: groth16 setup: %v", foldgrad.ErrCompression, err)
	}

	keys := &ProvingKeys{PK: pk, VK: vk, CCS: ccs}
	cachedKeys[key] = keys
	return keys, nil
}

// SuccinctProof is the constant-size wrap of an IVC proof: the Groth16 proof
// plus its two public inputs.
type SuccinctProof struct {
	Proof  []byte
	PPHash [32]byte
	Digest [32]byte
}

func decompVars(d [2][2]fr.Element) hasher.G1DecomposedVars {
	return hasher.G1DecomposedVars{
		XQ: d[0][0].String(),
		XM: d[0][1].String(),
		YQ: d[1][0].String(),
		YM: d[1][1].String(),
	}
}

// Prove wraps a verified IVC proof into a succinct one. The IVC proof is
// fully re-verified first; wrapping an invalid proof must fail rather than
// produce bytes.
func Prove(vp *foldgrad.VerifierParams, keys *ProvingKeys, p *foldgrad.IVCProof) (*SuccinctProof, error) {
	if err := foldgrad.Verify(vp, p); err != nil {
		return nil, fmt.Errorf("%w: refusing to wrap: %v", foldgrad.ErrCompression, err)
	}
	if keys == nil {
		var err error
		keys, err = Setup(vp)
		if err != nil {
			return nil, err
		}
	}

	assignment := NewCircuit(vp)
	var pp fr.Element
	pp.SetBytes(p.PPHash[:])
	assignment.PPHash = pp.String()
	assignment.Digest = p.Digest.String()
	assignment.I = p.I
	for i := range p.Z0 {
		assignment.Z0[i] = p.Z0[i].String()
		assignment.Zi[i] = p.Zi[i].String()
	}
	assignment.Running = instanceVars(p.Running)
	for i := range p.RunningWit.W {
		assignment.RunningW[i] = p.RunningWit.W[i].String()
	}
	for i := range p.RunningWit.E {
		assignment.RunningE[i] = p.RunningWit.E[i].String()
	}
	assignment.Incoming = instanceVars(p.Incoming)
	for i := range p.IncomingWit.W {
		assignment.IncomingW[i] = p.IncomingWit.W[i].String()
	}
	auxDigest := p.AuxRunning.Digest(vp.H)
	assignment.AuxDigest = auxDigest.String()
	assignment.TrState = p.TrState.String()

	witness, err := frontend.NewWitness(assignment, foldgrad.FIELD)
	if err != nil {
		return nil, fmt.Errorf("%w: witness: %v", foldgrad.ErrCompression, err)
	}
	proof, err := groth16.Prove(keys.CCS, keys.PK, witness)
	if err != nil {
		return nil, fmt.Errorf("%w: prove: %v", foldgrad.ErrCompression, err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize: %v", foldgrad.ErrCompression, err)
	}
	sp := &SuccinctProof{Proof: buf.Bytes(), PPHash: p.PPHash}
	db := p.Digest.Bytes()
	copy(sp.Digest[:], db[:])
	return sp, nil
}

func instanceVars(u foldgrad.Instance) InstanceVars {
	v := InstanceVars{
		CmW: decompVars(foldgrad.DecomposeG1(u.CmW)),
		CmE: decompVars(foldgrad.DecomposeG1(u.CmE)),
		U:   u.U.String(),
		X:   make([]frontend.Variable, len(u.X)),
	}
	for i := range u.X {
		v.X[i] = u.X[i].String()
	}
	return v
}

// VerifySuccinct checks a wrapped proof against verifier parameters. Only
// the two public inputs and the Groth16 proof are needed.
func VerifySuccinct(vp *foldgrad.VerifierParams, keys *ProvingKeys, sp *SuccinctProof) error {
	if sp.PPHash != vp.PPHash() {
		return fmt.Errorf("%w: parameter hash mismatch", foldgrad.ErrInvalidProof)
	}
	if keys == nil {
		var err error
		keys, err = Setup(vp)
		if err != nil {
			return err
		}
	}

	public := NewCircuit(vp)
	var pp, dig fr.Element
	pp.SetBytes(sp.PPHash[:])
	dig.SetBytes(sp.Digest[:])
	public.PPHash = pp.String()
	public.Digest = dig.String()

	pubWitness, err := frontend.NewWitness(public, foldgrad.FIELD, frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("%w: public witness: %v", foldgrad.ErrCompression, err)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(sp.Proof)); err != nil {
		return fmt.Errorf("%w: %v", foldgrad.ErrProofEncoding, err)
	}
	if err := groth16.Verify(proof, keys.VK, pubWitness); err != nil {
		return fmt.Errorf("%w: %v", foldgrad.ErrInvalidProof, err)
	}
	return nil
}
