package foldgrad

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

type paramsCore struct {
	HashCfg     HashConfig
	H           Hasher
	cp          circuitPoseidon
	StepShape   *Shape
	AuxShape    *AuxShape
	StateLen    int
	InputLen    int
	Pedersen    PedersenKey
	PedersenAux PedersenKeyGrumpkin
	ppHash      [32]byte
}

// ProverParams and VerifierParams share one immutable core derived by
// Preprocess. They are read-only after creation and may be shared by
// reference across concurrent sessions.
type ProverParams struct {
	*paramsCore
}

type VerifierParams struct {
	*paramsCore
}

// PPHash binds every public parameter; it seeds all transcripts so proofs
// cannot be replayed across parameter sets.
func (p *paramsCore) PPHash() [32]byte {
	return p.ppHash
}

func (p *paramsCore) PPHashFr() fr.Element {
	var e fr.Element
	e.SetBytes(p.ppHash[:])
	return e
}

func (p *paramsCore) computeHash() {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeInt(int(PARAMS_VERSION))
	h.Write([]byte(p.HashCfg.Seed))
	writeInt(p.HashCfg.FullRounds)
	writeInt(p.HashCfg.PartialRounds)
	writeInt(p.StateLen)
	writeInt(p.InputLen)
	sd := p.StepShape.Digest()
	h.Write(sd[:])
	writeInt(p.AuxShape.NbWit)
	writeInt(p.AuxShape.NbPub)
	writeInt(p.AuxShape.NbRows())
	for i := range p.Pedersen.G {
		b := p.Pedersen.G[i].Bytes()
		h.Write(b[:])
	}
	for i := range p.PedersenAux.G {
		b := p.PedersenAux.G[i].Bytes()
		h.Write(b[:])
	}
	h.Sum(p.ppHash[:0])
}

// Preprocess derives the commitment setup for both curves and the parameter
// binding hash. The relation is synthesized once against zero inputs to check
// that its declared arity matches its constraint generation; the auxiliary
// circuit is synthesized once against a known point identity to fix its
// shape. Deterministic: no randomness enters parameter generation.
func Preprocess(rel StepRelation, cfg HashConfig) (*ProverParams, *VerifierParams, error) {
	if rel.StateLen() <= 0 || rel.InputLen() <= 0 {
		return nil, nil, fmt.Errorf("%w: relation arity must be positive", ErrSetup)
	}
	cp := newCircuitPoseidon(cfg)
	zeroState := make([]fr.Element, rel.StateLen())
	zeroInput := make([]fr.Element, rel.InputLen())
	shape, w, x, _, err := synthesizeStep(rel, cp, zeroState, zeroInput, stepLink{Idx: 1})
	if err != nil {
		return nil, nil, err
	}
	if err := shape.IsSatStrict(w, x); err != nil {
		return nil, nil, fmt.Errorf("%w: relation synthesis is self-inconsistent: %v", ErrSetup, err)
	}

	// Fix the aux shape with a trivially correct operation: G + 1·G = 2G.
	_, _, g, _ := bn254.Generators()
	var one fr.Element
	one.SetOne()
	seedOp := pointFold{P1: g, P2: g, Out: FoldPoints(g, g, one), R: one}
	auxShape, aw, ax, err := synthesizeAuxOp(seedOp)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: aux synthesis: %v", ErrSetup, err)
	}
	if err := auxShape.IsSatStrict(aw, ax); err != nil {
		return nil, nil, fmt.Errorf("%w: aux circuit self-check: %v", ErrSetup, err)
	}

	n := shape.NbWit
	if shape.NbRows() > n {
		n = shape.NbRows()
	}
	an := auxShape.NbWit
	if auxShape.NbRows() > an {
		an = auxShape.NbRows()
	}
	core := &paramsCore{
		HashCfg:     cfg,
		H:           NewHasher(cfg),
		cp:          cp,
		StepShape:   shape,
		AuxShape:    auxShape,
		StateLen:    rel.StateLen(),
		InputLen:    rel.InputLen(),
		Pedersen:    NewPedersenKey(n, []byte(PEDERSEN_SEED)),
		PedersenAux: NewPedersenKeyGrumpkin(an, []byte(PEDERSEN_SEED)),
	}
	core.computeHash()
	return &ProverParams{core}, &VerifierParams{core}, nil
}

// WriteTo serializes a compact descriptor of the verifier parameters. Shapes
// and generators are deterministic given the descriptor, so ReadVerifierParams
// rebuilds them by re-running Preprocess and cross-checks the binding hash.
func (vp *VerifierParams) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	write := func(v any) {
		binary.Write(&buf, binary.BigEndian, v)
	}
	write(PARAMS_VERSION)
	write(uint32(len(vp.HashCfg.Seed)))
	buf.WriteString(vp.HashCfg.Seed)
	write(uint32(vp.HashCfg.FullRounds))
	write(uint32(vp.HashCfg.PartialRounds))
	write(uint32(vp.StateLen))
	write(uint32(vp.InputLen))
	buf.Write(vp.ppHash[:])
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadVerifierParams reconstructs verifier parameters for the given relation
// from a descriptor and rejects it if the embedded binding hash disagrees
// with the freshly derived one.
func ReadVerifierParams(r io.Reader, rel StepRelation) (*VerifierParams, error) {
	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofEncoding, err)
	}
	if version != PARAMS_VERSION {
		return nil, fmt.Errorf("%w: params version %d, want %d", ErrProofEncoding, version, PARAMS_VERSION)
	}
	var seedLen uint32
	if err := binary.Read(r, binary.BigEndian, &seedLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofEncoding, err)
	}
	if seedLen > HASH_SEED_MAX {
		return nil, fmt.Errorf("%w: hash seed length %d exceeds %d", ErrProofEncoding, seedLen, HASH_SEED_MAX)
	}
	seed := make([]byte, seedLen)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofEncoding, err)
	}
	var rf, rp, stateLen, inputLen uint32
	for _, v := range []*uint32{&rf, &rp, &stateLen, &inputLen} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProofEncoding, err)
		}
	}
	var embedded [32]byte
	if _, err := io.ReadFull(r, embedded[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofEncoding, err)
	}
	if int(stateLen) != rel.StateLen() || int(inputLen) != rel.InputLen() {
		return nil, fmt.Errorf("%w: descriptor arity %d/%d, relation %d/%d", ErrProofEncoding, stateLen, inputLen, rel.StateLen(), rel.InputLen())
	}
	_, vp, err := Preprocess(rel, HashConfig{Seed: string(seed), FullRounds: int(rf), PartialRounds: int(rp)})
	if err != nil {
		return nil, err
	}
	if vp.ppHash != embedded {
		return nil, fmt.Errorf("%w: parameter hash mismatch", ErrProofEncoding)
	}
	return vp, nil
}
