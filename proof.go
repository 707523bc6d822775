package foldgrad

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/grumpkin"
	grumpkinfr "github.com/consensys/gnark-crypto/ecc/grumpkin/fr"
)

// IVCProof is an immutable snapshot of an accumulator session: the full
// folded chain compressed into one relaxed running pair per curve plus the
// latest strict step. Witness vectors ride along so the verifier can open
// the Pedersen commitments; per-step private inputs never appear.
type IVCProof struct {
	I  uint64
	Z0 []fr.Element
	Zi []fr.Element

	Running     Instance
	RunningWit  Witness
	Incoming    Instance
	IncomingWit Witness

	AuxRunning    AuxInstance
	AuxRunningWit AuxWitness

	// Prev records the fold that produced Running, so the verifier can
	// replay its transcript challenges. Present exactly when I > 1.
	Prev *FoldTrace

	PPHash  [32]byte
	TrState fr.Element
	Digest  fr.Element
}

// FoldTrace is the public record of the last primary fold and its two
// auxiliary folds: the instances that went in, the cross terms, and the
// transcript state just before. Enough to re-derive every challenge the
// prover drew for it, nothing more.
type FoldTrace struct {
	TrBefore        fr.Element
	PrevRunning     Instance
	PrevIncoming    Instance
	PrevIncomingWit Witness
	CmT             bn254.G1Affine
	AuxPrevRunning  AuxInstance
	AuxSteps        [2]AuxStep
}

// AuxStep is one auxiliary fold inside a FoldTrace.
type AuxStep struct {
	Incoming    AuxInstance
	IncomingWit AuxWitness
	CmT         grumpkin.G1Affine
}

func cloneFoldTrace(t *FoldTrace) *FoldTrace {
	if t == nil {
		return nil
	}
	c := &FoldTrace{
		TrBefore:        t.TrBefore,
		PrevRunning:     cloneInstance(t.PrevRunning),
		PrevIncoming:    cloneInstance(t.PrevIncoming),
		PrevIncomingWit: cloneWitness(t.PrevIncomingWit),
		CmT:             t.CmT,
		AuxPrevRunning:  cloneAuxInstance(t.AuxPrevRunning),
	}
	for k := range t.AuxSteps {
		c.AuxSteps[k] = AuxStep{
			Incoming:    cloneAuxInstance(t.AuxSteps[k].Incoming),
			IncomingWit: cloneAuxWitness(t.AuxSteps[k].IncomingWit),
			CmT:         t.AuxSteps[k].CmT,
		}
	}
	return c
}

func cloneInstance(u Instance) Instance {
	u.X = append([]fr.Element(nil), u.X...)
	return u
}

func cloneWitness(w Witness) Witness {
	return Witness{
		W: append([]fr.Element(nil), w.W...),
		E: append([]fr.Element(nil), w.E...),
	}
}

func cloneAuxInstance(u AuxInstance) AuxInstance {
	u.X = append([]grumpkinfr.Element(nil), u.X...)
	return u
}

func cloneAuxWitness(w AuxWitness) AuxWitness {
	return AuxWitness{
		W: append([]grumpkinfr.Element(nil), w.W...),
		E: append([]grumpkinfr.Element(nil), w.E...),
	}
}

// bindingDigest chains every public component of the snapshot, including the
// transcript state, so two proofs over reordered inputs never share bytes
// even when the final state agrees.
func (p *IVCProof) bindingDigest(h Hasher) fr.Element {
	var pp, iEl fr.Element
	pp.SetBytes(p.PPHash[:])
	iEl.SetUint64(p.I)
	vals := make([]fr.Element, 0, len(p.Z0)+len(p.Zi)+6)
	vals = append(vals, pp, iEl)
	vals = append(vals, p.Z0...)
	vals = append(vals, p.Zi...)
	vals = append(vals, p.Running.Digest(h), p.Incoming.Digest(h), p.AuxRunning.Digest(h), p.TrState)
	return h.Sum(vals...)
}

// WriteTo serializes the proof: a fixed header (magic, version, step counter,
// parameter hash) followed by the BN254 section and the Grumpkin section,
// each through the curve's own encoder. Slices are length-prefixed by the
// encoders, so the format is self-describing.
func (p *IVCProof) WriteTo(w io.Writer) (int64, error) {
	var n int64
	if p.I > 1 && p.Prev == nil {
		return n, fmt.Errorf("%w: multi-step proof missing fold trace", ErrInternal)
	}
	var hdr bytes.Buffer
	binary.Write(&hdr, binary.BigEndian, PROOF_MAGIC)
	binary.Write(&hdr, binary.BigEndian, PROOF_VERSION)
	binary.Write(&hdr, binary.BigEndian, p.I)
	hdr.Write(p.PPHash[:])
	hn, err := w.Write(hdr.Bytes())
	n += int64(hn)
	if err != nil {
		return n, err
	}

	enc := bn254.NewEncoder(w)
	vals := []any{
		p.Z0, p.Zi,
		&p.Running.CmW, &p.Running.CmE, &p.Running.U, p.Running.X,
		p.RunningWit.W, p.RunningWit.E,
		&p.Incoming.CmW, &p.Incoming.CmE, &p.Incoming.U, p.Incoming.X,
		p.IncomingWit.W,
		&p.TrState, &p.Digest,
	}
	if p.Prev != nil {
		vals = append(vals,
			&p.Prev.TrBefore,
			&p.Prev.PrevRunning.CmW, &p.Prev.PrevRunning.CmE, &p.Prev.PrevRunning.U, p.Prev.PrevRunning.X,
			&p.Prev.PrevIncoming.CmW, &p.Prev.PrevIncoming.CmE, &p.Prev.PrevIncoming.U, p.Prev.PrevIncoming.X,
			p.Prev.PrevIncomingWit.W,
			&p.Prev.CmT,
		)
	}
	for _, v := range vals {
		if err := enc.Encode(v); err != nil {
			return n + enc.BytesWritten(), err
		}
	}
	n += enc.BytesWritten()

	genc := grumpkin.NewEncoder(w)
	gvals := []any{
		&p.AuxRunning.CmW, &p.AuxRunning.CmE, &p.AuxRunning.U, p.AuxRunning.X,
		p.AuxRunningWit.W, p.AuxRunningWit.E,
	}
	if p.Prev != nil {
		gvals = append(gvals,
			&p.Prev.AuxPrevRunning.CmW, &p.Prev.AuxPrevRunning.CmE, &p.Prev.AuxPrevRunning.U, p.Prev.AuxPrevRunning.X)
		for k := range p.Prev.AuxSteps {
			s := &p.Prev.AuxSteps[k]
			gvals = append(gvals,
				&s.Incoming.CmW, &s.Incoming.CmE, &s.Incoming.U, s.Incoming.X,
				s.IncomingWit.W,
				&s.CmT)
		}
	}
	for _, v := range gvals {
		if err := genc.Encode(v); err != nil {
			return n + genc.BytesWritten(), err
		}
	}
	n += genc.BytesWritten()
	return n, nil
}

// ReadFrom deserializes a proof, rejecting bad magic or a version mismatch
// before any cryptographic material is read.
func (p *IVCProof) ReadFrom(r io.Reader) (int64, error) {
	var n int64
	var magic, version uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return n, fmt.Errorf("%w: %v", ErrProofEncoding, err)
	}
	n += 4
	if magic != PROOF_MAGIC {
		return n, fmt.Errorf("%w: bad magic 0x%08x", ErrProofEncoding, magic)
	}
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return n, fmt.Errorf("%w: %v", ErrProofEncoding, err)
	}
	n += 4
	if version != PROOF_VERSION {
		return n, fmt.Errorf("%w: proof version %d, want %d", ErrProofEncoding, version, PROOF_VERSION)
	}
	if err := binary.Read(r, binary.BigEndian, &p.I); err != nil {
		return n, fmt.Errorf("%w: %v", ErrProofEncoding, err)
	}
	n += 8
	if _, err := io.ReadFull(r, p.PPHash[:]); err != nil {
		return n, fmt.Errorf("%w: %v", ErrProofEncoding, err)
	}
	n += 32

	if p.I > 1 {
		p.Prev = new(FoldTrace)
	} else {
		p.Prev = nil
	}

	dec := bn254.NewDecoder(r)
	vals := []any{
		&p.Z0, &p.Zi,
		&p.Running.CmW, &p.Running.CmE, &p.Running.U, &p.Running.X,
		&p.RunningWit.W, &p.RunningWit.E,
		&p.Incoming.CmW, &p.Incoming.CmE, &p.Incoming.U, &p.Incoming.X,
		&p.IncomingWit.W,
		&p.TrState, &p.Digest,
	}
	if p.Prev != nil {
		vals = append(vals,
			&p.Prev.TrBefore,
			&p.Prev.PrevRunning.CmW, &p.Prev.PrevRunning.CmE, &p.Prev.PrevRunning.U, &p.Prev.PrevRunning.X,
			&p.Prev.PrevIncoming.CmW, &p.Prev.PrevIncoming.CmE, &p.Prev.PrevIncoming.U, &p.Prev.PrevIncoming.X,
			&p.Prev.PrevIncomingWit.W,
			&p.Prev.CmT,
		)
	}
	for _, v := range vals {
		if err := dec.Decode(v); err != nil {
			return n + dec.BytesRead(), fmt.Errorf("%w: %v", ErrProofEncoding, err)
		}
	}
	n += dec.BytesRead()

	gdec := grumpkin.NewDecoder(r)
	gvals := []any{
		&p.AuxRunning.CmW, &p.AuxRunning.CmE, &p.AuxRunning.U, &p.AuxRunning.X,
		&p.AuxRunningWit.W, &p.AuxRunningWit.E,
	}
	if p.Prev != nil {
		gvals = append(gvals,
			&p.Prev.AuxPrevRunning.CmW, &p.Prev.AuxPrevRunning.CmE, &p.Prev.AuxPrevRunning.U, &p.Prev.AuxPrevRunning.X)
		for k := range p.Prev.AuxSteps {
			s := &p.Prev.AuxSteps[k]
			gvals = append(gvals,
				&s.Incoming.CmW, &s.Incoming.CmE, &s.Incoming.U, &s.Incoming.X,
				&s.IncomingWit.W,
				&s.CmT)
		}
	}
	for _, v := range gvals {
		if err := gdec.Decode(v); err != nil {
			return n + gdec.BytesRead(), fmt.Errorf("%w: %v", ErrProofEncoding, err)
		}
	}
	n += gdec.BytesRead()
	return n, nil
}

// Bytes serializes the proof into a fresh buffer.
func (p *IVCProof) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseProof deserializes proof bytes, rejecting trailing garbage.
func ParseProof(b []byte) (*IVCProof, error) {
	var p IVCProof
	r := bytes.NewReader(b)
	if _, err := p.ReadFrom(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrProofEncoding, r.Len())
	}
	return &p, nil
}
