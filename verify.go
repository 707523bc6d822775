package foldgrad

import (
	"fmt"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/grumpkin"
	grumpkinfr "github.com/consensys/gnark-crypto/ecc/grumpkin/fr"
)

// Verify checks an IVC proof against verifier parameters. Cost is independent
// of the number of folded steps: one strict check on the latest step, one
// relaxed check per running accumulator, commitment openings for each, and a
// replay of the transcript challenges of the final fold.
//
// The chain slots in the latest step's public column tie the pieces together:
// its running-digest slot must equal the digest of the accumulator presented
// in the proof, its index slot must equal the step counter, and its chain tag
// is recomputed from the slots the circuit hashed. The final fold is then
// re-derived from the recorded pre-fold instances under Fiat-Shamir, so the
// accumulator the strict step points at is the one the transcript produced,
// not a fabrication.
//
// Rejections of well-formed but wrong proofs return ErrInvalidProof; a
// failure of the commitment machinery itself returns ErrInternal.
func Verify(vp *VerifierParams, p *IVCProof) error {
	if vp == nil || p == nil {
		return fmt.Errorf("%w: nil argument", ErrInternal)
	}
	if p.PPHash != vp.PPHash() {
		return fmt.Errorf("%w: parameter hash mismatch", ErrInvalidProof)
	}
	if p.I == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidProof)
	}
	if len(p.Z0) != vp.StateLen || len(p.Zi) != vp.StateLen {
		return fmt.Errorf("%w: state length %d/%d, want %d", ErrInvalidProof, len(p.Z0), len(p.Zi), vp.StateLen)
	}
	if d := p.bindingDigest(vp.H); !d.Equal(&p.Digest) {
		return fmt.Errorf("%w: binding digest mismatch", ErrInvalidProof)
	}

	shape := vp.StepShape
	if err := checkStrict(vp, shape, p.Incoming, p.IncomingWit); err != nil {
		return err
	}
	if err := checkChainSlots(vp, p); err != nil {
		return err
	}
	if err := checkRelaxed(vp, shape, p.Running, p.RunningWit); err != nil {
		return err
	}
	if err := checkAuxRelaxed(vp, p.AuxRunning, p.AuxRunningWit); err != nil {
		return err
	}
	if p.I == 1 {
		return checkBaseCase(vp, p)
	}
	return replayLastFold(vp, p)
}

// chain-slot accessors; layout from the end of the public column is
// [ ... | z_next | idx | tagPrev | dRun | tag ].
func slotIdx(x []fr.Element) fr.Element     { return x[len(x)-4] }
func slotTagPrev(x []fr.Element) fr.Element { return x[len(x)-3] }
func slotDRun(x []fr.Element) fr.Element    { return x[len(x)-2] }
func slotTag(x []fr.Element) fr.Element     { return x[len(x)-1] }
func slotZNext(x []fr.Element, l int) []fr.Element {
	return x[len(x)-CHAIN_SLOTS-l : len(x)-CHAIN_SLOTS]
}
func slotZPrev(x []fr.Element, l int) []fr.Element { return x[:l] }

// checkChainSlots pins the latest step to this proof: its z_next section must
// be the claimed state, its index slot the step counter, its running-digest
// slot the digest of the presented accumulator, and its tag slot the chain
// tag over those values.
func checkChainSlots(vp *VerifierParams, p *IVCProof) error {
	x := p.Incoming.X
	l := vp.StateLen
	zNext := slotZNext(x, l)
	for i := range p.Zi {
		if !zNext[i].Equal(&p.Zi[i]) {
			return fmt.Errorf("%w: claimed state diverges at %d", ErrInvalidProof, i)
		}
	}
	var iEl fr.Element
	iEl.SetUint64(p.I)
	if got := slotIdx(x); !got.Equal(&iEl) {
		return fmt.Errorf("%w: step index slot disagrees with step counter", ErrInvalidProof)
	}
	dRun := p.Running.Digest(vp.H)
	if got := slotDRun(x); !got.Equal(&dRun) {
		return fmt.Errorf("%w: running-digest slot disagrees with accumulator", ErrInvalidProof)
	}
	want := chainTag(vp.H,
		stepLink{Idx: p.I, TagPrev: slotTagPrev(x), DRun: slotDRun(x)},
		slotZPrev(x, l), zNext)
	if got := slotTag(x); !got.Equal(&want) {
		return fmt.Errorf("%w: chain tag slot mismatch", ErrInvalidProof)
	}
	return nil
}

// checkBaseCase handles I = 1: nothing has been folded yet, so both running
// pairs must be the exact folding identity, the transcript must be in its
// seeded state, and the single strict step must link back to the anchor tag
// of z_0.
func checkBaseCase(vp *VerifierParams, p *IVCProof) error {
	if p.Prev != nil {
		return fmt.Errorf("%w: single-step proof carries a fold trace", ErrInvalidProof)
	}
	if !isZeroPair(p.Running, p.RunningWit) || !isZeroAuxPair(p.AuxRunning, p.AuxRunningWit) {
		return fmt.Errorf("%w: running accumulator of a single-step proof is not the identity", ErrInvalidProof)
	}
	var zero fr.Element
	seeded := vp.H.Compress(zero, vp.PPHashFr())
	if !p.TrState.Equal(&seeded) {
		return fmt.Errorf("%w: transcript state of a single-step proof", ErrInvalidProof)
	}
	x := p.Incoming.X
	anchor := baseTag(vp.H, vp.PPHashFr(), p.Z0)
	if got := slotTagPrev(x); !got.Equal(&anchor) {
		return fmt.Errorf("%w: first step does not link to z0", ErrInvalidProof)
	}
	zPrev := slotZPrev(x, vp.StateLen)
	for i := range p.Z0 {
		if !zPrev[i].Equal(&p.Z0[i]) {
			return fmt.Errorf("%w: first step does not start at z0", ErrInvalidProof)
		}
	}
	return nil
}

// replayLastFold re-derives the challenges of the fold that produced the
// presented running pairs. The trace supplies the pre-fold instances and
// cross terms; the challenges come back out of the transcript, so Running
// and AuxRunning are exactly the combinations Fiat-Shamir dictated. The
// folded-in step is itself checked strictly and must be the predecessor of
// the latest one in the tag chain.
func replayLastFold(vp *VerifierParams, p *IVCProof) error {
	t := p.Prev
	if t == nil {
		return fmt.Errorf("%w: multi-step proof missing fold trace", ErrInvalidProof)
	}
	h := vp.H
	shape := vp.StepShape

	if err := checkStrict(vp, shape, t.PrevIncoming, t.PrevIncomingWit); err != nil {
		return err
	}
	px := t.PrevIncoming.X
	x := p.Incoming.X
	l := vp.StateLen
	var prevIdx fr.Element
	prevIdx.SetUint64(p.I - 1)
	if got := slotIdx(px); !got.Equal(&prevIdx) {
		return fmt.Errorf("%w: folded step index slot", ErrInvalidProof)
	}
	prevNext := slotZNext(px, l)
	curPrev := slotZPrev(x, l)
	for i := range prevNext {
		if !prevNext[i].Equal(&curPrev[i]) {
			return fmt.Errorf("%w: state chain broken between last two steps", ErrInvalidProof)
		}
	}
	if got, want := slotTag(px), slotTagPrev(x); !got.Equal(&want) {
		return fmt.Errorf("%w: tag chain broken between last two steps", ErrInvalidProof)
	}
	prevDRun := t.PrevRunning.Digest(h)
	if got := slotDRun(px); !got.Equal(&prevDRun) {
		return fmt.Errorf("%w: folded step points at a different accumulator", ErrInvalidProof)
	}
	if p.I == 2 {
		anchor := baseTag(h, vp.PPHashFr(), p.Z0)
		if got := slotTagPrev(px); !got.Equal(&anchor) {
			return fmt.Errorf("%w: second step does not link to z0", ErrInvalidProof)
		}
		zPrev := slotZPrev(px, l)
		for i := range p.Z0 {
			if !zPrev[i].Equal(&p.Z0[i]) {
				return fmt.Errorf("%w: folded step does not start at z0", ErrInvalidProof)
			}
		}
		// The very first fold starts from the identity and the seeded
		// transcript.
		if !isZeroInstance(t.PrevRunning) || !isZeroAuxInstance(t.AuxPrevRunning) {
			return fmt.Errorf("%w: first fold does not start from the identity", ErrInvalidProof)
		}
		var zero fr.Element
		seeded := h.Compress(zero, vp.PPHashFr())
		if !t.TrBefore.Equal(&seeded) {
			return fmt.Errorf("%w: first fold does not start from the seeded transcript", ErrInvalidProof)
		}
	}

	// Each fold draws one primary and two auxiliary challenges; the first
	// step draws none.
	tr := resumeTranscript(h, t.TrBefore, 3*(p.I-2))
	tr.AbsorbInstance(&t.PrevRunning)
	tr.AbsorbInstance(&t.PrevIncoming)
	tr.AbsorbPoint(t.CmT)
	r := tr.Challenge()

	folded := foldInstanceWith(t.PrevRunning, t.PrevIncoming, t.CmT, r)
	if !instanceEqual(&folded, &p.Running) {
		return fmt.Errorf("%w: running accumulator is not the transcript fold", ErrInvalidProof)
	}

	ops := [2]pointFold{
		{P1: t.PrevRunning.CmW, P2: t.PrevIncoming.CmW, Out: folded.CmW, R: r},
		{P1: t.PrevRunning.CmE, P2: t.CmT, Out: folded.CmE, R: r},
	}
	auxRun := t.AuxPrevRunning
	for k, op := range ops {
		s := &t.AuxSteps[k]
		if err := checkAuxStrict(vp, s.Incoming, s.IncomingWit); err != nil {
			return err
		}
		wantX := auxOpX(op)
		if len(s.Incoming.X) != len(wantX) {
			return fmt.Errorf("%w: auxiliary public width", ErrInvalidProof)
		}
		for i := range wantX {
			if !s.Incoming.X[i].Equal(&wantX[i]) {
				return fmt.Errorf("%w: auxiliary step attests a different combination", ErrInvalidProof)
			}
		}
		tr.AbsorbAuxInstance(&auxRun)
		tr.AbsorbAuxInstance(&s.Incoming)
		tr.AbsorbPointGrumpkin(s.CmT)
		ra := tr.ChallengeGrumpkin()
		auxRun = foldAuxInstanceWith(auxRun, s.Incoming, s.CmT, ra)
	}
	if !auxInstanceEqual(&auxRun, &p.AuxRunning) {
		return fmt.Errorf("%w: auxiliary accumulator is not the transcript fold", ErrInvalidProof)
	}
	if st := tr.State(); !st.Equal(&p.TrState) {
		return fmt.Errorf("%w: transcript state mismatch after fold replay", ErrInvalidProof)
	}
	return nil
}

// foldInstanceWith recombines the public halves of a fold under a known
// challenge, mirroring foldStep without touching witnesses.
func foldInstanceWith(running, incoming Instance, cmT bn254.G1Affine, r fr.Element) Instance {
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
	return folded
}

func foldAuxInstanceWith(running, incoming AuxInstance, cmT grumpkin.G1Affine, r grumpkinfr.Element) AuxInstance {
	folded := AuxInstance{
		CmW: FoldPointsGrumpkin(running.CmW, incoming.CmW, r),
		CmE: FoldPointsGrumpkin(running.CmE, cmT, r),
		X:   make([]grumpkinfr.Element, len(running.X)),
	}
	var tmp grumpkinfr.Element
	folded.U.Mul(&r, &incoming.U)
	folded.U.Add(&folded.U, &running.U)
	for i := range folded.X {
		tmp.Mul(&r, &incoming.X[i])
		folded.X[i].Add(&running.X[i], &tmp)
	}
	return folded
}

func instanceEqual(a, b *Instance) bool {
	if !a.CmW.Equal(&b.CmW) || !a.CmE.Equal(&b.CmE) || !a.U.Equal(&b.U) || len(a.X) != len(b.X) {
		return false
	}
	for i := range a.X {
		if !a.X[i].Equal(&b.X[i]) {
			return false
		}
	}
	return true
}

func auxInstanceEqual(a, b *AuxInstance) bool {
	if !a.CmW.Equal(&b.CmW) || !a.CmE.Equal(&b.CmE) || !a.U.Equal(&b.U) || len(a.X) != len(b.X) {
		return false
	}
	for i := range a.X {
		if !a.X[i].Equal(&b.X[i]) {
			return false
		}
	}
	return true
}

func isZeroInstance(u Instance) bool {
	if !u.CmW.IsInfinity() || !u.CmE.IsInfinity() || !u.U.IsZero() {
		return false
	}
	for i := range u.X {
		if !u.X[i].IsZero() {
			return false
		}
	}
	return true
}

func isZeroAuxInstance(u AuxInstance) bool {
	if !u.CmW.IsInfinity() || !u.CmE.IsInfinity() || !u.U.IsZero() {
		return false
	}
	for i := range u.X {
		if !u.X[i].IsZero() {
			return false
		}
	}
	return true
}

func isZeroPair(u Instance, w Witness) bool {
	if !isZeroInstance(u) {
		return false
	}
	for i := range w.W {
		if !w.W[i].IsZero() {
			return false
		}
	}
	for i := range w.E {
		if !w.E[i].IsZero() {
			return false
		}
	}
	return true
}

func isZeroAuxPair(u AuxInstance, w AuxWitness) bool {
	if !isZeroAuxInstance(u) {
		return false
	}
	for i := range w.W {
		if !w.W[i].IsZero() {
			return false
		}
	}
	for i := range w.E {
		if !w.E[i].IsZero() {
			return false
		}
	}
	return true
}

func checkStrict(vp *VerifierParams, shape *Shape, u Instance, w Witness) error {
	var one fr.Element
	one.SetOne()
	if !u.U.Equal(&one) {
		return fmt.Errorf("%w: incoming instance not strict", ErrInvalidProof)
	}
	if !u.CmE.IsInfinity() {
		return fmt.Errorf("%w: incoming error commitment not identity", ErrInvalidProof)
	}
	if len(u.X) != shape.NbPub || len(w.W) != shape.NbWit {
		return fmt.Errorf("%w: incoming dimensions %d/%d", ErrInvalidProof, len(u.X), len(w.W))
	}
	cm, err := vp.Pedersen.Commit(w.W)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !cm.Equal(&u.CmW) {
		return fmt.Errorf("%w: incoming witness commitment does not open", ErrInvalidProof)
	}
	if err := shape.IsSatStrict(w.W, u.X); err != nil {
		return fmt.Errorf("%w: incoming step: %v", ErrInvalidProof, err)
	}
	return nil
}

func checkAuxStrict(vp *VerifierParams, u AuxInstance, w AuxWitness) error {
	shape := vp.AuxShape
	var one grumpkinfr.Element
	one.SetOne()
	if !u.U.Equal(&one) {
		return fmt.Errorf("%w: auxiliary instance not strict", ErrInvalidProof)
	}
	if !u.CmE.IsInfinity() {
		return fmt.Errorf("%w: auxiliary error commitment not identity", ErrInvalidProof)
	}
	if len(u.X) != shape.NbPub || len(w.W) != shape.NbWit {
		return fmt.Errorf("%w: auxiliary dimensions %d/%d", ErrInvalidProof, len(u.X), len(w.W))
	}
	cm, err := vp.PedersenAux.Commit(w.W)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !cm.Equal(&u.CmW) {
		return fmt.Errorf("%w: auxiliary witness commitment does not open", ErrInvalidProof)
	}
	if err := shape.IsSatStrict(w.W, u.X); err != nil {
		return fmt.Errorf("%w: auxiliary step: %v", ErrInvalidProof, err)
	}
	return nil
}

func checkRelaxed(vp *VerifierParams, shape *Shape, u Instance, w Witness) error {
	if len(u.X) != shape.NbPub || len(w.W) != shape.NbWit || len(w.E) != shape.NbRows() {
		return fmt.Errorf("%w: running dimensions", ErrInvalidProof)
	}
	if err := openPair(&vp.Pedersen, w.W, w.E, &u.CmW, &u.CmE); err != nil {
		return err
	}
	if err := shape.IsSatRelaxed(w.W, w.E, u.X, u.U); err != nil {
		return fmt.Errorf("%w: running accumulator: %v", ErrInvalidProof, err)
	}
	return nil
}

func openPair(k *PedersenKey, w, e []fr.Element, cmW, cmE *bn254.G1Affine) error {
	cw, err := k.Commit(w)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !cw.Equal(cmW) {
		return fmt.Errorf("%w: running witness commitment does not open", ErrInvalidProof)
	}
	ce, err := k.Commit(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ce.Equal(cmE) {
		return fmt.Errorf("%w: running error commitment does not open", ErrInvalidProof)
	}
	return nil
}

func checkAuxRelaxed(vp *VerifierParams, u AuxInstance, w AuxWitness) error {
	shape := vp.AuxShape
	if len(u.X) != shape.NbPub || len(w.W) != shape.NbWit || len(w.E) != shape.NbRows() {
		return fmt.Errorf("%w: auxiliary dimensions", ErrInvalidProof)
	}
	if err := openAuxPair(&vp.PedersenAux, w.W, w.E, &u.CmW, &u.CmE); err != nil {
		return err
	}
	if err := shape.IsSatRelaxed(w.W, w.E, u.X, u.U); err != nil {
		return fmt.Errorf("%w: auxiliary accumulator: %v", ErrInvalidProof, err)
	}
	return nil
}

func openAuxPair(k *PedersenKeyGrumpkin, w, e []grumpkinfr.Element, cmW, cmE *grumpkin.G1Affine) error {
	cw, err := k.Commit(w)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !cw.Equal(cmW) {
		return fmt.Errorf("%w: auxiliary witness commitment does not open", ErrInvalidProof)
	}
	ce, err := k.Commit(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ce.Equal(cmE) {
		return fmt.Errorf("%w: auxiliary error commitment does not open", ErrInvalidProof)
	}
	return nil
}
