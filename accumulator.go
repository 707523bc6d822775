package foldgrad

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Accumulator is one proving session. It owns its state exclusively: steps
// are strictly sequential because each fold consumes the previous running
// pair. Independent sessions may run in parallel against the same shared
// read-only parameters.
type Accumulator struct {
	pp  *ProverParams
	rel StepRelation

	i  uint64
	z0 []fr.Element
	zi []fr.Element

	running     Instance
	runningWit  Witness
	incoming    Instance
	incomingWit Witness
	hasIncoming bool

	auxRunning    AuxInstance
	auxRunningWit AuxWitness

	// chain tag of the latest strict instance, seeded from the parameters
	// and z_0
	tag fr.Element

	// the fold performed at the start of the latest ProveStep, kept so the
	// proof can carry it for challenge replay
	lastFold *FoldTrace

	tr *Transcript
}

// Init starts a session at z_0 with the identity running pair.
func Init(pp *ProverParams, rel StepRelation, z0 []fr.Element) (*Accumulator, error) {
	if rel.StateLen() != pp.StateLen || rel.InputLen() != pp.InputLen {
		return nil, fmt.Errorf("%w: relation %d/%d, params built for %d/%d", ErrArityMismatch, rel.StateLen(), rel.InputLen(), pp.StateLen, pp.InputLen)
	}
	if len(z0) != rel.StateLen() {
		return nil, fmt.Errorf("%w: z0 length %d, relation wants %d", ErrArityMismatch, len(z0), rel.StateLen())
	}
	running, runningWit := ZeroRelaxedPair(pp.StepShape)
	auxRunning, auxRunningWit := ZeroAuxPair(pp.AuxShape)
	return &Accumulator{
		pp:            pp,
		rel:           rel,
		z0:            append([]fr.Element(nil), z0...),
		zi:            append([]fr.Element(nil), z0...),
		running:       running,
		runningWit:    runningWit,
		auxRunning:    auxRunning,
		auxRunningWit: auxRunningWit,
		tag:           baseTag(pp.H, pp.PPHashFr(), z0),
		tr:            NewTranscript(pp.H, pp.PPHashFr()),
	}, nil
}

// ProveStep folds the previous step into the running pair (attesting the
// commitment combinations on Grumpkin), synthesizes the new step and advances
// the public state. All work happens on locals; the accumulator mutates only
// once every check has passed, so a rejected input leaves the session exactly
// where it was. CPU-bound, no internal suspension points.
func (a *Accumulator) ProveStep(input []fr.Element) error {
	if len(input) != a.rel.InputLen() {
		return fmt.Errorf("%w: input length %d, relation wants %d", ErrArityMismatch, len(input), a.rel.InputLen())
	}

	tr := *a.tr
	running, runningWit := a.running, a.runningWit
	auxRunning, auxRunningWit := a.auxRunning, a.auxRunningWit
	var trace *FoldTrace

	if a.hasIncoming {
		trace = &FoldTrace{
			TrBefore:        tr.State(),
			PrevRunning:     cloneInstance(running),
			PrevIncoming:    cloneInstance(a.incoming),
			PrevIncomingWit: cloneWitness(a.incomingWit),
			AuxPrevRunning:  cloneAuxInstance(auxRunning),
		}
		folded, foldedWit, cmT, ops, err := foldStep(a.pp.StepShape, &a.pp.Pedersen, &tr,
			running, runningWit, a.incoming, a.incomingWit)
		if err != nil {
			return err
		}
		trace.CmT = cmT
		running, runningWit = folded, foldedWit
		for k, op := range ops {
			auxRunning, auxRunningWit, trace.AuxSteps[k], err = attestPointFold(a.pp, &tr, auxRunning, auxRunningWit, op)
			if err != nil {
				return err
			}
		}
	}

	link := stepLink{Idx: a.i + 1, TagPrev: a.tag, DRun: running.Digest(a.pp.H)}
	shape, w, x, zNext, err := synthesizeStep(a.rel, a.pp.cp, a.zi, input, link)
	if err != nil {
		return err
	}
	if shape.Digest() != a.pp.StepShape.Digest() {
		return fmt.Errorf("%w: relation changed constraint structure between steps", ErrConstraintUnsatisfied)
	}
	if err := shape.IsSatStrict(w, x); err != nil {
		return err
	}
	cmW, err := a.pp.Pedersen.Commit(w)
	if err != nil {
		return fmt.Errorf("%w: commit step witness: %v", ErrInternal, err)
	}

	*a.tr = tr
	a.running = running
	a.runningWit = runningWit
	a.auxRunning = auxRunning
	a.auxRunningWit = auxRunningWit
	a.lastFold = trace
	a.incoming = NewStrictInstance(cmW, x)
	a.incomingWit = Witness{W: w}
	a.hasIncoming = true
	a.tag = x[len(x)-1]
	a.i++
	a.zi = zNext
	return nil
}

// attestPointFold synthesizes one auxiliary instance for a commitment
// combination and folds it into the aux running pair.
func attestPointFold(pp *ProverParams, tr *Transcript,
	auxRunning AuxInstance, auxRunningWit AuxWitness, op pointFold) (AuxInstance, AuxWitness, AuxStep, error) {

	shape, w, x, err := synthesizeAuxOp(op)
	if err != nil {
		return AuxInstance{}, AuxWitness{}, AuxStep{}, fmt.Errorf("%w: aux synthesis: %v", ErrInternal, err)
	}
	if shape.NbWit != pp.AuxShape.NbWit || shape.NbPub != pp.AuxShape.NbPub || shape.NbRows() != pp.AuxShape.NbRows() {
		return AuxInstance{}, AuxWitness{}, AuxStep{}, fmt.Errorf("%w: aux shape drifted", ErrInternal)
	}
	if err := pp.AuxShape.IsSatStrict(w, x); err != nil {
		return AuxInstance{}, AuxWitness{}, AuxStep{}, err
	}
	cmW, err := pp.PedersenAux.Commit(w)
	if err != nil {
		return AuxInstance{}, AuxWitness{}, AuxStep{}, fmt.Errorf("%w: commit aux witness: %v", ErrInternal, err)
	}
	incoming := NewStrictAuxInstance(cmW, x)
	incomingWit := AuxWitness{W: w}
	folded, foldedWit, cmT, err := foldAuxStep(pp.AuxShape, &pp.PedersenAux, tr,
		auxRunning, auxRunningWit, incoming, incomingWit)
	if err != nil {
		return AuxInstance{}, AuxWitness{}, AuxStep{}, err
	}
	step := AuxStep{
		Incoming:    cloneAuxInstance(incoming),
		IncomingWit: cloneAuxWitness(incomingWit),
		CmT:         cmT,
	}
	return folded, foldedWit, step, nil
}

// State returns the current public state z_i.
func (a *Accumulator) State() []fr.Element {
	return append([]fr.Element(nil), a.zi...)
}

// NumSteps returns the step counter i.
func (a *Accumulator) NumSteps() uint64 {
	return a.i
}

// IVCProof snapshots the session into an immutable proof. Idempotent: two
// calls without an intervening ProveStep yield identical proofs.
func (a *Accumulator) IVCProof() (*IVCProof, error) {
	if a.i == 0 {
		return nil, fmt.Errorf("%w: no steps folded", ErrInternal)
	}
	p := &IVCProof{
		I:             a.i,
		Z0:            append([]fr.Element(nil), a.z0...),
		Zi:            append([]fr.Element(nil), a.zi...),
		Running:       cloneInstance(a.running),
		RunningWit:    cloneWitness(a.runningWit),
		Incoming:      cloneInstance(a.incoming),
		IncomingWit:   cloneWitness(a.incomingWit),
		AuxRunning:    cloneAuxInstance(a.auxRunning),
		AuxRunningWit: cloneAuxWitness(a.auxRunningWit),
		Prev:          cloneFoldTrace(a.lastFold),
		PPHash:        a.pp.PPHash(),
		TrState:       a.tr.State(),
	}
	p.Digest = p.bindingDigest(a.pp.H)
	return p, nil
}
