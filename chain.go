package foldgrad

import (
	"log"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// Every strict step carries a chain tag in its public column, computed inside
// the step circuit itself: tag = Sum(tagPrev, idx, dRun, z_i..., z_{i+1}...).
// tagPrev links the step to its predecessor, idx pins the step counter and
// dRun pins the digest of the running accumulator the step extends. The
// verifier recomputes dRun from the accumulator it actually checks, so a
// strict instance cannot claim a chain it was never part of: forging one
// would need a Poseidon2 preimage.
//
// Public column layout of a synthesized step, from the end:
// [ ... | z_{i+1} | idx | tagPrev | dRun | tag ].
const CHAIN_SLOTS = 4

// stepLink carries the chain-binding values for one step.
type stepLink struct {
	Idx     uint64
	TagPrev fr.Element
	DRun    fr.Element
}

// chainTag is the native mirror of the in-circuit tag computation.
func chainTag(h Hasher, link stepLink, zPrev, zNext []fr.Element) fr.Element {
	var idx fr.Element
	idx.SetUint64(link.Idx)
	vals := make([]fr.Element, 0, len(zPrev)+len(zNext)+3)
	vals = append(vals, link.TagPrev, idx, link.DRun)
	vals = append(vals, zPrev...)
	vals = append(vals, zNext...)
	return h.Sum(vals...)
}

// baseTag anchors the chain: the tag a first step must link back to.
func baseTag(h Hasher, ppHash fr.Element, z0 []fr.Element) fr.Element {
	vals := make([]fr.Element, 0, len(z0)+1)
	vals = append(vals, ppHash)
	vals = append(vals, z0...)
	return h.Sum(vals...)
}

// circuitPoseidon evaluates the Poseidon2 permutation on Builder combinations,
// matching the native Hasher round for round. Round keys come from the same
// gnark-crypto parameter derivation NewHasher uses.
type circuitPoseidon struct {
	roundKeys [][]fr.Element
	rf, rp    int
}

func newCircuitPoseidon(cfg HashConfig) circuitPoseidon {
	if poseidon2.DegreeSBox() != 5 {
		log.Fatalln("poseidon2: unexpected s-box degree", poseidon2.DegreeSBox())
	}
	p := poseidon2.NewParametersWithSeed(HASH_T, cfg.FullRounds, cfg.PartialRounds, cfg.Seed)
	return circuitPoseidon{roundKeys: p.RoundKeys, rf: cfg.FullRounds, rp: cfg.PartialRounds}
}

// sBox5 emits x^5 in three multiplication rows.
func (cp circuitPoseidon) sBox5(b *Builder, x LC) LC {
	x2 := b.V(b.Mul(x, x))
	x4 := b.V(b.Mul(x2, x2))
	return b.V(b.Mul(x4, x))
}

func (cp circuitPoseidon) addRoundKey(round int, s [2]LC) [2]LC {
	for i := range cp.roundKeys[round] {
		s[i] = s[i].Add(Constant(cp.roundKeys[round][i]))
	}
	return s
}

// matMulExternal applies the width-2 external MDS: s_i += s_0 + s_1.
func matMulExternal(s [2]LC) [2]LC {
	tmp := s[0].Add(s[1])
	return [2]LC{s[0].Add(tmp), s[1].Add(tmp)}
}

// matMulInternal applies the width-2 internal matrix: s_0 += sum, s_1 = 2·s_1 + sum.
func matMulInternal(s [2]LC) [2]LC {
	var two fr.Element
	two.SetUint64(2)
	sum := s[0].Add(s[1])
	return [2]LC{s[0].Add(sum), s[1].Scale(two).Add(sum)}
}

// permute mirrors the native permutation: pre-external MDS, then full,
// partial, full rounds. The second lane is reduced to a fresh variable each
// partial round to keep its combination from growing.
func (cp circuitPoseidon) permute(b *Builder, s [2]LC) [2]LC {
	s = matMulExternal(s)
	half := cp.rf / 2
	for r := 0; r < half; r++ {
		s = cp.addRoundKey(r, s)
		s[0] = cp.sBox5(b, s[0])
		s[1] = cp.sBox5(b, s[1])
		s = matMulExternal(s)
	}
	for r := half; r < half+cp.rp; r++ {
		s = cp.addRoundKey(r, s)
		s[0] = cp.sBox5(b, s[0])
		s = matMulInternal(s)
		s[1] = b.V(b.Reduce(s[1]))
	}
	for r := half + cp.rp; r < cp.rf+cp.rp; r++ {
		s = cp.addRoundKey(r, s)
		s[0] = cp.sBox5(b, s[0])
		s[1] = cp.sBox5(b, s[1])
		s = matMulExternal(s)
	}
	return s
}

// compress mirrors Hasher.Compress: perm([x,y])[1] + y.
func (cp circuitPoseidon) compress(b *Builder, x, y LC) LC {
	out := cp.permute(b, [2]LC{x, y})
	return out[1].Add(y)
}

// sum mirrors Hasher.Sum: fold from zero.
func (cp circuitPoseidon) sum(b *Builder, vals ...LC) LC {
	acc := LC{}
	for _, v := range vals {
		acc = cp.compress(b, acc, v)
	}
	return acc
}
