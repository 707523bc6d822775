package foldgrad

import (
	"log"
	"math/big"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
	"github.com/consensys/gnark-crypto/ecc/grumpkin"
	grumpkinfr "github.com/consensys/gnark-crypto/ecc/grumpkin/fr"
)

// HashConfig selects the Poseidon2 parameters bound into the public
// parameters. All sessions verifying each other's proofs must agree on it.
type HashConfig struct {
	Seed          string
	FullRounds    int
	PartialRounds int
}

func DefaultHashConfig() HashConfig {
	return HashConfig{Seed: HASH_SEED, FullRounds: HASH_RF, PartialRounds: HASH_RP}
}

// Hasher wraps a width-2 Poseidon2 permutation over the BN254 scalar field.
type Hasher struct {
	perm *poseidon2.Permutation
}

func NewHasher(cfg HashConfig) Hasher {
	return Hasher{perm: poseidon2.NewPermutationWithSeed(HASH_T, cfg.FullRounds, cfg.PartialRounds, cfg.Seed)}
}

// Compress runs the permutation on (x,y) and returns perm([x,y])[1] + y.
func (h Hasher) Compress(x, y fr.Element) fr.Element {
	vars := [2]fr.Element{x, y}
	if err := h.perm.Permutation(vars[:]); err != nil {
		log.Fatalln(err)
	}
	var ret fr.Element
	ret.Add(&vars[1], &y)
	return ret
}

// Sum folds a sequence using Compress(acc, v) starting from zero.
func (h Hasher) Sum(val ...fr.Element) fr.Element {
	var ret fr.Element
	for _, v := range val {
		ret = h.Compress(ret, v)
	}
	return ret
}

// DecomposeG1 splits a BN254 G1Affine into (xq,xm,yq,ym) such that
// X = xq * r + xm, Y = yq * r + ym, where r is the scalar field modulus.
// The output order is [[xq,xm],[yq,ym]].
func DecomposeG1(val bn254.G1Affine) [2][2]fr.Element {
	var ixq, ixm, iyq, iym big.Int
	var exq, exm, eyq, eym fr.Element
	val.X.BigInt(&ixq)
	val.Y.BigInt(&iyq)
	ixq.DivMod(&ixq, fr.Modulus(), &ixm)
	iyq.DivMod(&iyq, fr.Modulus(), &iym)
	exq.SetBigInt(&ixq)
	exm.SetBigInt(&ixm)
	eyq.SetBigInt(&iyq)
	eym.SetBigInt(&iym)
	return [2][2]fr.Element{{exq, exm}, {eyq, eym}}
}

// HashG1 ≡ Compress(Compress(xq,xm), Compress(yq,ym)).
func (h Hasher) HashG1(val bn254.G1Affine) fr.Element {
	decompose := DecomposeG1(val)
	x := h.Compress(decompose[0][0], decompose[0][1])
	y := h.Compress(decompose[1][0], decompose[1][1])
	return h.Compress(x, y)
}

// HashG1Grumpkin absorbs a Grumpkin point. Grumpkin's base field is the BN254
// scalar field, so coordinates embed without decomposition.
func (h Hasher) HashG1Grumpkin(val grumpkin.G1Affine) fr.Element {
	return h.Compress(fr.Element(val.X), fr.Element(val.Y))
}

// DecomposeWide splits a value that may exceed the BN254 scalar modulus into
// (quotient, remainder) field elements, the same trick DecomposeG1 applies to
// base-field coordinates.
func DecomposeWide(v *big.Int) (fr.Element, fr.Element) {
	var q, m big.Int
	q.DivMod(v, fr.Modulus(), &m)
	var eq, em fr.Element
	eq.SetBigInt(&q)
	em.SetBigInt(&m)
	return eq, em
}

// HashScalarGrumpkin absorbs a Grumpkin scalar, which lives in a field larger
// than BN254's scalar field.
func (h Hasher) HashScalarGrumpkin(v grumpkinfr.Element) fr.Element {
	var b big.Int
	v.BigInt(&b)
	q, m := DecomposeWide(&b)
	return h.Compress(q, m)
}
