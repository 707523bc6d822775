package foldgrad

import (
	"encoding/binary"
	"errors"
	"log"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/grumpkin"
	grumpkinfr "github.com/consensys/gnark-crypto/ecc/grumpkin/fr"
)

// PedersenKeyGrumpkin commits to vectors over the secondary curve, used by
// the auxiliary correctness circuit. There is no icicle path for Grumpkin;
// commitments always go through gnark-crypto's MultiExp.
type PedersenKeyGrumpkin struct {
	G []grumpkin.G1Affine
}

// NewPedersenKeyGrumpkin mirrors NewPedersenKey on the secondary curve. The
// curves share the seed; gnark-crypto's hash-to-curve separates them by curve
// parameters, so the generator sets are unrelated.
func NewPedersenKeyGrumpkin(n int, seed []byte) PedersenKeyGrumpkin {
	g := make([]grumpkin.G1Affine, n)
	var msg [8]byte
	for i := range g {
		binary.BigEndian.PutUint64(msg[:], uint64(i))
		p, err := grumpkin.HashToG1(msg[:], seed)
		if err != nil {
			log.Fatalln("pedersen: hash to curve:", err)
		}
		g[i] = p
	}
	return PedersenKeyGrumpkin{G: g}
}

func (k *PedersenKeyGrumpkin) Commit(v []grumpkinfr.Element) (grumpkin.G1Affine, error) {
	if len(v) > len(k.G) {
		return grumpkin.G1Affine{}, errors.New("pedersen: vector longer than generator set")
	}
	var out grumpkin.G1Affine
	_, err := out.MultiExp(k.G[:len(v)], v, ecc.MultiExpConfig{})
	return out, err
}

// FoldPointsGrumpkin returns c1 + r·c2 on the secondary curve.
func FoldPointsGrumpkin(c1, c2 grumpkin.G1Affine, r grumpkinfr.Element) grumpkin.G1Affine {
	var rb big.Int
	r.BigInt(&rb)
	var scaled grumpkin.G1Affine
	scaled.ScalarMultiplication(&c2, &rb)
	var j1, j2 grumpkin.G1Jac
	j1.FromAffine(&c1)
	j2.FromAffine(&scaled)
	j1.AddAssign(&j2)
	var out grumpkin.G1Affine
	out.FromJacobian(&j1)
	return out
}
