package foldgrad

import (
	"encoding/binary"
	"errors"
	"log"
	"math/big"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/foldgrad/foldgrad/accel"
)

// PedersenKey holds generators for binding vector commitments over BN254 G1.
type PedersenKey struct {
	G []bn254.G1Affine
}

// NewPedersenKey derives n deterministic generators by hashing each index to
// the curve, with the seed as domain separator. Nothing-up-my-sleeve: nobody
// knows discrete-log relations between the generators.
func NewPedersenKey(n int, seed []byte) PedersenKey {
	g := make([]bn254.G1Affine, n)
	var msg [8]byte
	for i := range g {
		binary.BigEndian.PutUint64(msg[:], uint64(i))
		p, err := bn254.HashToG1(msg[:], seed)
		if err != nil {
			log.Fatalln("pedersen: hash to curve:", err)
		}
		g[i] = p
	}
	return PedersenKey{G: g}
}

// Commit computes Σ v[i]·G[i]. A zero vector commits to the identity.
func (k *PedersenKey) Commit(v []fr.Element) (bn254.G1Affine, error) {
	if len(v) > len(k.G) {
		return bn254.G1Affine{}, errors.New("pedersen: vector longer than generator set")
	}
	return accel.MSMBN254(k.G[:len(v)], v)
}

// FoldPoints returns c1 + r·c2, the commitment half of a folding step.
func FoldPoints(c1, c2 bn254.G1Affine, r fr.Element) bn254.G1Affine {
	var rb big.Int
	r.BigInt(&rb)
	var scaled bn254.G1Affine
	scaled.ScalarMultiplication(&c2, &rb)
	var j1, j2 bn254.G1Jac
	j1.FromAffine(&c1)
	j2.FromAffine(&scaled)
	j1.AddAssign(&j2)
	var out bn254.G1Affine
	out.FromJacobian(&j1)
	return out
}
