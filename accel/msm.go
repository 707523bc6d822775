//go:build !icicle

package accel

import (
	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/consensys/gnark-crypto/ecc"
)

const HasIcicle = false

// MSMBN254 computes the multi-scalar multiplication Σ scalars[i]·points[i].
func MSMBN254(points []bn254.G1Affine, scalars []fr.Element) (bn254.G1Affine, error) {
	var out bn254.G1Affine
	_, err := out.MultiExp(points, scalars, ecc.MultiExpConfig{})
	return out, err
}
