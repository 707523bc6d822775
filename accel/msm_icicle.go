//go:build icicle

package accel

import (
	"fmt"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	icicle_core "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/core"
	icicle_bn254 "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bn254"
	icicle_msm "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bn254/msm"
	icicle_runtime "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/runtime"
)

const HasIcicle = true

func projectiveToGnarkAffine(p icicle_bn254.Projective) bn254.G1Affine {
	bx := p.X.ToBytesLittleEndian()
	by := p.Y.ToBytesLittleEndian()
	bz := p.Z.ToBytesLittleEndian()

	var ax, ay, az fp.Element
	ax, _ = fp.LittleEndian.Element((*[fp.Bytes]byte)(bx))
	ay, _ = fp.LittleEndian.Element((*[fp.Bytes]byte)(by))
	az, _ = fp.LittleEndian.Element((*[fp.Bytes]byte)(bz))

	if az.IsZero() {
		return bn254.G1Affine{}
	}
	var zInv fp.Element
	zInv.Inverse(&az)
	ax.Mul(&ax, &zInv)
	ay.Mul(&ay, &zInv)
	return bn254.G1Affine{X: ax, Y: ay}
}

// MSMBN254 computes Σ scalars[i]·points[i] on the icicle backend.
func MSMBN254(points []bn254.G1Affine, scalars []fr.Element) (bn254.G1Affine, error) {
	scalarsHost := icicle_core.HostSliceFromElements(scalars)
	pointsHost := icicle_core.HostSlice[bn254.G1Affine](points)

	cfg := icicle_msm.GetDefaultMSMConfig()
	cfg.AreScalarsMontgomeryForm = true
	cfg.AreBasesMontgomeryForm = true

	out := make(icicle_core.HostSlice[icicle_bn254.Projective], 1)
	if st := icicle_msm.Msm(scalarsHost, pointsHost, &cfg, out); st != icicle_runtime.Success {
		return bn254.G1Affine{}, fmt.Errorf("icicle msm: %s", st.AsString())
	}
	return projectiveToGnarkAffine(out[0]), nil
}
