// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package disk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// subsetSym extracts the rows and columns of s selected by keep. Fails
// when keep selects nothing, which happens when a kinematic moment is
// fully masked.
func subsetSym(s *mat.SymDense, keep []bool) (*mat.SymDense, error) {
	var idx []int
	for i, k:=range keep {
		if k { idx=append(idx, i) }
	}
	if len(idx)==0 {
		return nil, fmt.Errorf("disk: no usable measurements left after masking")
	}
	out:=mat.NewSymDense(len(idx), nil)
	for a, i:=range idx {
		for b:=a; b<len(idx); b++ {
			out.SetSym(a, b, s.At(i, idx[b]))
		}
	}
	return out, nil
}

// addScatterDiag adds an intrinsic-scatter variance to the diagonal of a
// covariance matrix. A diagonal matrix with positive entries is positive
// definite, so this preserves positive definiteness.
func addScatterDiag(s *mat.SymDense, scatter float64) {
	n, _:=s.Dims()
	for i:=0; i<n; i++ {
		s.SetSym(i, i, s.At(i, i)+scatter*scatter)
	}
}

// imposePositiveDefinite projects a symmetric matrix onto the nearest
// positive-definite matrix by clipping its eigenvalues from below.
func imposePositiveDefinite(s *mat.SymDense) (*mat.SymDense, error) {
	n, _:=s.Dims()
	var eig mat.EigenSym
	if !eig.Factorize(s, true) {
		return nil, fmt.Errorf("disk: eigendecomposition of covariance failed")
	}
	vals:=eig.Values(nil)
	maxVal:=0.0
	for _, v:=range vals {
		if v>maxVal { maxVal=v }
	}
	if maxVal<=0 { maxVal=1 }
	floor:=maxVal*1e-10
	for i:=range vals {
		if vals[i]<floor { vals[i]=floor }
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	var tmp, full mat.Dense
	tmp.Mul(&vecs, mat.NewDiagDense(n, vals))
	full.Mul(&tmp, vecs.T())
	out:=mat.NewSymDense(n, nil)
	for i:=0; i<n; i++ {
		for j:=i; j<n; j++ {
			out.SetSym(i, j, 0.5*(full.At(i, j)+full.At(j, i)))
		}
	}
	return out, nil
}

// cholInvUpper returns the upper Cholesky factor U of the inverse of the
// covariance matrix, with U^T U equal to the precision matrix. Multiplying
// a residual vector by U whitens it: |U r|^2 = r^T C^-1 r. If cov is not
// positive definite it is projected first; assumePosDef skips that.
func cholInvUpper(cov *mat.SymDense, assumePosDef bool) (*mat.TriDense, error) {
	n, _:=cov.Dims()
	var ch mat.Cholesky
	if !ch.Factorize(cov) {
		if assumePosDef {
			return nil, fmt.Errorf("disk: covariance asserted positive definite but Cholesky failed")
		}
		fixed, err:=imposePositiveDefinite(cov)
		if err!=nil { return nil, err }
		if !ch.Factorize(fixed) {
			return nil, fmt.Errorf("disk: covariance not positive definite after projection")
		}
	}
	prec:=mat.NewSymDense(n, nil)
	if err:=ch.InverseTo(prec); err!=nil {
		return nil, fmt.Errorf("disk: inverting covariance: %v", err)
	}
	var chp mat.Cholesky
	if !chp.Factorize(prec) {
		return nil, fmt.Errorf("disk: precision matrix not positive definite")
	}
	u:=mat.NewTriDense(n, mat.Upper, nil)
	chp.UTo(u)
	return u, nil
}

// covErr computes the parameter covariance estimate (J^T J)^-1 from the
// Jacobian of the residual vector at the least-squares solution. Fails if
// the normal matrix is singular or not positive definite, in which case
// the caller degrades to reporting no parameter errors.
func covErr(jac *mat.Dense) (*mat.SymDense, error) {
	_, n:=jac.Dims()
	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)
	sym:=mat.NewSymDense(n, nil)
	for i:=0; i<n; i++ {
		for j:=i; j<n; j++ {
			sym.SetSym(i, j, jtj.At(i, j))
		}
	}
	var ch mat.Cholesky
	if !ch.Factorize(sym) {
		return nil, fmt.Errorf("disk: normal matrix J^T J is singular or indefinite")
	}
	cov:=mat.NewSymDense(n, nil)
	if err:=ch.InverseTo(cov); err!=nil {
		return nil, fmt.Errorf("disk: inverting normal matrix: %v", err)
	}
	return cov, nil
}

// stdErrsFromCov extracts per-parameter standard errors from a parameter
// covariance matrix.
func stdErrsFromCov(cov *mat.SymDense) []float64 {
	n, _:=cov.Dims()
	out:=make([]float64, n)
	for i:=0; i<n; i++ {
		v:=cov.At(i, i)
		if v>0 { out[i]=math.Sqrt(v) }
	}
	return out
}
