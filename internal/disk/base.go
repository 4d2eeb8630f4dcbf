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


// Package disk fits parametric thin-disk kinematic models to observed
// velocity and velocity-dispersion maps. Two model families are provided:
// AxisymmetricDisk (pure rotation) and BisymmetricDisk (rotation plus a
// second-order bisymmetric flow after Spekkens & Sellwood 2007).
//
// All velocity-curve amplitudes are fit in projection, i.e. they already
// contain the sin(inclination) factor and it is never applied again.
package disk

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"

	dfl "github.com/mlnoga/diskfit/internal"
	"github.com/mlnoga/diskfit/internal/beam"
	"github.com/mlnoga/diskfit/internal/curve"
	"github.com/mlnoga/diskfit/internal/kin"
)

// FitOptions configures a least-squares fit.
type FitOptions struct {
	P0  []float64 // initial parameters, full length; nil uses the default guess
	Fix []bool    // true entries are held fixed; nil frees everything

	LB, UB []float64 // full-length bound overrides; nil uses the model defaults

	// Scatter holds one intrinsic-scatter term per fitted kinematic
	// moment, added in quadrature to the measurement errors. At most one
	// value per moment.
	Scatter []float64

	SBWeight          bool // weight the beam smearing with the observed surface brightness
	AssumePosdefCovar bool // skip the positive-definite projection of covariances
	IgnoreCovar       bool // use inverse variances even if covariances exist
	NelderMead        bool // polish the solution with a derivative-free simplex pass
}

// FitResult is the outcome of a completed fit.
type FitResult struct {
	Par    []float64
	ParErr []float64 // nil when the precision matrix was singular

	VChi2, SChi2      float64
	NVel, NSig, NFree int

	Status  string
	Success bool
}

// RedChi2 returns the reduced chi-square of the fit.
func (r *FitResult) RedChi2() float64 {
	dof:=r.NVel+r.NSig-r.NFree
	if dof<=0 { return math.NaN() }
	return (r.VChi2+r.SChi2)/float64(dof)
}

// diskBase carries the state shared by the disk model families: the
// parameter vector with its free mask, the evaluation grid and beam, and
// the per-fit working set bound by fitPrep.
type diskBase struct {
	nbp   int // leading geometric parameters
	np    int // total parameters
	dc    curve.Curve // dispersion profile; nil fits the velocity field only

	Par    []float64
	ParErr []float64 // standard errors; nil until a fit succeeds
	Free   []bool
	nfree  int

	x, y    []float64
	n       int // grid side when the grid is a full square map, else 0
	beamFFT []complex128

	kin    *kin.Kinematics
	sb     []float64
	velGPM []bool
	sigGPM []bool

	hasErr, hasCovar bool
	scatter          []float64
	vWgt, sWgt       []float64
	vUCov, sUCov     *mat.TriDense

	// set by the concrete model at construction
	guess  func() []float64
	bounds func(baseLB, baseUB []float64) (lb, ub []float64, err error)
	eval   func(ignoreBeam bool) (vel, sig []float64, err error)
}

// NPar returns the total number of model parameters.
func (d *diskBase) NPar() int { return d.np }

// NFree returns the number of freely fit parameters.
func (d *diskBase) NFree() int { return d.nfree }

// SetPar replaces the parameter vector. A full-length vector replaces it
// verbatim; a vector with one entry per free parameter overwrites only the
// free entries. Any other length fails.
func (d *diskBase) SetPar(par []float64) error {
	if len(par)==d.np {
		copy(d.Par, par)
		return nil
	}
	if len(par)!=d.nfree {
		return fmt.Errorf("disk: must provide %d or %d parameters, got %d", d.np, d.nfree, len(par))
	}
	j:=0
	for i, f:=range d.Free {
		if f {
			d.Par[i]=par[j]
			j++
		}
	}
	return nil
}

// initPar installs the starting parameters and free mask for a fit and
// clears any previous error estimates.
func (d *diskBase) initPar(p0 []float64, fix []bool) error {
	if p0==nil { p0=d.guess() }
	if len(p0)!=d.np {
		return fmt.Errorf("disk: incorrect number of model parameters: got %d, want %d", len(p0), d.np)
	}
	copy(d.Par, p0)
	d.ParErr=nil
	if fix==nil {
		for i:=range d.Free { d.Free[i]=true }
	} else {
		if len(fix)!=d.np {
			return fmt.Errorf("disk: incorrect number of parameter fixing flags: got %d, want %d", len(fix), d.np)
		}
		for i:=range d.Free { d.Free[i]=!fix[i] }
	}
	d.nfree=0
	for _, f:=range d.Free {
		if f { d.nfree++ }
	}
	return nil
}

// SetGrid installs the evaluation grid. n is the side of the square map
// when the grid covers one (required for beam convolution), else 0.
func (d *diskBase) SetGrid(x, y []float64, n int) error {
	if len(x)!=len(y) {
		return fmt.Errorf("disk: coordinate arrays must have the same length, got %d and %d", len(x), len(y))
	}
	if n>0 && len(x)!=n*n {
		return fmt.Errorf("disk: grid of side %d needs %d coordinates, got %d", n, n*n, len(x))
	}
	if d.beamFFT!=nil && (n<=0 || len(d.beamFFT)!=n*n) {
		return fmt.Errorf("disk: convolution requires the beam map to match the square coordinate grid")
	}
	d.x, d.y, d.n=x, y, n
	return nil
}

// SetBeam installs a centered smoothing kernel for the evaluation grid.
func (d *diskBase) SetBeam(kernel []float64, n int) error {
	if len(kernel)!=n*n {
		return fmt.Errorf("disk: beam kernel has %d elements; want %d", len(kernel), n*n)
	}
	return d.SetBeamFFT(beam.FFT(kernel, n), n)
}

// SetBeamFFT installs a precomputed kernel transfer function.
func (d *diskBase) SetBeamFFT(fft []complex128, n int) error {
	if len(fft)!=n*n {
		return fmt.Errorf("disk: beam transfer function has %d elements; want %d", len(fft), n*n)
	}
	if d.x!=nil && len(d.x)!=n*n {
		return fmt.Errorf("disk: beam map does not match the coordinate grid")
	}
	d.beamFFT=fft
	d.n=n
	return nil
}

// resid returns the residuals between the data bound by fitPrep and the
// model at the given parameters: the velocity residual vector and, when a
// dispersion profile is fit, the squared-dispersion residual vector.
func (d *diskBase) resid(par []float64) (vfom, sfom []float64, err error) {
	if par!=nil {
		if err:=d.SetPar(par); err!=nil { return nil, nil, err }
	}
	vel, sig, err:=d.eval(false)
	if err!=nil { return nil, nil, err }
	bv, err:=d.kin.Bin(vel)
	if err!=nil { return nil, nil, err }
	for i, ok:=range d.velGPM {
		if ok { vfom=append(vfom, d.kin.Vel[i]-bv[i]) }
	}
	if d.dc==nil { return vfom, nil, nil }
	bs, err:=d.kin.Bin(sig)
	if err!=nil { return nil, nil, err }
	sp2:=d.kin.SigPhys2()
	for i, ok:=range d.sigGPM {
		if ok { sfom=append(sfom, sp2[i]-bs[i]*bs[i]) }
	}
	return vfom, sfom, nil
}

// chisqr returns the error-normalized residuals: per-measurement
// multiplication by the root-ivar weights (zero for measurements without
// a usable inverse variance), or whitening by the upper Cholesky factor
// of the inverse covariance when covariances are in use.
func (d *diskBase) chisqr(par []float64) (vfom, sfom []float64, err error) {
	vfom, sfom, err=d.resid(par)
	if err!=nil { return nil, nil, err }
	if d.hasCovar {
		vfom=whiten(d.vUCov, vfom)
		if sfom!=nil { sfom=whiten(d.sUCov, sfom) }
		return vfom, sfom, nil
	}
	j:=0
	for i, ok:=range d.velGPM {
		if !ok { continue }
		vfom[j]*=d.vWgt[i]
		j++
	}
	if sfom!=nil {
		j=0
		for i, ok:=range d.sigGPM {
			if !ok { continue }
			sfom[j]*=d.sWgt[i]
			j++
		}
	}
	return vfom, sfom, nil
}

func whiten(u *mat.TriDense, r []float64) []float64 {
	out:=mat.NewVecDense(len(r), nil)
	out.MulVec(u, mat.NewVecDense(len(r), r))
	return out.RawVector().Data
}

// fom returns the figure-of-merit function for the optimizer given the
// availability of errors, concatenating the velocity and dispersion parts.
func (d *diskBase) fom() func([]float64) ([]float64, error) {
	normalized:=d.hasErr || d.hasCovar
	return func(par []float64) ([]float64, error) {
		var vfom, sfom []float64
		var err error
		if normalized {
			vfom, sfom, err=d.chisqr(par)
		} else {
			vfom, sfom, err=d.resid(par)
		}
		if err!=nil { return nil, err }
		return append(vfom, sfom...), nil
	}
}

// fitPrep binds the kinematic data to the model, validates the fit
// configuration, and builds the error or covariance normalization.
func (d *diskBase) fitPrep(k *kin.Kinematics, opts FitOptions) error {
	if err:=d.initPar(opts.P0, opts.Fix); err!=nil { return err }
	if d.dc!=nil && k.Sig==nil {
		return fmt.Errorf("disk: model fits a dispersion profile but the data has no dispersion map")
	}
	d.kin=k
	d.n=k.N
	d.x=k.GridX
	d.y=k.GridY
	d.beamFFT=k.BeamFFT
	d.sb=nil
	if opts.SBWeight {
		sb, err:=k.RemapFilled("sb", 0)
		if err!=nil { return err }
		d.sb=sb
	}

	d.velGPM=make([]bool, k.NBin)
	for i:=range d.velGPM { d.velGPM[i]=!k.VelMask[i] }
	d.sigGPM=nil
	if d.dc!=nil {
		d.sigGPM=make([]bool, k.NBin)
		for i:=range d.sigGPM { d.sigGPM[i]=!k.SigMask[i] }
	}

	// which error information is usable
	d.hasErr=k.VelIvar!=nil
	if d.dc!=nil { d.hasErr=d.hasErr && k.SigIvar!=nil }
	if !d.hasErr && (k.VelIvar!=nil || (d.dc!=nil && k.SigIvar!=nil)) {
		dfl.LogWarnf("disk: some errors ignored because both velocity and dispersion errors are needed\n")
	}
	d.hasCovar=k.VelCovar!=nil
	if d.dc!=nil { d.hasCovar=d.hasCovar && k.SigCovar!=nil }
	if !d.hasCovar && (k.VelCovar!=nil || (d.dc!=nil && k.SigCovar!=nil)) {
		dfl.LogWarnf("disk: some covariance matrices ignored because both velocity and dispersion covariances are needed\n")
	}
	if opts.IgnoreCovar { d.hasCovar=false }

	// intrinsic scatter: at most one term per fitted kinematic moment
	d.scatter=nil
	if opts.Scatter!=nil {
		moments:=1
		if d.dc!=nil { moments=2 }
		if len(opts.Scatter)>moments {
			return fmt.Errorf("disk: at most one scatter term per fitted kinematic moment; got %d for %d", len(opts.Scatter), moments)
		}
		d.scatter=append([]float64(nil), opts.Scatter...)
		if d.dc!=nil && len(d.scatter)==1 {
			dfl.LogWarnf("disk: using a single scatter term for both velocity and dispersion\n")
			d.scatter=append(d.scatter, d.scatter[0])
		}
	}

	// per-measurement residual weights
	d.vWgt, d.sWgt=nil, nil
	var scatterV, scatterS float64
	if d.scatter!=nil {
		scatterV=d.scatter[0]
		if d.dc!=nil { scatterS=d.scatter[1] }
	}
	switch {
	case d.hasErr:
		d.vWgt=wgtsFromIvar(k.VelIvar, scatterV)
		if d.dc!=nil { d.sWgt=wgtsFromIvar(k.SigPhys2Ivar(), scatterS) }
	case !d.hasCovar && d.scatter!=nil:
		// scatter renormalizes an otherwise unweighted merit function
		d.hasErr=true
		d.vWgt=constVec(k.NBin, constWgt(scatterV))
		if d.dc!=nil { d.sWgt=constVec(k.NBin, constWgt(scatterS)) }
	}

	// covariance whitening operators
	d.vUCov, d.sUCov=nil, nil
	if d.hasCovar {
		u, err:=whiteningOp(k.VelCovar, d.velGPM, scatterV, opts.AssumePosdefCovar)
		if err!=nil {
			dfl.LogWarnf("disk: velocity covariance unusable (%s); falling back to inverse variances\n", err)
			d.hasCovar=false
		} else {
			d.vUCov=u
		}
		if d.hasCovar && d.dc!=nil {
			u, err:=whiteningOp(k.SigCovar, d.sigGPM, scatterS, opts.AssumePosdefCovar)
			if err!=nil {
				dfl.LogWarnf("disk: dispersion covariance unusable (%s); falling back to inverse variances\n", err)
				d.hasCovar=false
				d.vUCov=nil
			} else {
				d.sUCov=u
			}
		}
	}
	return nil
}

// whiteningOp builds the upper-Cholesky whitening operator of one
// kinematic moment: subset the covariance to the good pixels, inflate the
// diagonal by the intrinsic scatter, invert and factor.
func whiteningOp(cov *mat.SymDense, gpm []bool, scatter float64, assumePosDef bool) (*mat.TriDense, error) {
	sub, err:=subsetSym(cov, gpm)
	if err!=nil { return nil, err }
	if scatter>0 { addScatterDiag(sub, scatter) }
	return cholInvUpper(sub, assumePosDef)
}

// wgtsFromIvar converts inverse variances into root-ivar residual
// weights, optionally inflating the variance in quadrature by an
// intrinsic scatter term. Measurements without a usable inverse variance
// get weight zero instead of producing a non-finite residual.
func wgtsFromIvar(ivar []float64, scatter float64) []float64 {
	out:=make([]float64, len(ivar))
	for i, v:=range ivar {
		if v<=0 { continue }
		out[i]=1/math.Sqrt(1/v+scatter*scatter)
	}
	return out
}

// constWgt is the uniform weight of a scatter-only renormalization.
func constWgt(scatter float64) float64 {
	if scatter<=0 { return 1 }
	return 1/scatter
}

func constVec(n int, v float64) []float64 {
	out:=make([]float64, n)
	for i:=range out { out[i]=v }
	return out
}

// lsqFit runs the bounded least-squares minimization over the free
// parameters and fills in the fit result. diffStep is the full-length
// relative finite-difference step vector.
func (d *diskBase) lsqFit(k *kin.Kinematics, opts FitOptions, diffStep []float64) (*FitResult, error) {
	if err:=d.fitPrep(k, opts); err!=nil { return nil, err }

	lb, ub:=opts.LB, opts.UB
	if lb==nil || ub==nil {
		dlb, dub, err:=d.bounds(nil, nil)
		if err!=nil { return nil, err }
		if lb==nil { lb=dlb }
		if ub==nil { ub=dub }
	}
	if len(lb)!=d.np || len(ub)!=d.np {
		return nil, fmt.Errorf("disk: bound vectors must have length %d, got %d and %d", d.np, len(lb), len(ub))
	}

	fom:=d.fom()
	free:=func(full []float64) []float64 {
		out:=make([]float64, 0, d.nfree)
		for i, f:=range d.Free {
			if f { out=append(out, full[i]) }
		}
		return out
	}

	res, err:=leastSquares(fom, free(d.Par), free(lb), free(ub), free(diffStep))
	if err!=nil { return nil, err }
	if err:=d.SetPar(res.X); err!=nil { return nil, err }

	if opts.NelderMead {
		x, err:=nelderMead(fom, free(d.Par), free(lb), free(ub))
		if err!=nil {
			dfl.LogWarnf("disk: simplex polish failed (%s); keeping least-squares solution\n", err)
		} else if err:=d.SetPar(x); err!=nil {
			return nil, err
		}
	}

	// parameter errors from the Jacobian-based covariance estimate
	d.ParErr=nil
	cov, err:=covErr(res.Jac)
	if err!=nil {
		dfl.LogWarnf("disk: unable to compute parameter errors from the precision matrix (%s)\n", err)
	} else {
		d.ParErr=make([]float64, d.np)
		se:=stdErrsFromCov(cov)
		j:=0
		for i, f:=range d.Free {
			if f {
				d.ParErr[i]=se[j]
				j++
			}
		}
	}

	vfom, sfom, err:=d.currentFOM()
	if err!=nil { return nil, err }
	result:=&FitResult{
		Par:     append([]float64(nil), d.Par...),
		NVel:    len(vfom),
		NSig:    len(sfom),
		NFree:   d.nfree,
		Status:  res.Status,
		Success: res.Success,
	}
	if d.ParErr!=nil { result.ParErr=append([]float64(nil), d.ParErr...) }
	for _, v:=range vfom { result.VChi2+=v*v }
	for _, s:=range sfom { result.SChi2+=s*s }
	return result, nil
}

// currentFOM evaluates the figure of merit at the current parameters,
// keeping the velocity and dispersion parts separate.
func (d *diskBase) currentFOM() (vfom, sfom []float64, err error) {
	if d.hasErr || d.hasCovar { return d.chisqr(nil) }
	return d.resid(nil)
}

// reportPars prints one parameter block of the fit report.
func reportPars(w io.Writer, label string, names []string, par, parErr []float64) {
	fmt.Fprintf(w, "%s:\n", label)
	for i:=range par {
		if parErr==nil {
			fmt.Fprintf(w, "  %12s: %10.2f\n", names[i], par[i])
		} else {
			fmt.Fprintf(w, "  %12s: %10.2f +/- %.2f\n", names[i], par[i], parErr[i])
		}
	}
}
