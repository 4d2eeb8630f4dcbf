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
	"io"
	"math"

	"github.com/mlnoga/diskfit/internal/beam"
	"github.com/mlnoga/diskfit/internal/curve"
	"github.com/mlnoga/diskfit/internal/geom"
	"github.com/mlnoga/diskfit/internal/kin"
)

// BisymmetricDisk models a rotating disk with a second-order bisymmetric
// flow after Spekkens & Sellwood (2007): in addition to the tangential
// rotation Vt(r), an oval distortion at in-plane position angle pab
// contributes tangential and radial m=2 terms V2t(r) and V2r(r). The
// line-of-sight velocity is
//
//	vsys + Vt*cos(theta) - V2t*cos(2 theta_b)*cos(theta)
//	                     - V2r*sin(2 theta_b)*sin(theta)
//
// with theta_b the disk-plane azimuth relative to the distortion axis.
// All amplitudes are projected.
//
// Parameter layout: xc, yc, pa [deg], inc [deg], pab [deg], vsys, then
// the Vt, V2t and V2r curve parameters, then the dispersion profile
// parameters if any.
type BisymmetricDisk struct {
	diskBase
	vt, v2t, v2r curve.Curve
}

// NewBisymmetricDisk builds a bisymmetric disk model. A nil vt selects a
// hyperbolic tangent; nil v2t and v2r select rising power-exponential
// profiles; a nil dc fits the velocity field only.
func NewBisymmetricDisk(vt, v2t, v2r, dc curve.Curve) *BisymmetricDisk {
	if vt==nil { vt=curve.Tanh{} }
	if v2t==nil { v2t=curve.PowerExp{} }
	if v2r==nil { v2r=curve.PowerExp{} }
	d:=&BisymmetricDisk{vt: vt, v2t: v2t, v2r: v2r}
	d.nbp=6
	d.dc=dc
	d.np=d.nbp+vt.NPar()+v2t.NPar()+v2r.NPar()
	if dc!=nil { d.np+=dc.NPar() }
	d.Par=make([]float64, d.np)
	d.Free=make([]bool, d.np)
	for i:=range d.Free { d.Free[i]=true }
	d.nfree=d.np
	d.guess=d.GuessPar
	d.bounds=d.parBounds
	d.eval=d.evaluate
	copy(d.Par, d.GuessPar())
	return d
}

// GuessPar returns the default starting parameters.
func (d *BisymmetricDisk) GuessPar() []float64 {
	p:=append([]float64{0, 0, 45, 30, 0, 0}, d.vt.GuessPar()...)
	p=append(p, d.v2t.GuessPar()...)
	p=append(p, d.v2r.GuessPar()...)
	if d.dc!=nil { p=append(p, d.dc.GuessPar()...) }
	return p
}

// ParNames returns the parameter names in vector order.
func (d *BisymmetricDisk) ParNames() []string {
	names:=append([]string{"xc", "yc", "pa", "inc", "pab", "vsys"}, d.vt.ParNames()...)
	names=append(names, d.v2t.ParNames()...)
	names=append(names, d.v2r.ParNames()...)
	if d.dc!=nil { names=append(names, d.dc.ParNames()...) }
	return names
}

// BasePar returns the geometric parameter slice xc, yc, pa, inc, pab, vsys.
func (d *BisymmetricDisk) BasePar() []float64 { return d.Par[:d.nbp] }

// VTPar returns the rotation-curve parameter slice.
func (d *BisymmetricDisk) VTPar() []float64 { return d.Par[d.nbp : d.nbp+d.vt.NPar()] }

// V2TPar returns the second-order tangential amplitude parameter slice.
func (d *BisymmetricDisk) V2TPar() []float64 {
	lo:=d.nbp+d.vt.NPar()
	return d.Par[lo : lo+d.v2t.NPar()]
}

// V2RPar returns the second-order radial amplitude parameter slice.
func (d *BisymmetricDisk) V2RPar() []float64 {
	lo:=d.nbp+d.vt.NPar()+d.v2t.NPar()
	return d.Par[lo : lo+d.v2r.NPar()]
}

// DCPar returns the dispersion-profile parameter slice, nil if the model
// has no dispersion profile.
func (d *BisymmetricDisk) DCPar() []float64 {
	if d.dc==nil { return nil }
	return d.Par[d.nbp+d.vt.NPar()+d.v2t.NPar()+d.v2r.NPar():]
}

// BaseParErr, VTParErr, V2TParErr, V2RParErr and DCParErr are the
// standard-error counterparts of the parameter slice accessors; all nil
// before a successful fit.
func (d *BisymmetricDisk) BaseParErr() []float64 { return errSlice(d.ParErr, 0, d.nbp) }
func (d *BisymmetricDisk) VTParErr() []float64 {
	return errSlice(d.ParErr, d.nbp, d.nbp+d.vt.NPar())
}
func (d *BisymmetricDisk) V2TParErr() []float64 {
	lo:=d.nbp+d.vt.NPar()
	return errSlice(d.ParErr, lo, lo+d.v2t.NPar())
}
func (d *BisymmetricDisk) V2RParErr() []float64 {
	lo:=d.nbp+d.vt.NPar()+d.v2t.NPar()
	return errSlice(d.ParErr, lo, lo+d.v2r.NPar())
}
func (d *BisymmetricDisk) DCParErr() []float64 {
	if d.dc==nil { return nil }
	return errSlice(d.ParErr, d.nbp+d.vt.NPar()+d.v2t.NPar()+d.v2r.NPar(), d.np)
}

// ParBounds returns the fitting bounds. The center is bounded by the
// coordinate extrema of the evaluation grid, so a grid must be set.
// Non-nil baseLB/baseUB override the bounds of the leading geometric
// parameters and must have length 6.
func (d *BisymmetricDisk) ParBounds(baseLB, baseUB []float64) (lb, ub []float64, err error) {
	if baseLB!=nil && len(baseLB)!=d.nbp {
		return nil, nil, fmt.Errorf("disk: base lower bounds have %d elements; want %d", len(baseLB), d.nbp)
	}
	if baseUB!=nil && len(baseUB)!=d.nbp {
		return nil, nil, fmt.Errorf("disk: base upper bounds have %d elements; want %d", len(baseUB), d.nbp)
	}
	return d.parBounds(baseLB, baseUB)
}

func (d *BisymmetricDisk) parBounds(baseLB, baseUB []float64) (lb, ub []float64, err error) {
	lb, ub, err=geomBounds(d.x, d.y, baseLB, baseUB, true)
	if err!=nil { return nil, nil, err }
	for _, c:=range []curve.Curve{d.vt, d.v2t, d.v2r} {
		clb, cub:=c.Bounds()
		lb, ub=append(lb, clb...), append(ub, cub...)
	}
	if d.dc!=nil {
		clb, cub:=d.dc.Bounds()
		lb, ub=append(lb, clb...), append(ub, cub...)
	}
	return lb, ub, nil
}

// Model evaluates the smeared model velocity field (and dispersion field,
// if a dispersion profile exists) on the evaluation grid. A non-nil par
// replaces the current parameters first; ignoreBeam skips the beam
// convolution.
func (d *BisymmetricDisk) Model(par []float64, ignoreBeam bool) (vel, sig []float64, err error) {
	if par!=nil {
		if err:=d.SetPar(par); err!=nil { return nil, nil, err }
	}
	return d.evaluate(ignoreBeam)
}

func (d *BisymmetricDisk) evaluate(ignoreBeam bool) (vel, sig []float64, err error) {
	if d.x==nil || d.y==nil {
		return nil, nil, fmt.Errorf("disk: no coordinate grid to evaluate the model on")
	}
	npts:=len(d.x)
	xc, yc:=d.Par[0], d.Par[1]
	pa, inc:=d.Par[2]*math.Pi/180, d.Par[3]*math.Pi/180
	pab:=wrapHalfTurn(d.Par[4])*math.Pi/180
	xs:=make([]float64, npts)
	ys:=make([]float64, npts)
	for i:=range xs {
		xs[i]=d.x[i]-xc
		ys[i]=d.y[i]-yc
	}
	r:=make([]float64, npts)
	th:=make([]float64, npts)
	geom.ProjectedPolar(xs, ys, pa, inc, r, th)

	vt:=make([]float64, npts)
	v2t:=make([]float64, npts)
	v2r:=make([]float64, npts)
	d.vt.Sample(vt, r, d.VTPar())
	d.v2t.Sample(v2t, r, d.V2TPar())
	d.v2r.Sample(v2r, r, d.V2RPar())

	// deproject the on-sky distortion angle into the disk plane
	pabInPlane:=math.Atan(math.Tan(pab)/math.Cos(inc))
	vsys:=d.Par[5]
	vel=make([]float64, npts)
	for i:=range vel {
		cosT, sinT:=math.Cos(th[i]), math.Sin(th[i])
		tb:=th[i]-pabInPlane
		vel[i]=vsys + vt[i]*cosT - v2t[i]*math.Cos(2*tb)*cosT - v2r[i]*math.Sin(2*tb)*sinT
	}

	if d.dc!=nil {
		sig=make([]float64, npts)
		d.dc.Sample(sig, r, d.DCPar())
	}
	if ignoreBeam || d.beamFFT==nil { return vel, sig, nil }
	_, vel, sig, err=beam.Smear(d.sb, vel, sig, d.beamFFT, d.n)
	return vel, sig, err
}

// wrapHalfTurn wraps an angle in degrees into [-90, 90).
func wrapHalfTurn(deg float64) float64 {
	w:=math.Mod(deg+90, 180)
	if w<0 { w+=180 }
	return w-90
}

// LSQFit fits the model to the given kinematic data with a bounded
// least-squares minimization. The finite-difference steps are 1% for the
// geometric parameters and 10% for the curve parameters, whose merit
// surface is flatter.
func (d *BisymmetricDisk) LSQFit(k *kin.Kinematics, opts FitOptions) (*FitResult, error) {
	diffStep:=constVec(d.np, 0.1)
	for i:=0; i<d.nbp; i++ { diffStep[i]=0.01 }
	return d.lsqFit(k, opts, diffStep)
}

// Report writes a human-readable summary of a completed fit.
func (d *BisymmetricDisk) Report(w io.Writer, res *FitResult) {
	fmt.Fprintf(w, "Bisymmetric disk fit: %s\n", res.Status)
	names:=d.ParNames()
	lo, hi:=0, d.nbp
	reportPars(w, "Base parameters", names[lo:hi], res.Par[lo:hi], errSlice(res.ParErr, lo, hi))
	lo, hi=hi, hi+d.vt.NPar()
	reportPars(w, "Rotation curve", names[lo:hi], res.Par[lo:hi], errSlice(res.ParErr, lo, hi))
	lo, hi=hi, hi+d.v2t.NPar()
	reportPars(w, "Second-order tangential flow", names[lo:hi], res.Par[lo:hi], errSlice(res.ParErr, lo, hi))
	lo, hi=hi, hi+d.v2r.NPar()
	reportPars(w, "Second-order radial flow", names[lo:hi], res.Par[lo:hi], errSlice(res.ParErr, lo, hi))
	if d.dc!=nil {
		lo, hi=hi, d.np
		reportPars(w, "Dispersion profile", names[lo:hi], res.Par[lo:hi], errSlice(res.ParErr, lo, hi))
	}
	fmt.Fprintf(w, "Velocity chi-square:   %12.2f over %d measurements\n", res.VChi2, res.NVel)
	if d.dc!=nil {
		fmt.Fprintf(w, "Dispersion chi-square: %12.2f over %d measurements\n", res.SChi2, res.NSig)
	}
	fmt.Fprintf(w, "Reduced chi-square:    %12.4f with %d free parameters\n", res.RedChi2(), res.NFree)
}
