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

// AxisymmetricDisk models a razor-thin rotating disk. The line-of-sight
// velocity is vsys + RC(r)*cos(theta) with RC the projected rotation
// curve and (r, theta) the in-plane polar coordinates of each sky
// position. An optional dispersion profile DC(r) is fit simultaneously
// against the quadrature-corrected squared dispersions.
//
// Parameter layout: xc, yc, pa [deg], inc [deg], vsys, then the rotation
// curve parameters, then the dispersion profile parameters if any.
type AxisymmetricDisk struct {
	diskBase
	rc curve.Curve
}

// NewAxisymmetricDisk builds an axisymmetric disk model around the given
// rotation curve and dispersion profile. A nil rc selects a hyperbolic
// tangent; a nil dc fits the velocity field only.
func NewAxisymmetricDisk(rc, dc curve.Curve) *AxisymmetricDisk {
	if rc==nil { rc=curve.Tanh{} }
	d:=&AxisymmetricDisk{rc: rc}
	d.nbp=5
	d.dc=dc
	d.np=d.nbp+rc.NPar()
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

// GuessPar returns the default starting parameters: a centered disk at
// 45 degree position angle and 30 degree inclination at rest, with the
// profile families' own guesses.
func (d *AxisymmetricDisk) GuessPar() []float64 {
	p:=append([]float64{0, 0, 45, 30, 0}, d.rc.GuessPar()...)
	if d.dc!=nil { p=append(p, d.dc.GuessPar()...) }
	return p
}

// ParNames returns the parameter names in vector order.
func (d *AxisymmetricDisk) ParNames() []string {
	names:=append([]string{"xc", "yc", "pa", "inc", "vsys"}, d.rc.ParNames()...)
	if d.dc!=nil { names=append(names, d.dc.ParNames()...) }
	return names
}

// BasePar returns the geometric parameter slice xc, yc, pa, inc, vsys.
func (d *AxisymmetricDisk) BasePar() []float64 { return d.Par[:d.nbp] }

// RCPar returns the rotation-curve parameter slice.
func (d *AxisymmetricDisk) RCPar() []float64 { return d.Par[d.nbp : d.nbp+d.rc.NPar()] }

// DCPar returns the dispersion-profile parameter slice, nil if the model
// has no dispersion profile.
func (d *AxisymmetricDisk) DCPar() []float64 {
	if d.dc==nil { return nil }
	return d.Par[d.nbp+d.rc.NPar():]
}

// BaseParErr, RCParErr and DCParErr are the standard-error counterparts
// of the parameter slice accessors; all nil before a successful fit.
func (d *AxisymmetricDisk) BaseParErr() []float64 { return errSlice(d.ParErr, 0, d.nbp) }
func (d *AxisymmetricDisk) RCParErr() []float64 {
	return errSlice(d.ParErr, d.nbp, d.nbp+d.rc.NPar())
}
func (d *AxisymmetricDisk) DCParErr() []float64 {
	if d.dc==nil { return nil }
	return errSlice(d.ParErr, d.nbp+d.rc.NPar(), d.np)
}

// ParBounds returns the fitting bounds. The center is bounded by the
// coordinate extrema of the evaluation grid, so a grid must be set.
// Non-nil baseLB/baseUB override the bounds of the leading geometric
// parameters and must have length 5.
func (d *AxisymmetricDisk) ParBounds(baseLB, baseUB []float64) (lb, ub []float64, err error) {
	if baseLB!=nil && len(baseLB)!=d.nbp {
		return nil, nil, fmt.Errorf("disk: base lower bounds have %d elements; want %d", len(baseLB), d.nbp)
	}
	if baseUB!=nil && len(baseUB)!=d.nbp {
		return nil, nil, fmt.Errorf("disk: base upper bounds have %d elements; want %d", len(baseUB), d.nbp)
	}
	return d.parBounds(baseLB, baseUB)
}

func (d *AxisymmetricDisk) parBounds(baseLB, baseUB []float64) (lb, ub []float64, err error) {
	lb, ub, err=geomBounds(d.x, d.y, baseLB, baseUB, false)
	if err!=nil { return nil, nil, err }
	clb, cub:=d.rc.Bounds()
	lb, ub=append(lb, clb...), append(ub, cub...)
	if d.dc!=nil {
		clb, cub=d.dc.Bounds()
		lb, ub=append(lb, clb...), append(ub, cub...)
	}
	return lb, ub, nil
}

// geomBounds builds the bounds of the leading geometric parameters from
// the coordinate extrema of the grid; bisym adds the second-order flow
// position angle before vsys. Non-nil overrides replace the defaults.
func geomBounds(x, y, baseLB, baseUB []float64, bisym bool) (lb, ub []float64, err error) {
	if x==nil || y==nil {
		return nil, nil, fmt.Errorf("disk: parameter bounds require a coordinate grid")
	}
	minx, maxx:=x[0], x[0]
	for _, v:=range x {
		if v<minx { minx=v }
		if v>maxx { maxx=v }
	}
	miny, maxy:=y[0], y[0]
	for _, v:=range y {
		if v<miny { miny=v }
		if v>maxy { maxy=v }
	}
	lb=[]float64{minx, miny, -350, 1}
	ub=[]float64{maxx, maxy, 350, 89}
	if bisym {
		lb=append(lb, -100)
		ub=append(ub, 100)
	}
	lb=append(lb, -300)
	ub=append(ub, 300)
	if baseLB!=nil { copy(lb, baseLB) }
	if baseUB!=nil { copy(ub, baseUB) }
	return lb, ub, nil
}

// Model evaluates the smeared model velocity field (and dispersion field,
// if a dispersion profile exists) on the evaluation grid. A non-nil par
// replaces the current parameters first; ignoreBeam skips the beam
// convolution.
func (d *AxisymmetricDisk) Model(par []float64, ignoreBeam bool) (vel, sig []float64, err error) {
	if par!=nil {
		if err:=d.SetPar(par); err!=nil { return nil, nil, err }
	}
	return d.evaluate(ignoreBeam)
}

func (d *AxisymmetricDisk) evaluate(ignoreBeam bool) (vel, sig []float64, err error) {
	if d.x==nil || d.y==nil {
		return nil, nil, fmt.Errorf("disk: no coordinate grid to evaluate the model on")
	}
	npts:=len(d.x)
	xc, yc:=d.Par[0], d.Par[1]
	pa, inc:=d.Par[2]*math.Pi/180, d.Par[3]*math.Pi/180
	xs:=make([]float64, npts)
	ys:=make([]float64, npts)
	for i:=range xs {
		xs[i]=d.x[i]-xc
		ys[i]=d.y[i]-yc
	}
	r:=make([]float64, npts)
	th:=make([]float64, npts)
	geom.ProjectedPolar(xs, ys, pa, inc, r, th)

	vel=make([]float64, npts)
	d.rc.Sample(vel, r, d.RCPar())
	vsys:=d.Par[4]
	for i:=range vel { vel[i]=vsys+vel[i]*math.Cos(th[i]) }

	if d.dc!=nil {
		sig=make([]float64, npts)
		d.dc.Sample(sig, r, d.DCPar())
	}
	if ignoreBeam || d.beamFFT==nil { return vel, sig, nil }
	_, vel, sig, err=beam.Smear(d.sb, vel, sig, d.beamFFT, d.n)
	return vel, sig, err
}

// LSQFit fits the model to the given kinematic data with a bounded
// least-squares minimization.
func (d *AxisymmetricDisk) LSQFit(k *kin.Kinematics, opts FitOptions) (*FitResult, error) {
	diffStep:=constVec(d.np, 0.01)
	return d.lsqFit(k, opts, diffStep)
}

// Report writes a human-readable summary of a completed fit.
func (d *AxisymmetricDisk) Report(w io.Writer, res *FitResult) {
	fmt.Fprintf(w, "Axisymmetric disk fit: %s\n", res.Status)
	names:=d.ParNames()
	reportPars(w, "Base parameters", names[:d.nbp], res.Par[:d.nbp], errSlice(res.ParErr, 0, d.nbp))
	nrc:=d.nbp+d.rc.NPar()
	reportPars(w, "Rotation curve", names[d.nbp:nrc], res.Par[d.nbp:nrc], errSlice(res.ParErr, d.nbp, nrc))
	if d.dc!=nil {
		reportPars(w, "Dispersion profile", names[nrc:], res.Par[nrc:], errSlice(res.ParErr, nrc, d.np))
	}
	fmt.Fprintf(w, "Velocity chi-square:   %12.2f over %d measurements\n", res.VChi2, res.NVel)
	if d.dc!=nil {
		fmt.Fprintf(w, "Dispersion chi-square: %12.2f over %d measurements\n", res.SChi2, res.NSig)
	}
	fmt.Fprintf(w, "Reduced chi-square:    %12.4f with %d free parameters\n", res.RedChi2(), res.NFree)
}

func errSlice(parErr []float64, lo, hi int) []float64 {
	if parErr==nil { return nil }
	return parErr[lo:hi]
}
