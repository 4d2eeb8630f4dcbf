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


package kin

import (
	"fmt"
	"math"

	"github.com/mlnoga/diskfit/internal/beam"
	"github.com/mlnoga/diskfit/internal/curve"
	"github.com/mlnoga/diskfit/internal/geom"
)

// MockOpts parameterizes the synthetic galaxy generator. VT, V2T, V2R and
// Sig are per-radial-bin velocity and dispersion values; bin centers are
// spread evenly over [0, MaxR]. Angles are in degrees. All velocity
// amplitudes are projected (sin i is applied by the generator).
type MockOpts struct {
	Size int     // side length of the science part of the grid
	Inc  float64 // inclination [deg]
	PA   float64 // position angle [deg]
	PAB  float64 // position angle of the bisymmetric feature [deg]
	Vsys float64 // systemic velocity

	VT  []float64 // first-order tangential velocities per radial bin
	V2T []float64 // second-order tangential velocities
	V2R []float64 // second-order radial velocities
	Sig []float64 // velocity dispersions

	XC, YC float64 // center offset
	Reff   float64 // effective radius; 0 selects 10
	MaxR   float64 // maximum absolute coordinate value; 0 selects 15

	PSF    []float64 // smoothing kernel, science- or padded-grid sized; nil selects a default Gaussian
	Border float64   // border width in FWHM units to absorb convolution edges; 0 = none
	FWHM   float64   // kernel FWHM in coordinate units; 0 selects 2.44
}

// Mock builds a deterministic synthetic Kinematics instance: a border-
// padded coordinate grid, deprojected polar coordinates, per-radius
// interpolation of the supplied velocity and dispersion values, the
// Spekkens & Sellwood second-order velocity-field formula, a Sersic
// surface-brightness profile, and an attached (not applied) smoothing
// kernel. The border mask is recorded; activate it with Border().
func Mock(o MockOpts) (*Kinematics, error) {
	if len(o.VT)!=len(o.V2T) || len(o.VT)!=len(o.V2R) || len(o.VT)!=len(o.Sig) {
		return nil, fmt.Errorf("kinematics: mock velocity arrays must have the same length")
	}
	if len(o.VT)==0 { return nil, fmt.Errorf("kinematics: mock needs at least one radial bin") }
	if o.Size<2 { return nil, fmt.Errorf("kinematics: mock grid side must be at least 2") }
	if o.Reff==0 { o.Reff=10 }
	if o.MaxR==0 { o.MaxR=15 }
	if o.FWHM==0 { o.FWHM=2.44 }

	// pad the grid so convolution edge effects fall outside the science area
	r, size:=o.MaxR, o.Size
	if o.Border>0 {
		r=o.MaxR+o.Border*o.FWHM
		size=int(r/o.MaxR*float64(o.Size))+1
	}
	bsize:=(size-o.Size)/2
	npix:=size*size

	x:=make([]float64, npix)
	y:=make([]float64, npix)
	for i:=0; i<size; i++ {
		for j:=0; j<size; j++ {
			x[i*size+j]=-r+2*r*float64(j)/float64(size-1)
			y[i*size+j]=-r+2*r*float64(i)/float64(size-1)
		}
	}

	inc, pa, pab:=o.Inc*math.Pi/180, o.PA*math.Pi/180, o.PAB*math.Pi/180
	xc:=make([]float64, npix)
	yc:=make([]float64, npix)
	for i:=range x {
		xc[i]=x[i]-o.XC
		yc[i]=y[i]-o.YC
	}
	rad:=make([]float64, npix)
	th:=make([]float64, npix)
	geom.ProjectedPolar(xc, yc, pa, inc, rad, th)

	// bin centers of the radial sampling of the input curves
	cents:=make([]float64, len(o.VT))
	dr:=o.MaxR/float64(len(o.VT))
	for i:=range cents { cents[i]=dr*(float64(i)+0.5) }

	sini:=math.Sin(inc)
	vel:=make([]float64, npix)
	sig:=make([]float64, npix)
	sb:=make([]float64, npix)
	sersic:=curve.Sersic{}
	sbPar:=[]float64{1, 10, 1}
	for i:=range rad {
		vt:=interp1(rad[i], cents, o.VT)
		v2t:=interp1(rad[i], cents, o.V2T)
		v2r:=interp1(rad[i], cents, o.V2R)
		sig[i]=interp1(rad[i], cents, o.Sig)
		cosT, sinT:=math.Cos(th[i]), math.Sin(th[i])
		tb:=th[i]-pab
		vel[i]=o.Vsys + sini*(vt*cosT - v2t*math.Cos(2*tb)*cosT - v2r*math.Sin(2*tb)*sinT)
	}
	sersic.Sample(sb, rad, sbPar)

	psf:=o.PSF
	switch {
	case psf==nil:
		// kernel FWHM converted from coordinate units to pixels
		pixScale:=2*r/float64(size-1)
		psf=beam.Gaussian(size, o.FWHM/pixScale)
	case len(psf)==o.Size*o.Size && size>o.Size:
		// center a science-size kernel in the border-padded grid
		padded:=make([]float64, npix)
		off:=size/2-o.Size/2
		for i:=0; i<o.Size; i++ {
			copy(padded[(i+off)*size+off:], psf[i*o.Size:(i+1)*o.Size])
		}
		psf=padded
	case len(psf)!=npix:
		return nil, fmt.Errorf("kinematics: mock psf has %d elements; want %d or %d", len(psf), npix, o.Size*o.Size)
	}

	var borderMask []bool
	if o.Border>0 {
		borderMask=make([]bool, npix)
		for i:=0; i<size; i++ {
			for j:=0; j<size; j++ {
				if i<bsize || i>=size-bsize || j<bsize || j>=size-bsize {
					borderMask[i*size+j]=true
				}
			}
		}
	}

	binid:=make([]int, npix)
	for i:=range binid { binid[i]=i }

	return New(size, Maps{
		Vel: vel, X: x, Y: y, GridX: x, GridY: y,
		Sig: sig, SB: sb,
		PSF: psf, BinID: binid,
		Reff: o.Reff, FWHM: o.FWHM,
		BorderMask: borderMask,
	})
}

// interp1 linearly interpolates ys over xs at x, clamping outside the
// sampled range. xs must be ascending.
func interp1(x float64, xs, ys []float64) float64 {
	if x<=xs[0] { return ys[0] }
	if x>=xs[len(xs)-1] { return ys[len(ys)-1] }
	lo, hi:=0, len(xs)-1
	for hi-lo>1 {
		mid:=(lo+hi)/2
		if xs[mid]<=x { lo=mid } else { hi=mid }
	}
	f:=(x-xs[lo])/(xs[hi]-xs[lo])
	return ys[lo]+f*(ys[hi]-ys[lo])
}
