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


// Package curve provides one-dimensional parametric profile families used
// by the disk models: rotation curves, second-order flow amplitudes and
// velocity-dispersion profiles.
//
// Velocity amplitudes are fit in projection, i.e. the amplitude parameter
// of a rotation curve is V*sin(i); the disk models never multiply by
// sin(inclination) again.
package curve

import (
	"math"
)

// A Curve is a 1D profile family with a fixed number of parameters.
type Curve interface {
	// NPar returns the number of parameters of the family.
	NPar() int
	// GuessPar returns a fresh default-guess parameter vector of length NPar.
	GuessPar() []float64
	// Bounds returns fresh lower and upper bound vectors of length NPar.
	Bounds() (lb, ub []float64)
	// Sample evaluates the profile at the given radii with the given
	// parameters, writing into dst. dst and r must have equal length and
	// par must have length NPar.
	Sample(dst, r, par []float64)
	// ParNames returns human-readable parameter names, length NPar.
	ParNames() []string
}

// Tanh is a hyperbolic-tangent rotation curve, vmax*tanh(r/h). The
// amplitude is the projected asymptotic rotation speed.
type Tanh struct{}

func (Tanh) NPar() int            { return 2 }
func (Tanh) GuessPar() []float64  { return []float64{100, 5} }
func (Tanh) ParNames() []string   { return []string{"vmax", "h"} }
func (Tanh) Bounds() (lb, ub []float64) {
	return []float64{0, 0.1}, []float64{500, 100}
}
func (Tanh) Sample(dst, r, par []float64) {
	vmax, h:=par[0], par[1]
	for i:=range r { dst[i]=vmax*math.Tanh(r[i]/h) }
}

// PowerExp is an amplitude profile rising from zero,
// a*(1-exp(-r/h))*(r/h)^g, used for second-order flow terms.
type PowerExp struct{}

func (PowerExp) NPar() int           { return 3 }
func (PowerExp) GuessPar() []float64 { return []float64{10, 5, 0.5} }
func (PowerExp) ParNames() []string  { return []string{"a", "h", "g"} }
func (PowerExp) Bounds() (lb, ub []float64) {
	return []float64{0, 0.1, 0}, []float64{500, 100, 1}
}
func (PowerExp) Sample(dst, r, par []float64) {
	a, h, g:=par[0], par[1], par[2]
	for i:=range r {
		x:=r[i]/h
		dst[i]=a*(1-math.Exp(-x))*math.Pow(x, g)
	}
}

// Exp is an exponentially declining dispersion profile, s0*exp(-r/h).
type Exp struct{}

func (Exp) NPar() int           { return 2 }
func (Exp) GuessPar() []float64 { return []float64{50, 10} }
func (Exp) ParNames() []string  { return []string{"sigma0", "h"} }
func (Exp) Bounds() (lb, ub []float64) {
	return []float64{0, 0.1}, []float64{350, 100}
}
func (Exp) Sample(dst, r, par []float64) {
	s0, h:=par[0], par[1]
	for i:=range r { dst[i]=s0*math.Exp(-r[i]/h) }
}

// ExpBase is an exponential dispersion profile with a constant floor,
// sb + s0*exp(-r/h).
type ExpBase struct{}

func (ExpBase) NPar() int           { return 3 }
func (ExpBase) GuessPar() []float64 { return []float64{50, 10, 10} }
func (ExpBase) ParNames() []string  { return []string{"sigma0", "h", "sigmab"} }
func (ExpBase) Bounds() (lb, ub []float64) {
	return []float64{0, 0.1, 0}, []float64{350, 100, 100}
}
func (ExpBase) Sample(dst, r, par []float64) {
	s0, h, sb:=par[0], par[1], par[2]
	for i:=range r { dst[i]=sb+s0*math.Exp(-r[i]/h) }
}

// Const is a radially constant profile.
type Const struct{}

func (Const) NPar() int           { return 1 }
func (Const) GuessPar() []float64 { return []float64{30} }
func (Const) ParNames() []string  { return []string{"c"} }
func (Const) Bounds() (lb, ub []float64) {
	return []float64{0}, []float64{350}
}
func (Const) Sample(dst, r, par []float64) {
	for i:=range r { dst[i]=par[0] }
}

// Sersic is a Sersic surface-brightness profile,
// I0*exp(-b_n*((r/reff)^(1/n)-1)), used for mock galaxy light.
type Sersic struct{}

func (Sersic) NPar() int           { return 3 }
func (Sersic) GuessPar() []float64 { return []float64{1, 10, 1} }
func (Sersic) ParNames() []string  { return []string{"I0", "reff", "n"} }
func (Sersic) Bounds() (lb, ub []float64) {
	return []float64{0, 0.1, 0.3}, []float64{1e3, 100, 8}
}
func (Sersic) Sample(dst, r, par []float64) {
	i0, reff, n:=par[0], par[1], par[2]
	bn:=2*n - 1.0/3 // Ciotti & Bertin approximation, adequate for n>=0.5
	for i:=range r {
		dst[i]=i0*math.Exp(-bn*(math.Pow(r[i]/reff, 1/n)-1))
	}
}
