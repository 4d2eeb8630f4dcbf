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


package geom

import (
	"math"
	"testing"
)

type polarTestCase struct {
	X, Y, PA, Inc float64
	R, Theta      float64
}

func TestProjectedPolarAt(t *testing.T) {
	epsilon:=1e-12
	tcs:=[]polarTestCase{
		// face-on, no position angle: plain polar coordinates
		{1, 0, 0, 0, 1, 0},
		{0, 1, 0, 0, 1, math.Pi / 2},
		{-1, 0, 0, 0, 1, math.Pi},
		{3, 4, 0, 0, 5, math.Atan2(4, 3)},
		// position angle rotates the major axis onto the point
		{0, 1, math.Pi / 2, 0, 1, 0},
		{1, 0, math.Pi / 2, 0, 1, -math.Pi / 2},
		// inclination stretches the minor axis only
		{2, 0, 0, math.Pi / 3, 2, 0},
		{0, 1, 0, math.Pi / 3, 2, math.Pi / 2},
	}

	for _, tc:=range tcs {
		r, theta:=ProjectedPolarAt(tc.X, tc.Y, tc.PA, tc.Inc)
		if math.Abs(r-tc.R)>epsilon {
			t.Errorf("x=%f y=%f pa=%f inc=%f: r=%f; want %f", tc.X, tc.Y, tc.PA, tc.Inc, r, tc.R)
		}
		if math.Abs(theta-tc.Theta)>epsilon {
			t.Errorf("x=%f y=%f pa=%f inc=%f: theta=%f; want %f", tc.X, tc.Y, tc.PA, tc.Inc, theta, tc.Theta)
		}
	}
}

func TestProjectedPolarMatchesAt(t *testing.T) {
	xs:=[]float64{0, 1, -2, 3.5, -0.25}
	ys:=[]float64{1, -1, 0.5, 2, -3}
	r:=make([]float64, len(xs))
	theta:=make([]float64, len(xs))
	pa, inc:=0.7, 1.1
	ProjectedPolar(xs, ys, pa, inc, r, theta)
	for i:=range xs {
		ri, ti:=ProjectedPolarAt(xs[i], ys[i], pa, inc)
		if r[i]!=ri || theta[i]!=ti {
			t.Errorf("i=%d: vector form (%f,%f) differs from point form (%f,%f)", i, r[i], theta[i], ri, ti)
		}
	}
}

func TestProjectedPolarNearEdgeOn(t *testing.T) {
	// close to edge-on the minor axis blows up but stays finite
	r, _:=ProjectedPolarAt(0, 1, 0, 89.0*math.Pi/180)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		t.Errorf("r=%f near edge-on; want finite", r)
	}
	if r<50 {
		t.Errorf("r=%f near edge-on; want strong minor-axis stretch", r)
	}
}
