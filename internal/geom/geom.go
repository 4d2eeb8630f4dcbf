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


// Package geom deprojects on-sky Cartesian coordinates into the polar
// coordinates of an inclined galaxy disk plane.
package geom

import (
	"math"
)

// ProjectedPolar converts the on-sky Cartesian coordinates x and y into the
// in-plane polar radius r and azimuth theta of a disk with position angle pa
// and inclination inc (both in radians). The coordinates are first rotated
// into the major/minor axis frame, then the minor axis is stretched by
// 1/cos(inc) to undo the projection. Theta is measured from the receding
// side of the major axis.
//
// The results are written into r and theta, which must have the same length
// as x and y. At inc near 90 degrees the minor axis deprojection diverges;
// callers relying on derivatives there must bound the inclination themselves.
func ProjectedPolar(x, y []float64, pa, inc float64, r, theta []float64) {
	cosPA, sinPA:=math.Cos(pa), math.Sin(pa)
	cosI:=math.Cos(inc)
	for i:=range x {
		maj:= x[i]*cosPA + y[i]*sinPA
		min:=(y[i]*cosPA - x[i]*sinPA)/cosI
		r[i]    =math.Hypot(maj, min)
		theta[i]=math.Atan2(min, maj)
	}
}

// ProjectedPolarAt is the single-point form of ProjectedPolar.
func ProjectedPolarAt(x, y, pa, inc float64) (r, theta float64) {
	cosPA, sinPA:=math.Cos(pa), math.Sin(pa)
	maj:= x*cosPA + y*sinPA
	min:=(y*cosPA - x*sinPA)/math.Cos(inc)
	return math.Hypot(maj, min), math.Atan2(min, maj)
}
