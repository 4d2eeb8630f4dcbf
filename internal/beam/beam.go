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


// Package beam constructs instrumental smoothing kernels and applies them
// to surface-brightness, velocity and velocity-dispersion fields.
//
// Kernels are stored as flat row-major n x n float64 slices with the kernel
// center at pixel (n/2, n/2). For convolution the kernel is cyclically
// shifted so that its center lands on index 0 before the forward transform,
// matching the usual FFT convention for centered point-spread functions.
package beam

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Gaussian returns a circular Gaussian kernel with the given full width at
// half maximum in pixels, centered at (n/2, n/2) and normalized to unit sum.
func Gaussian(n int, fwhm float64) []float64 {
	sigma:=fwhm/(2*math.Sqrt(2*math.Log(2)))
	c:=n/2
	k:=make([]float64, n*n)
	sum:=0.0
	for y:=0; y<n; y++ {
		for x:=0; x<n; x++ {
			dx, dy:=float64(x-c), float64(y-c)
			v:=math.Exp(-0.5*(dx*dx+dy*dy)/(sigma*sigma))
			k[y*n+x]=v
			sum+=v
		}
	}
	for i:=range k { k[i]/=sum }
	return k
}

// IFFTShift cyclically shifts a centered n x n kernel so that the center
// pixel (n/2, n/2) moves to index (0, 0).
func IFFTShift(k []float64, n int) []float64 {
	c:=n/2
	out:=make([]float64, n*n)
	for y:=0; y<n; y++ {
		sy:=(y+c)%n
		for x:=0; x<n; x++ {
			sx:=(x+c)%n
			out[y*n+x]=k[sy*n+sx]
		}
	}
	return out
}

// FFT computes the 2D Fourier transform of a centered n x n kernel,
// applying the IFFTShift first. The result is the transfer function used
// by Smear.
func FFT(kernel []float64, n int) []complex128 {
	shifted:=IFFTShift(kernel, n)
	buf:=make([]complex128, n*n)
	for i, v:=range shifted { buf[i]=complex(v, 0) }
	fft2(buf, n, false)
	return buf
}

// ConstructBeam builds the effective smoothing kernel transfer function
// from a seeing PSF and an aperture image. If only one of the two is given,
// its transform is returned; if both are given, the transforms multiply,
// which convolves the kernels. Returns nil if neither is given.
func ConstructBeam(psf, aperture []float64, n int) []complex128 {
	if psf==nil && aperture==nil { return nil }
	if psf==nil { return FFT(aperture, n) }
	if aperture==nil { return FFT(psf, n) }
	p:=FFT(psf, n)
	a:=FFT(aperture, n)
	for i:=range p { p[i]*=a[i] }
	return p
}

// Kernel renders the transfer function back into a centered n x n kernel
// image, the inverse of FFT.
func Kernel(beamFFT []complex128, n int) []float64 {
	buf:=make([]complex128, n*n)
	copy(buf, beamFFT)
	fft2(buf, n, true)
	shifted:=make([]float64, n*n)
	for i, v:=range buf { shifted[i]=real(v) }
	// undo the IFFTShift: move index 0 back to the center
	c:=(n+1)/2
	out:=make([]float64, n*n)
	for y:=0; y<n; y++ {
		sy:=(y+c)%n
		for x:=0; x<n; x++ {
			sx:=(x+c)%n
			out[y*n+x]=shifted[sy*n+sx]
		}
	}
	return out
}

// Convolve applies the transfer function to a single n x n field.
func Convolve(field []float64, beamFFT []complex128, n int) []float64 {
	buf:=make([]complex128, n*n)
	for i, v:=range field { buf[i]=complex(v, 0) }
	fft2(buf, n, false)
	for i:=range buf { buf[i]*=beamFFT[i] }
	fft2(buf, n, true)
	out:=make([]float64, n*n)
	for i, v:=range buf { out[i]=real(v) }
	return out
}

// Smear applies beam smearing to a set of kinematic fields. The velocity
// and dispersion fields are not convolved independently: the beam mixes the
// true dispersion with the local velocity gradient, so the surface-
// brightness-weighted first and second moments are convolved and the
// smeared velocity and dispersion are recovered from those. A nil sb uses
// uniform weighting; a nil sig skips the dispersion moment. A nil beamFFT
// returns the inputs unchanged.
//
// Returns the smeared surface brightness, velocity and dispersion fields.
func Smear(sb, vel, sig []float64, beamFFT []complex128, n int) (msb, mvel, msig []float64, err error) {
	if beamFFT==nil { return sb, vel, sig, nil }
	if len(vel)!=n*n { return nil, nil, nil, fmt.Errorf("beam: velocity field has %d elements; want %d", len(vel), n*n) }
	if len(beamFFT)!=n*n { return nil, nil, nil, fmt.Errorf("beam: transfer function has %d elements; want %d", len(beamFFT), n*n) }

	wgt:=sb
	if wgt==nil {
		wgt=make([]float64, n*n)
		for i:=range wgt { wgt[i]=1 }
	}

	// zeroth moment: flux
	msb=Convolve(wgt, beamFFT, n)

	// first moment: flux-weighted velocity
	m1:=make([]float64, n*n)
	for i:=range m1 { m1[i]=wgt[i]*vel[i] }
	mvel=Convolve(m1, beamFFT, n)
	for i:=range mvel {
		if msb[i]!=0 { mvel[i]/=msb[i] } else { mvel[i]=0 }
	}

	if sig==nil { return msb, mvel, nil, nil }

	// second moment: flux-weighted velocity square plus dispersion square
	m2:=make([]float64, n*n)
	for i:=range m2 { m2[i]=wgt[i]*(vel[i]*vel[i]+sig[i]*sig[i]) }
	msig=Convolve(m2, beamFFT, n)
	for i:=range msig {
		if msb[i]!=0 { msig[i]/=msb[i] } else { msig[i]=0 }
		s2:=msig[i]-mvel[i]*mvel[i]
		if s2>0 { msig[i]=math.Sqrt(s2) } else { msig[i]=0 }
	}
	return msb, mvel, msig, nil
}

// fft2 transforms an n x n complex buffer in place, rows then columns.
// The inverse transform includes the 1/n^2 normalization.
func fft2(buf []complex128, n int, inverse bool) {
	fft:=fourier.NewCmplxFFT(n)
	row:=make([]complex128, n)
	for y:=0; y<n; y++ {
		copy(row, buf[y*n:(y+1)*n])
		if inverse {
			fft.Sequence(buf[y*n:(y+1)*n], row)
		} else {
			fft.Coefficients(buf[y*n:(y+1)*n], row)
		}
	}
	col:=make([]complex128, n)
	out:=make([]complex128, n)
	for x:=0; x<n; x++ {
		for y:=0; y<n; y++ { col[y]=buf[y*n+x] }
		if inverse {
			fft.Sequence(out, col)
		} else {
			fft.Coefficients(out, col)
		}
		for y:=0; y<n; y++ { buf[y*n+x]=out[y] }
	}
	if inverse {
		scale:=1/float64(n*n)
		for i:=range buf { buf[i]*=complex(scale, 0) }
	}
}
