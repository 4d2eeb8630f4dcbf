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

// csr is a compressed sparse row matrix. It is the representation of the
// bin-aggregation operator: one row per unique measurement, one column per
// grid cell, each row holding weight 1/binsize on the cells of that bin.
type csr struct {
	rows, cols int
	rowPtr     []int // length rows+1
	colInd     []int
	val        []float64
}

// mulVec computes dst = M*v. dst must have length rows, v length cols.
func (m *csr) mulVec(dst, v []float64) {
	for i:=0; i<m.rows; i++ {
		sum:=0.0
		for p:=m.rowPtr[i]; p<m.rowPtr[i+1]; p++ {
			sum+=m.val[p]*v[m.colInd[p]]
		}
		dst[i]=sum
	}
}

// rowSum returns the sum of the weights in row i.
func (m *csr) rowSum(i int) float64 {
	sum:=0.0
	for p:=m.rowPtr[i]; p<m.rowPtr[i+1]; p++ { sum+=m.val[p] }
	return sum
}

// newIdentityCSR builds the n x n identity operator, the bin transform of
// unbinned data where every cell is its own measurement.
func newIdentityCSR(n int) *csr {
	m:=&csr{rows: n, cols: n, rowPtr: make([]int, n+1), colInd: make([]int, n), val: make([]float64, n)}
	for i:=0; i<n; i++ {
		m.rowPtr[i]=i
		m.colInd[i]=i
		m.val[i]=1
	}
	m.rowPtr[n]=n
	return m
}

// newBinCSR builds the row-normalized averaging operator for the given
// per-cell bin assignment. bins[t] is the bin index of grid cell
// cells[t]; counts holds the number of cells per bin. The resulting rows
// each sum to one.
func newBinCSR(nbin, ncell int, cells, bins, counts []int) *csr {
	m:=&csr{rows: nbin, cols: ncell, rowPtr: make([]int, nbin+1)}
	for _, b:=range bins { m.rowPtr[b+1]++ }
	for i:=0; i<nbin; i++ { m.rowPtr[i+1]+=m.rowPtr[i] }
	nnz:=m.rowPtr[nbin]
	m.colInd=make([]int, nnz)
	m.val=make([]float64, nnz)
	next:=make([]int, nbin)
	copy(next, m.rowPtr[:nbin])
	for t, b:=range bins {
		p:=next[b]
		next[b]++
		m.colInd[p]=cells[t]
		m.val[p]=1/float64(counts[b])
	}
	return m
}
