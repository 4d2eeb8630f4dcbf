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


package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/diskfit/internal/curve"
	"github.com/mlnoga/diskfit/internal/disk"
	"github.com/mlnoga/diskfit/internal/kin"
)

func Serve() {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/ping",    getPing)
			v1.POST("/model",   postModel)
			v1.POST("/mockfit", postMockFit)
		}
	}
	r.Run() // listen and serve on 0.0.0.0:8080
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type modelArgs struct {
	Model string    `json:"model"`   // "axisym" or "bisym"
	RC    string    `json:"rc"`      // rotation curve family
	DC    string    `json:"dc"`      // dispersion profile family, "" for none
	Par   []float64 `json:"par"`     // full parameter vector, nil for the default guess
	Size  int       `json:"size"`    // side of the square evaluation grid
}

// diskModel is the surface shared by the two disk model families.
type diskModel interface {
	NPar() int
	SetGrid(x, y []float64, n int) error
	Model(par []float64, ignoreBeam bool) (vel, sig []float64, err error)
	LSQFit(k *kin.Kinematics, opts disk.FitOptions) (*disk.FitResult, error)
	Report(w io.Writer, res *disk.FitResult)
}

func newModel(model, rcName, dcName string) (diskModel, error) {
	var rc, dc curve.Curve
	var err error
	if rcName!="" {
		if rc, err=curve.ByName(rcName); err!=nil { return nil, err }
	}
	if dcName!="" {
		if dc, err=curve.ByName(dcName); err!=nil { return nil, err }
	}
	switch model {
	case "", "axisym": return disk.NewAxisymmetricDisk(rc, dc), nil
	case "bisym":      return disk.NewBisymmetricDisk(rc, nil, nil, dc), nil
	}
	return nil, fmt.Errorf("unknown disk model %s; use axisym or bisym", model)
}

func postModel(c *gin.Context) {
	var args modelArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.Size<2 { args.Size=40 }

	d, err:=newModel(args.Model, args.RC, args.DC)
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	k, err:=kin.New(args.Size, kin.Maps{Vel: make([]float64, args.Size*args.Size)})
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if err:=d.SetGrid(k.GridX, k.GridY, args.Size); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	vel, sig, err:=d.Model(args.Par, true)
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"size": args.Size,
		"vel":  vel,
		"sig":  sig,
	})
}

type mockFitArgs struct {
	Model string    `json:"model"`
	RC    string    `json:"rc"`
	DC    string    `json:"dc"`

	Size   int       `json:"size"`
	Inc    float64   `json:"inc"`
	PA     float64   `json:"pa"`
	PAB    float64   `json:"pab"`
	Vsys   float64   `json:"vsys"`
	VT     []float64 `json:"vt"`
	V2T    []float64 `json:"v2t"`
	V2R    []float64 `json:"v2r"`
	Sig    []float64 `json:"sig"`
	Border float64   `json:"border"`

	VelNoise float64 `json:"velNoise"`
	SigNoise float64 `json:"sigNoise"`

	Scatter    []float64 `json:"scatter"`
	NelderMead bool      `json:"nelderMead"`
}

func postMockFit(c *gin.Context) {
	logWriter := c.Writer
	var args mockFitArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	if args.Size==0 { args.Size=40 }
	k, err:=kin.Mock(kin.MockOpts{
		Size: args.Size, Inc: args.Inc, PA: args.PA, PAB: args.PAB, Vsys: args.Vsys,
		VT: args.VT, V2T: args.V2T, V2R: args.V2R, Sig: args.Sig,
		Border: args.Border,
	})
	if err!=nil {
		fmt.Fprintf(logWriter, "Error generating mock data: %s\n", err.Error())
		return
	}
	if args.VelNoise>0 || args.SigNoise>0 {
		k.AddNoise(args.VelNoise, args.SigNoise)
	}
	if args.Border>0 {
		if err:=k.Border(); err!=nil {
			fmt.Fprintf(logWriter, "Error applying border mask: %s\n", err.Error())
			return
		}
	}

	d, err:=newModel(args.Model, args.RC, args.DC)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error building model: %s\n", err.Error())
		return
	}
	res, err:=d.LSQFit(k, disk.FitOptions{Scatter: args.Scatter, NelderMead: args.NelderMead})
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		return
	}
	d.Report(logWriter, res)
	logWriter.(http.Flusher).Flush()
}
