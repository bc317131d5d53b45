//go:build cgo

package main

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// Route gonum matrix products through the system BLAS (Accelerate on macOS,
// OpenBLAS on Linux).
func init() {
	blas64.Use(netlib.Implementation{})
	log.Debug().Msg("netlib BLAS enabled")
}
