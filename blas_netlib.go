//go:build netlib

package main

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// This file forces linking against a system BLAS when you build with
// `-tags netlib`. Overkill for six-word sentences, but it makes the
// same binary usable for longer texts.
func init() {
	blas64.Use(netlib.Implementation{})
}
