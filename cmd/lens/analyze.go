package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/fxamacker/cbor/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-lens/internal/analysis"
)

// analyzeRequest is the CBOR body accepted by the analyze command and the
// /analyze endpoint.
type analyzeRequest struct {
	Matrix    [][]float64 `cbor:"matrix" json:"matrix"`
	Tokens    []string    `cbor:"tokens" json:"tokens"`
	InputType string      `cbor:"input_type" json:"input_type"`
}

// dense checks the request shape and returns the matrix. The analysis core
// does not validate its input, so every external edge must.
func (r *analyzeRequest) dense() (*mat.Dense, error) {
	n := len(r.Matrix)
	if n == 0 {
		return nil, errors.New("matrix is empty")
	}
	if len(r.Tokens) != n {
		return nil, fmt.Errorf("got %d tokens for a %dx%d matrix", len(r.Tokens), n, n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range r.Matrix {
		if len(row) != n {
			return nil, fmt.Errorf("matrix is not square: row %d has %d columns, want %d", i, len(row), n)
		}
		for j, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("invalid attention weight %v at (%d,%d)", v, i, j)
			}
		}
		data = append(data, row...)
	}
	return mat.NewDense(n, n, data), nil
}

func (r *analyzeRequest) analyze() (analysis.Result, error) {
	m, err := r.dense()
	if err != nil {
		return analysis.Result{}, err
	}
	return analysis.Analyze(m, r.Tokens, analysis.InputType(r.InputType)), nil
}

func analyzeCmd(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	inPath := fs.String("in", "", "Read the CBOR request from this file instead of stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var req analyzeRequest
	if err := cbor.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	res, err := req.analyze()
	if err != nil {
		return err
	}
	return cbor.NewEncoder(stdout).Encode(res)
}
