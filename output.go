package main

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// asciiPlot draws a crude vertical bar chart of values (0..1).
func asciiPlot(values []float64) {
	const height = 10 // number of text rows
	n := len(values)
	if n == 0 {
		fmt.Println("no data to plot")
		return
	}
	// for each row from top (height) down to 1
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		for _, v := range values {
			if v >= threshold {
				fmt.Print("█") // filled block
			} else {
				fmt.Print(" ")
			}
		}
		fmt.Println()
	}
	for range values {
		fmt.Print("─")
	}
	fmt.Println()
}

// printWeightRows prints each row of an attention weight matrix labeled
// with its query token, followed by a bar chart of the row. Attention
// weights are in [0,1], which is exactly what asciiPlot expects.
func printWeightRows(A *mat.Dense, queryToks, keyToks []string) {
	r, c := A.Dims()
	if r != len(queryToks) || c != len(keyToks) {
		// labels and matrix out of step; raw matrix was already printed
		return
	}
	for i := 0; i < r; i++ {
		fmt.Printf("%-12q attends to:", queryToks[i])
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = A.At(i, j)
			fmt.Printf("  %s=%.3f", keyToks[j], row[j])
		}
		fmt.Println()
	}
	// bar chart of the last row as a visual anchor
	fmt.Printf("weights for %q:\n", queryToks[r-1])
	asciiPlot(rowOf(A, r-1))
}

func rowOf(m *mat.Dense, i int) []float64 {
	_, c := m.Dims()
	out := make([]float64, c)
	for j := 0; j < c; j++ {
		out[j] = m.At(i, j)
	}
	return out
}
