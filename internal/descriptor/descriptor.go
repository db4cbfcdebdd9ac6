// Package descriptor compares face descriptors by Euclidean distance.
package descriptor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidInput reports an empty or mismatched comparison request.
var ErrInvalidInput = errors.New("invalid descriptor input")

// parallelThreshold is the candidate count above which comparison is split
// across goroutines.
const parallelThreshold = 256

// Distance returns the Euclidean distance between two equal-length
// descriptors.
func Distance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: lengths %d and %d", ErrInvalidInput, len(a), len(b))
	}
	return euclidean(a, b), nil
}

// Distances returns the distance from ref to every candidate, in candidate
// order. All candidates must match the reference length; otherwise nothing
// is computed.
func Distances(ctx context.Context, ref []float32, candidates [][]float32) ([]float64, error) {
	if len(ref) == 0 {
		return nil, fmt.Errorf("%w: empty reference descriptor", ErrInvalidInput)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidInput)
	}
	for i, c := range candidates {
		if len(c) != len(ref) {
			return nil, fmt.Errorf("%w: candidate %d has length %d, reference has %d", ErrInvalidInput, i, len(c), len(ref))
		}
	}

	out := make([]float64, len(candidates))
	if len(candidates) < parallelThreshold {
		for i, c := range candidates {
			out[i] = euclidean(ref, c)
		}
		return out, nil
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(candidates) + workers - 1) / workers
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(candidates); start += chunk {
		start, end := start, min(start+chunk, len(candidates))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)%64 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				out[i] = euclidean(ref, candidates[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
