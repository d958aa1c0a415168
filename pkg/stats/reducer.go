package stats

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownReducer = errors.New("unknown reducer")

// Reducer collapses the valid observations of one pixel into a single value.
// It is never called with an empty slice.
type Reducer func(x []float64) float64

var reducers = map[string]Reducer{
	"mean":   Mean,
	"median": Median,
	"mode":   Mode,
	"max":    Max,
	"min":    Min,
	"sum":    Sum,
}

// Lookup resolves a reducer by name.
func Lookup(name string) (Reducer, error) {
	r, ok := reducers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownReducer, name, strings.Join(Names(), ", "))
	}
	return r, nil
}

// Names lists the registered reducers in sorted order.
func Names() []string {
	out := make([]string, 0, len(reducers))
	for k := range reducers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
