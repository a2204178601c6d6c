// Package scale describes the set of values a judge may award.
package scale

import (
	"fmt"
	"math"
	"slices"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// stepTolerance absorbs float noise when checking that a value sits on a step.
const stepTolerance = 1e-9

// Default scale: 0..5 in whole points.
const (
	DefaultMin  = 0.0
	DefaultMax  = 5.0
	DefaultStep = 1.0
)

// Scale bounds the values a judge may submit. Bounds are inclusive.
// A scale is discrete when it has enumerated values or a positive step,
// continuous otherwise.
type Scale struct {
	min    float64
	max    float64
	step   float64
	values []float64
}

// Option applies a configuration option to a Scale.
type Option func(*Scale)

// WithBounds sets inclusive bounds. Ignored when lo > hi.
func WithBounds(lo, hi float64) Option {
	return func(s *Scale) {
		if lo <= hi {
			s.min = lo
			s.max = hi
		}
	}
}

// WithStep sets the step between allowed values, counted from the lower bound.
// A zero step makes the scale continuous.
func WithStep(step float64) Option {
	return func(s *Scale) {
		if step >= 0 {
			s.step = step
		}
	}
}

// WithValues enumerates the allowed values. Bounds follow the enumeration.
func WithValues(values ...float64) Option {
	return func(s *Scale) {
		if len(values) == 0 {
			return
		}
		s.values = append([]float64(nil), values...)
		slices.Sort(s.values)
		s.values = slices.Compact(s.values)
		s.min = s.values[0]
		s.max = s.values[len(s.values)-1]
	}
}

// New builds a Scale, defaulting to 0..5 in whole points.
func New(opts ...Option) Scale {
	s := Scale{min: DefaultMin, max: DefaultMax, step: DefaultStep}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Min returns the lower bound.
func (s Scale) Min() float64 { return s.min }

// Max returns the upper bound.
func (s Scale) Max() float64 { return s.max }

// Discrete reports whether only enumerated or stepped values are allowed.
func (s Scale) Discrete() bool { return len(s.values) > 0 || s.step > 0 }

// Values lists the allowed values of a discrete scale, nil for a continuous one.
func (s Scale) Values() []float64 {
	if len(s.values) > 0 {
		return append([]float64(nil), s.values...)
	}
	if s.step <= 0 {
		return nil
	}
	var out []float64
	for i := 0; ; i++ {
		v := s.min + float64(i)*s.step
		if v > s.max+stepTolerance {
			break
		}
		out = append(out, math.Round(v*1e9)/1e9)
	}
	return out
}

// Validate returns an error wrapping model.ErrInvalidScore when v is not allowed.
func (s Scale) Validate(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: value %v is not a number", model.ErrInvalidScore, v)
	}
	if v < s.min-stepTolerance || v > s.max+stepTolerance {
		return fmt.Errorf("%w: value %v outside [%v, %v]", model.ErrInvalidScore, v, s.min, s.max)
	}
	if len(s.values) > 0 {
		for _, allowed := range s.values {
			if math.Abs(allowed-v) <= stepTolerance {
				return nil
			}
		}
		return fmt.Errorf("%w: value %v is not one of %v", model.ErrInvalidScore, v, s.values)
	}
	if s.step > 0 {
		k := (v - s.min) / s.step
		if math.Abs(k-math.Round(k)) > stepTolerance {
			return fmt.Errorf("%w: value %v is not a multiple of step %v from %v", model.ErrInvalidScore, v, s.step, s.min)
		}
	}
	return nil
}
