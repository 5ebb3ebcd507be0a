// Package scaler converts coordinates measured on a captured screenshot into
// real viewport coordinates.
//
// Screenshots may be rendered at a magnification factor ("high" quality is
// three times the viewport's CSS pixel size). Agents report positions in
// screenshot pixels; every coordinate-bearing call divides by the factor and
// truncates toward zero before anything is dispatched.
package scaler

import (
	"fmt"
	"strings"
)

const (
	// ScaleLow is the identity: screenshot pixels are viewport pixels.
	ScaleLow = 1.0
	// ScaleHigh renders screenshots at three times the viewport resolution.
	ScaleHigh = 3.0
)

// Scaler is immutable once constructed.
type Scaler struct {
	scale float64
}

// New accepts only the supported factors.
func New(scale float64) (*Scaler, error) {
	if scale != ScaleLow && scale != ScaleHigh {
		return nil, fmt.Errorf("unsupported screenshot scale %v: must be %v or %v", scale, ScaleLow, ScaleHigh)
	}
	return &Scaler{scale: scale}, nil
}

// ForQuality maps the quality names used in configuration to a Scaler.
func ForQuality(quality string) (*Scaler, error) {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "", "low":
		return &Scaler{scale: ScaleLow}, nil
	case "high":
		return &Scaler{scale: ScaleHigh}, nil
	}
	return nil, fmt.Errorf("invalid screenshot quality %q: use 'low' or 'high'", quality)
}

// Scale returns the magnification factor.
func (s *Scaler) Scale() float64 { return s.scale }

// ToReal converts a screenshot position into viewport coordinates.
func (s *Scaler) ToReal(x, y int) (int, int) {
	return s.toReal(x), s.toReal(y)
}

// ToRealDistance converts a screenshot-space length. Lengths are not
// truncated: a gesture may travel a fraction of a viewport pixel, and a
// positive length must stay positive.
func (s *Scaler) ToRealDistance(d int) float64 {
	return float64(d) / s.scale
}

// ToLogical converts viewport coordinates back to screenshot space.
func (s *Scaler) ToLogical(x, y float64) (float64, float64) {
	return x * s.scale, y * s.scale
}

// int() conversion truncates toward zero, so negative inputs mirror positive ones.
func (s *Scaler) toReal(v int) int {
	return int(float64(v) / s.scale)
}
