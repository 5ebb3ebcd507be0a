package scaler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNew(t *testing.T) {
	for _, s := range []float64{ScaleLow, ScaleHigh} {
		sc, err := New(s)
		require.NoError(t, err)
		assert.Equal(t, s, sc.Scale())
	}

	for _, s := range []float64{0, -1, 2, 1.5} {
		_, err := New(s)
		assert.Error(t, err, "scale %v should be rejected", s)
	}
}

func TestForQuality(t *testing.T) {
	low, err := ForQuality("low")
	require.NoError(t, err)
	assert.Equal(t, ScaleLow, low.Scale())

	high, err := ForQuality(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, ScaleHigh, high.Scale())

	def, err := ForQuality("")
	require.NoError(t, err)
	assert.Equal(t, ScaleLow, def.Scale())

	_, err = ForQuality("medium")
	assert.ErrorContains(t, err, "invalid screenshot quality")
}

func TestToReal(t *testing.T) {
	high, _ := New(ScaleHigh)

	tests := []struct {
		name       string
		x, y       int
		wantX, wantY int
	}{
		{"exact multiple", 300, 150, 100, 50},
		{"truncates", 301, 152, 100, 50},
		{"below one viewport pixel", 2, 1, 0, 0},
		{"negative truncates toward zero", -4, -2, -1, 0},
		{"origin", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := high.ToReal(tt.x, tt.y)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}

	assert.InDelta(t, 33.333, high.ToRealDistance(100), 0.001)
}

func TestToRealDistanceStaysPositive(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		scale := rapid.SampledFrom([]float64{ScaleLow, ScaleHigh}).Draw(rt, "scale")
		sc, _ := New(scale)
		d := rapid.IntRange(1, 100000).Draw(rt, "d")

		got := sc.ToRealDistance(d)
		if got <= 0 {
			rt.Fatalf("distance %d became %v at scale %v", d, got, scale)
		}
		if back, _ := sc.ToLogical(got, 0); math.Abs(back-float64(d)) > 1e-9 {
			rt.Fatalf("distance %d round-tripped to %v", d, back)
		}
	})
}

func TestToRealProperties(t *testing.T) {
	t.Run("identity at low scale", func(t *testing.T) {
		low, _ := New(ScaleLow)
		rapid.Check(t, func(rt *rapid.T) {
			x := rapid.IntRange(-100000, 100000).Draw(rt, "x")
			y := rapid.IntRange(-100000, 100000).Draw(rt, "y")
			gx, gy := low.ToReal(x, y)
			if gx != x || gy != y {
				rt.Fatalf("ToReal(%d,%d) = (%d,%d) at scale 1", x, y, gx, gy)
			}
		})
	})

	t.Run("deterministic and bounded", func(t *testing.T) {
		rapid.Check(t, func(rt *rapid.T) {
			scale := rapid.SampledFrom([]float64{ScaleLow, ScaleHigh}).Draw(rt, "scale")
			sc, _ := New(scale)
			x := rapid.IntRange(0, 100000).Draw(rt, "x")
			y := rapid.IntRange(0, 100000).Draw(rt, "y")

			ax, ay := sc.ToReal(x, y)
			bx, by := sc.ToReal(x, y)
			if ax != bx || ay != by {
				rt.Fatalf("non-deterministic: (%d,%d) vs (%d,%d)", ax, ay, bx, by)
			}
			// Floor semantics for non-negative inputs: real*scale <= logical < (real+1)*scale.
			if float64(ax)*scale > float64(x) || float64(ax+1)*scale <= float64(x) {
				rt.Fatalf("x=%d scaled to %d breaks floor bound at scale %v", x, ax, scale)
			}
		})
	})
}

func TestToLogical(t *testing.T) {
	high, _ := New(ScaleHigh)
	x, y := high.ToLogical(100, 50.5)
	assert.Equal(t, 300.0, x)
	assert.Equal(t, 151.5, y)
}
