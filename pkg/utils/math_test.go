package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("got %v", v)
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestNormalizeByMax(t *testing.T) {
	got := NormalizeByMax(map[string]float64{"a": 2, "b": 1, "c": 0})
	if got["a"] != 1 || got["b"] != 0.5 || got["c"] != 0 {
		t.Errorf("got %v", got)
	}
	allZero := NormalizeByMax(map[int64]float64{1: 0, 2: 0})
	if allZero[1] != 0 || allZero[2] != 0 {
		t.Errorf("got %v", allZero)
	}
	if MaxValue(map[int]float64{}) != 0 {
		t.Error("empty max should be 0")
	}
	if MaxValue(map[int]float64{1: -2, 2: -1}) != -1 {
		t.Error("max of negatives")
	}
}
