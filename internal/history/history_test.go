package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingDefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewRing[float64](0).Cap())
	assert.Equal(t, DefaultCapacity, NewRing[float64](-4).Cap())
	assert.Equal(t, 7, NewRing[float64](7).Cap())
}

func TestRingEmpty(t *testing.T) {
	r := NewRing[float64](3)

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Values())
	_, ok := r.Latest()
	assert.False(t, ok)
}

func TestRingPartialFill(t *testing.T) {
	r := NewRing[float64](5)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []float64{1, 2, 3}, r.Values())
	assert.Equal(t, []float64{2, 3}, r.Last(2))
	assert.Equal(t, []float64{1, 2, 3}, r.Last(10))

	v, ok := r.Latest()
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestRingEvictsOldestAfterCapacityPlusK(t *testing.T) {
	const capacity = 4
	for k := 0; k <= 9; k++ {
		r := NewRing[float64](capacity)
		total := capacity + k
		for i := 1; i <= total; i++ {
			r.Push(float64(i))
			assert.LessOrEqual(t, r.Len(), capacity)
		}

		want := make([]float64, 0, capacity)
		for i := total - capacity + 1; i <= total; i++ {
			want = append(want, float64(i))
		}
		assert.Equal(t, want, r.Values(), "k=%d", k)
	}
}

func TestRingValuesIsCopy(t *testing.T) {
	r := NewRing[float64](2)
	r.Push(10)
	vals := r.Values()
	vals[0] = 99

	assert.Equal(t, []float64{10}, r.Values())
}

func TestRingResized(t *testing.T) {
	r := NewRing[float64](5)
	for i := 1; i <= 7; i++ {
		r.Push(float64(i))
	}

	smaller := r.Resized(2)
	assert.Equal(t, 2, smaller.Cap())
	assert.Equal(t, []float64{6, 7}, smaller.Values())

	larger := r.Resized(10)
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, larger.Values())
	larger.Push(8)
	assert.Equal(t, []float64{3, 4, 5, 6, 7, 8}, larger.Values())
}

func TestRingReset(t *testing.T) {
	r := NewRing[float64](3)
	r.Push(1)
	r.Push(2)
	r.Reset()

	assert.Equal(t, 0, r.Len())
	r.Push(5)
	assert.Equal(t, []float64{5}, r.Values())
}
