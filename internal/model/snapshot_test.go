package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		in      string
		want    SortKey
		wantErr bool
	}{
		{in: "cpu", want: SortCPU},
		{in: "CPU", want: SortCPU},
		{in: "mem", want: SortMemory},
		{in: " memory ", want: SortMemory},
		{in: "disk", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSortKey(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortKeyValueAndToggle(t *testing.T) {
	p := Process{PID: 1, CPUPercent: 3.5, MemoryPercent: 7.25}

	assert.Equal(t, 3.5, SortCPU.Value(p))
	assert.Equal(t, 7.25, SortMemory.Value(p))
	assert.Equal(t, SortMemory, SortCPU.Toggle())
	assert.Equal(t, SortCPU, SortMemory.Toggle())
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0.0, ClampPercent(-3))
	assert.Equal(t, 0.0, ClampPercent(math.NaN()))
	assert.Equal(t, 42.5, ClampPercent(42.5))
	assert.Equal(t, 100.0, ClampPercent(100.0001))
}
