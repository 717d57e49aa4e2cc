package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartsCount(t *testing.T) {
	tests := []struct {
		name  string
		total int
		size  int
		want  int
	}{
		{"empty", 0, 400, 0},
		{"negative", -5, 400, 0},
		{"single partial", 1, 400, 1},
		{"exact", 800, 400, 2},
		{"remainder", 1000, 400, 3},
		{"size one", 7, 1, 7},
		{"default size", 401, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PartsCount(tt.total, tt.size))
		})
	}
}

func TestParts(t *testing.T) {
	parts := Parts(1000, 400)
	require.Len(t, parts, 3)
	assert.Equal(t, Part{Index: 1, Offset: 0, Limit: 400}, parts[0])
	assert.Equal(t, Part{Index: 2, Offset: 400, Limit: 400}, parts[1])
	assert.Equal(t, Part{Index: 3, Offset: 800, Limit: 200}, parts[2])

	sum := 0
	for _, p := range parts {
		sum += p.Limit
	}
	assert.Equal(t, 1000, sum)

	assert.Empty(t, Parts(0, 400))
}

func TestValidatePartSize(t *testing.T) {
	require.NoError(t, ValidatePartSize(1))
	require.NoError(t, ValidatePartSize(1000))
	require.ErrorIs(t, ValidatePartSize(0), ErrInvalidPartSize)
	require.ErrorIs(t, ValidatePartSize(1001), ErrInvalidPartSize)
}

func TestProgress(t *testing.T) {
	p := NewProgress(100, 4)
	assert.Equal(t, 0.0, p.PercentComplete())
	assert.False(t, p.IsComplete())
	assert.Equal(t, time.Duration(0), p.EstimatedTimeRemaining())

	p.AddPart(25)
	assert.Equal(t, 25.0, p.PercentComplete())

	p.AddPart(25)
	p.AddPart(25)
	p.AddPart(25)
	assert.True(t, p.IsComplete())
	assert.Equal(t, time.Duration(0), p.EstimatedTimeRemaining())

	snap := p.Snapshot()
	assert.Equal(t, 100, snap.TotalRecords)
	assert.Equal(t, 100, snap.ProcessedRecords)
	assert.Equal(t, 4, snap.ProcessedParts)
	assert.Equal(t, 100.0, snap.PercentComplete)
}

func TestProgressZeroTotal(t *testing.T) {
	p := NewProgress(0, 0)
	assert.Equal(t, 0.0, p.PercentComplete())
	assert.True(t, p.IsComplete())
}
