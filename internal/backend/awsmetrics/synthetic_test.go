package awsmetrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticWalkStaysInBounds(t *testing.T) {
	s := NewSynthetic()
	for i := 0; i < 500; i++ {
		m, err := s.Metrics(context.Background())
		require.NoError(t, err)
		assert.Equal(t, PlaceholderMem, m.Mem)
		assert.True(t, m.CPU >= 0 && m.CPU <= 100, "cpu %v", m.CPU)
		assert.True(t, m.Disk >= 0 && m.Disk <= 120, "disk %v", m.Disk)
	}
}

func TestSyntheticWalkSteps(t *testing.T) {
	s := NewSynthetic()
	s.rnd = func() float64 { return 1 }
	m, _ := s.Metrics(context.Background())
	assert.Equal(t, 50.0, m.CPU)
	assert.Equal(t, 35.0, m.Disk)

	s.rnd = func() float64 { return 0 }
	for i := 0; i < 10; i++ {
		m, _ = s.Metrics(context.Background())
	}
	assert.Equal(t, 0.0, m.CPU)
	assert.Equal(t, 0.0, m.Disk)
}
