package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_ChunksAscendingPreservingEndpoints(t *testing.T) {
	s := New([]Range{{First: 1, Last: 25}}, 10)

	var got []Range
	for {
		r, ok := s.Pop()
		if !ok {
			break
		}
		got = append(got, r)
	}

	require.Equal(t, []Range{{1, 10}, {11, 20}, {21, 25}}, got)
}

func TestNew_ChunksDescendingPreservingEndpoints(t *testing.T) {
	s := New([]Range{{First: 25, Last: 1}}, -10)

	var got []Range
	for {
		r, ok := s.Pop()
		if !ok {
			break
		}
		got = append(got, r)
	}

	require.Equal(t, []Range{{25, 16}, {15, 6}, {5, 1}}, got)
}

func TestPop_HaltsWhenFiniteAndEmpty(t *testing.T) {
	s := New(nil, 10)
	_, ok := s.Pop()
	require.False(t, ok)
}

func TestQueue_ReinsertsAtTail(t *testing.T) {
	s := New([]Range{{First: 1, Last: 10}}, 10)

	first, ok := s.Pop()
	require.True(t, ok)

	s.Queue(Range{First: 100, Last: 110})
	s.Queue(first)

	r1, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, Range{100, 110}, r1)

	r2, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, first, r2)

	_, ok = s.Pop()
	require.False(t, ok)
}

func TestInfinite_AdvancesUntilCapped(t *testing.T) {
	s := NewInfinite(0, 5)

	r1, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, Range{0, 4}, r1)

	r2, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, Range{5, 9}, r2)

	s.Cap()
	require.Equal(t, Finite, s.Mode())

	_, ok = s.Pop()
	require.False(t, ok)
}

func TestInfinite_DescendingStep(t *testing.T) {
	s := NewInfinite(10, -5)

	r1, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, Range{10, 6}, r1)

	r2, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, Range{5, 1}, r2)
}
