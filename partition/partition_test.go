package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("0.5 0.5 interval 5s duration 10s")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, p.Buckets)
	assert.Equal(t, 5*time.Second, p.Interval)
	assert.Equal(t, 10*time.Second, p.Duration)

	p, err = Parse("0.5 0.3 0.2 interval 30s duration 1m")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.3, 0.2}, p.Buckets)
	assert.Equal(t, 30*time.Second, p.Interval)
	assert.Equal(t, time.Minute, p.Duration)
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		input string
		msg   string
	}{
		{input: "0.4 0.4 interval 5s duration 10s", msg: "sum of buckets"},
		{input: "0.5 0.5 interval 5s", msg: "missing duration"},
		{input: "0.5 0.5 duration 10s", msg: "can't parse bucket"},
		{input: "0.5 0.5", msg: "missing interval"},
		{input: "interval 5s duration 10s", msg: "no buckets"},
		{input: "0.5 abc interval 5s duration 10s", msg: "can't parse bucket"},
		{input: "0.5 0.5 interval 5s duration 10s extra", msg: "unexpected token"},
		{input: "0.5 0.5 interval abc duration 10s", msg: "can't parse interval"},
	} {
		_, err := Parse(tc.input)
		require.Error(t, err, "input %q", tc.input)
		assert.Contains(t, err.Error(), tc.msg, "input %q", tc.input)
	}
}

func TestSplit(t *testing.T) {
	p := Partition{Buckets: []float64{0.5, 0.5}}
	assert.Equal(t, [][2]int{{0, 2}, {2, 3}}, p.Split(3))

	p = Partition{Buckets: []float64{0.5, 0.3, 0.2}}
	assert.Equal(t, [][2]int{{0, 5}, {5, 8}, {8, 10}}, p.Split(10))

	// Uneven ratios: ceil sizing gives 9 instances to the first bucket
	// and the remaining 1 to the last.
	p = Partition{Buckets: []float64{0.9, 0.1}}
	assert.Equal(t, [][2]int{{0, 9}, {9, 10}}, p.Split(10))

	p = Partition{Buckets: []float64{1.0}}
	assert.Equal(t, [][2]int{{0, 4}}, p.Split(4))
}
