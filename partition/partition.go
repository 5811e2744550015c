package partition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Tolerance for the bucket-sum check; ratios come from user input and
// accumulate float error.
const sumTolerance = 1e-9

/**
 * A partition schedule: the network is split into buckets every interval
 * and restored after duration. Bucket ratios must sum to 1.0, within
 * sumTolerance.
 */
type Partition struct {
	Buckets  []float64
	Interval time.Duration
	Duration time.Duration
}

/**
 * Parses a schedule of the form "0.5 0.3 0.2 interval 30s duration 10s".
 * @param s the schedule string
 * @return the parsed schedule and error if any
 */
func Parse(s string) (Partition, error) {
	tokens := strings.Fields(s)
	var p Partition
	i := 0
	for ; i < len(tokens); i++ {
		if tokens[i] == "interval" {
			break
		}
		bucket, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil {
			return p, fmt.Errorf("can't parse bucket %q: %w", tokens[i], err)
		}
		p.Buckets = append(p.Buckets, bucket)
	}
	if len(p.Buckets) == 0 {
		return p, fmt.Errorf("partition %q has no buckets", s)
	}
	sum := 0.0
	for _, bucket := range p.Buckets {
		sum += bucket
	}
	if math.Abs(sum-1.0) > sumTolerance {
		return p, fmt.Errorf("sum of buckets must be 1.0, got %v", sum)
	}
	if i >= len(tokens) {
		return p, fmt.Errorf("missing interval")
	}
	i++ // consume "interval"
	if i >= len(tokens) {
		return p, fmt.Errorf("missing interval")
	}
	interval, err := time.ParseDuration(tokens[i])
	if err != nil {
		return p, fmt.Errorf("can't parse interval %q: %w", tokens[i], err)
	}
	p.Interval = interval
	i++
	if i >= len(tokens) || tokens[i] != "duration" {
		return p, fmt.Errorf("missing duration")
	}
	i++
	if i >= len(tokens) {
		return p, fmt.Errorf("missing duration")
	}
	duration, err := time.ParseDuration(tokens[i])
	if err != nil {
		return p, fmt.Errorf("can't parse duration %q: %w", tokens[i], err)
	}
	p.Duration = duration
	i++
	if i < len(tokens) {
		return p, fmt.Errorf("unexpected token %q", tokens[i])
	}
	if p.Interval <= 0 || p.Duration <= 0 {
		return p, fmt.Errorf("interval and duration must be positive")
	}
	return p, nil
}

/**
 * Splits n instances into contiguous buckets sized ceil(ratio * n),
 * in schedule order. The last buckets may be smaller or empty once the
 * instances run out.
 * @param n the instance count
 * @return the bucket boundaries as [start, end) index pairs.
 */
func (p Partition) Split(n int) [][2]int {
	bounds := make([][2]int, 0, len(p.Buckets))
	start := 0
	for _, ratio := range p.Buckets {
		size := int(math.Ceil(ratio * float64(n)))
		end := start + size
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
		start = end
	}
	return bounds
}
