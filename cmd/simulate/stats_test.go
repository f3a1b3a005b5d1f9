package main

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperationMetricsCounts(t *testing.T) {
	var om OperationMetrics

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			om.Record(time.Duration(i+1)*time.Millisecond, i%2 == 0, i%5 == 1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), om.Total)
	assert.Equal(t, int64(25), om.Success)
	assert.Equal(t, int64(5), om.Conflict)
	assert.Equal(t, int64(20), om.Error)
	assert.Len(t, om.Latencies, 50)
}

func TestStats(t *testing.T) {
	var om OperationMetrics
	for i := 100; i >= 1; i-- {
		om.Record(time.Duration(i)*time.Millisecond, true, false)
	}

	st := om.Stats()
	assert.Equal(t, time.Millisecond, st.Min)
	assert.Equal(t, 100*time.Millisecond, st.Max)
	assert.Equal(t, 51*time.Millisecond, st.P50)
	assert.Equal(t, 96*time.Millisecond, st.P95)
	assert.Equal(t, 50500*time.Microsecond, st.Avg)
}

func TestStatsEmpty(t *testing.T) {
	var om OperationMetrics
	assert.Equal(t, LatencyStats{}, om.Stats())

	var buf bytes.Buffer
	printOperationReport(&buf, "Booking", &om)
	assert.Empty(t, buf.String())
}

func TestReportShowsConflicts(t *testing.T) {
	var om OperationMetrics
	om.Record(10*time.Millisecond, true, false)
	om.Record(20*time.Millisecond, false, true)

	var buf bytes.Buffer
	printOperationReport(&buf, "Status change", &om)
	assert.Contains(t, buf.String(), "Status change:")
	assert.Contains(t, buf.String(), "Conflicts: 1 (50.0%)")
	assert.NotContains(t, buf.String(), "Errors:")
}
