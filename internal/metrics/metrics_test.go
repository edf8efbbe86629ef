package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(analyses.WithLabelValues("ranked"))
	CountAnalysis("ranked")
	assert.Equal(t, before+1, testutil.ToFloat64(analyses.WithLabelValues("ranked")))

	before = testutil.ToFloat64(datasetRecords.WithLabelValues("dropped"))
	CountDataset("dropped", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(datasetRecords.WithLabelValues("dropped")))

	before = testutil.ToFloat64(insightResults.WithLabelValues("timeout"))
	CountInsight("timeout")
	assert.Equal(t, before+1, testutil.ToFloat64(insightResults.WithLabelValues("timeout")))
}

func TestObserveStage(t *testing.T) {
	ObserveStage("map", time.Now(), nil)
	ObserveStage("map", time.Now(), errors.New("boom"))
	ObserveConfidence(0.35)
	ObserveBuilderStage("verify", time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(stageLatency))
}
