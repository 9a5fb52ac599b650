package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTurn(t *testing.T) {
	before := testutil.ToFloat64(TurnsTotal.WithLabelValues("image"))
	errsBefore := testutil.ToFloat64(TurnErrorsTotal.WithLabelValues("Timeout"))

	ObserveTurn("image", 1500*time.Millisecond, "")
	ObserveTurn("image", time.Second, "Timeout")

	assert.Equal(t, before+2, testutil.ToFloat64(TurnsTotal.WithLabelValues("image")))
	assert.Equal(t, errsBefore+1, testutil.ToFloat64(TurnErrorsTotal.WithLabelValues("Timeout")))
}
