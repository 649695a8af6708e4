package telemetry

import (
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAccumulatesByName(t *testing.T) {
	c := NewCounter()
	c.RecordCount("directive.handled.Speak", 1)
	c.RecordCount("directive.handled.Speak", 2)
	c.RecordCount("directive.handled.RenderTemplate", 1)

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap["directive.handled.Speak"])
	assert.Equal(t, int64(1), snap["directive.handled.RenderTemplate"])
}

func TestCounterResetClearsAccumulatedCounts(t *testing.T) {
	c := NewCounter()
	c.RecordCount("x", 5)
	c.Reset()
	assert.Empty(t, c.Snapshot())
}

func TestSortedNamesIsDeterministic(t *testing.T) {
	snap := map[string]int64{"zebra": 1, "alpha": 2, "mango": 3}
	assert.Equal(t, []string{"alpha", "mango", "zebra"}, SortedNames(snap))
}

func TestTickerSamplesAndResetsOnSchedule(t *testing.T) {
	c := NewCounter()
	c.RecordCount("directive.handled.Speak", 4)

	ticker, err := NewTicker(c, "@every 1s")
	require.NoError(t, err)

	ticker.Start()
	defer ticker.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.Snapshot()) == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	assert.Empty(t, c.Snapshot())
}

func TestNewTickerRejectsMalformedSchedule(t *testing.T) {
	_, err := NewTicker(NewCounter(), "not a schedule")
	require.Error(t, err)

	var categorized *errors.Error
	require.ErrorAs(t, err, &categorized)
}
