package errors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	errs []error
}

func (r *recordingReporter) Report(err error) {
	r.errs = append(r.errs, err)
}

func TestWrapAndReportNil(t *testing.T) {
	assert.NoError(t, WrapAndReport(nil, "nothing"))
	assert.NoError(t, WrapfAndReport(nil, "nothing %d", 1))
	assert.NoError(t, WithStackAndReport(nil))
}

func TestWrapAndReportForwardsToReporters(t *testing.T) {
	t.Setenv(debugMode, "")
	rec := &recordingReporter{}
	ResetReporters()
	RegisterReporter(rec)
	defer ResetReporters()

	base := New("relay down")
	err := WrapAndReport(base, "dial relay")
	require.Error(t, err)
	assert.Equal(t, "dial relay: relay down", err.Error())
	assert.True(t, Is(err, base))
	require.Len(t, rec.errs, 1)
	assert.Equal(t, err, rec.errs[0])
}

func TestDebugModeSuppressesReports(t *testing.T) {
	t.Setenv(debugMode, "1")
	rec := &recordingReporter{}
	ResetReporters()
	RegisterReporter(rec)
	defer ResetReporters()

	_ = NewWithReport("boom")
	assert.Empty(t, rec.errs)
}

func TestStackBasedRateLimited(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newRateLimiter(time.Minute)
	l.now = func() time.Time { return now }

	limited, stats := l.StackBasedRateLimited("a")
	assert.False(t, limited)
	assert.Nil(t, stats.lastReportTime)

	now = now.Add(10 * time.Second)
	limited, _ = l.StackBasedRateLimited("a")
	assert.True(t, limited)

	limited, _ = l.StackBasedRateLimited("b")
	assert.False(t, limited)

	now = now.Add(time.Minute)
	limited, stats = l.StackBasedRateLimited("a")
	assert.False(t, limited)
	assert.Equal(t, 1, stats.occurCountSinceLastReport)
	assert.Equal(t, 2, stats.totalOccurCount)
}

func TestCallersFullStack(t *testing.T) {
	lines := callers().fullStack()
	assert.NotEmpty(t, lines)
}
