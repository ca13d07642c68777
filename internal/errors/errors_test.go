package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = NewStd("ledger unavailable")

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderKeepsSentinelReachable(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("append: %w", errSentinel)).
		Component("ledger").
		Category(CategoryLedger).
		Context("fingerprint", "abc").
		Build()

	require.ErrorIs(t, ee, errSentinel)
	assert.True(t, IsCategory(ee, CategoryLedger))
	assert.Equal(t, CategoryLedger, CategoryOf(fmt.Errorf("outer: %w", ee)))
	assert.Equal(t, "abc", ee.GetContext()["fingerprint"])
	assert.Equal(t, "ledger", ee.GetComponent())
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.GetPriority())

	ee = New(NewStd("x")).Priority(PriorityCritical).Build()
	assert.Equal(t, PriorityCritical, ee.GetPriority())
}

func TestCategoryDetectionFromMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want ErrorCategory
	}{
		{"inspection not found", CategoryNotFound},
		{"context deadline exceeded", CategoryTimeout},
		{"dial tcp 127.0.0.1:8545: connection refused", CategoryNetwork},
		{"invalid fingerprint", CategoryValidation},
		{"something else", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, New(NewStd(tt.msg)).Build().Category)
		})
	}
}

func TestBasicURLScrub(t *testing.T) {
	t.Parallel()

	scrubbed := basicURLScrub("Error at https://rpc.example.com?api_key=secret123&token=abc")
	assert.Equal(t, "Error at https://rpc.example.com?[REDACTED]", scrubbed)

	key := strings.Repeat("ab", 32)
	scrubbed = basicURLScrub("bad private key " + key)
	assert.NotContains(t, scrubbed, key)
	assert.Contains(t, scrubbed, "[SECRET_REDACTED]")
}

type countingReporter struct {
	count int
}

func (r *countingReporter) ReportError(ee *EnhancedError) {
	r.count++
	ee.MarkReported()
}

func (r *countingReporter) IsEnabled() bool { return true }

func TestReporterReceivesBuiltErrors(t *testing.T) {
	reporter := &countingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("boom")).Category(CategoryInconsistency).Build()

	assert.Equal(t, 1, reporter.count)
	assert.True(t, ee.IsReported())
}
