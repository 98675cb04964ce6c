package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportAddTallies(t *testing.T) {
	r := &Report{}
	r.add("Device", "a", OpCreate, "")
	r.add("Device", "a", OpUpdate, "")
	r.add("Interface", "eth0", OpNoop, "")
	r.add("IPAddress", "10.0.0.5/32", OpSkip, "owning interface not reconciled")
	r.add("IPAddress", "10.0.0.6/32", OpConflict, "already assigned")

	assert.Equal(t, 1, r.Created)
	assert.Equal(t, 1, r.Updated)
	assert.Equal(t, 1, r.Unchanged)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, r.Conflicts)
	assert.Len(t, r.Entries, 5)
}

func TestRemoteWriteMetricCountsWritesOnly(t *testing.T) {
	r := &Report{}
	r.add("Device", "a", OpNoop, "")
	r.add("Device", "a", OpSkip, "")

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "racksync_remote_writes_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "operation" {
					assert.Contains(t, []string{"create", "update"}, label.GetValue())
				}
			}
		}
	}
}
