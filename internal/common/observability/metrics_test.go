package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geomet-mapfile/internal/common/logger"
)

func TestRecordRun_Exported(t *testing.T) {
	reg := promclient.NewRegistry()
	o := NewWithRegisterer("geomet-mapfile-test", reg, logger.NewTestLogger(t))
	defer o.Shutdown()

	ctx := context.Background()
	o.RecordRun(ctx, "generate", 120*time.Millisecond, nil)
	o.RecordRun(ctx, "update", 5*time.Millisecond, errors.New("boom"))
	o.RecordLayers(ctx, 4, 1)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		byName[f.GetName()] = f
	}
	require.Contains(t, byName, "mapfile_runs_total")
	require.Contains(t, byName, "mapfile_run_duration_milliseconds")
	require.Contains(t, byName, "mapfile_run_layers_total")

	assert.Len(t, byName["mapfile_runs_total"].GetMetric(), 2)

	layers := map[string]float64{}
	for _, m := range byName["mapfile_run_layers_total"].GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "result" {
				layers[l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"generated": 4, "failed": 1}, layers)
}

func TestZeroValueIsSafe(t *testing.T) {
	o := &Observability{}
	assert.NotPanics(t, func() {
		o.RecordRun(context.Background(), "generate", time.Second, nil)
		o.RecordLayers(context.Background(), 1, 0)
		o.Shutdown()
	})
}
