package history

import (
	"context"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"go.uber.org/zap"
)

type fakeWriteAPI struct {
	points  []*write.Point
	flushes int
}

func (f *fakeWriteAPI) WritePoint(point *write.Point) {
	f.points = append(f.points, point)
}

func (f *fakeWriteAPI) Flush() {
	f.flushes++
}

func tags(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fields(p *write.Point) map[string]any {
	out := map[string]any{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestRecord(t *testing.T) {
	api := &fakeWriteAPI{}
	w := NewWriter(api, zap.NewNop().Sugar())
	now := time.Unix(1700000000, 0)
	w.now = func() time.Time { return now }

	w.Record("abc", comfoconnect.Sensors[comfoconnect.SensorTemperatureExtract], 21.5)
	w.Record("abc", comfoconnect.Sensors[comfoconnect.SensorFanSpeedMode], int64(2))
	w.Record("abc", comfoconnect.Sensors[comfoconnect.SensorSeasonHeatingActive], true)
	w.Record("abc", comfoconnect.Sensors[comfoconnect.SensorAirflowConstraints], []string{"Hood"})

	require.Len(t, api.points, 3)

	p := api.points[0]
	assert.Equal(t, Measurement, p.Name())
	assert.Equal(t, now, p.Time())
	assert.Equal(t, map[string]string{"uuid": "abc", "sensor": "Extract Air Temperature", "unit": "°C"}, tags(p))
	assert.Equal(t, map[string]any{"value": 21.5}, fields(p))

	assert.Equal(t, map[string]string{"uuid": "abc", "sensor": "Fan Speed"}, tags(api.points[1]))
	assert.Equal(t, map[string]any{"value": 2.0}, fields(api.points[1]))
	assert.Equal(t, map[string]any{"value": 1.0}, fields(api.points[2]))
}

func TestClose(t *testing.T) {
	api := &fakeWriteAPI{}
	w := NewWriter(api, zap.NewNop().Sugar())

	w.Close()
	w.Close()
	w.Record("abc", comfoconnect.Sensors[comfoconnect.SensorTemperatureExtract], 21.5)

	assert.Equal(t, 1, api.flushes)
	assert.Empty(t, api.points)
}

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(context.Background(), Config{}, zap.NewNop().Sugar())
	assert.ErrorIs(t, err, ErrDisabled)
}
