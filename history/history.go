package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"go.uber.org/zap"
)

const (
	Measurement = "comfoconnect"

	connectTimeout = 10 * time.Second
)

var ErrDisabled = errors.New("influxdb export disabled")

type Config struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     uint          `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// PointWriter is the part of the InfluxDB write API the Writer uses.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Writer exports sensor values to InfluxDB. Writes are batched and never block the caller.
type Writer struct {
	client influxdb2.Client
	api    PointWriter
	logger *zap.SugaredLogger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Connect checks the server is up and returns a Writer using its non-blocking write API.
func Connect(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*Writer, error) {
	if cfg.URL == "" {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging influxdb: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, errors.New("influxdb not healthy")
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	w := NewWriter(writeAPI, logger)
	w.client = client

	go w.logErrors(writeAPI)

	return w, nil
}

func NewWriter(api PointWriter, logger *zap.SugaredLogger) *Writer {
	return &Writer{
		api:    api,
		logger: logger,
		now:    time.Now,
	}
}

func (w *Writer) logErrors(writeAPI api.WriteAPI) {
	for err := range writeAPI.Errors() {
		w.logger.Warnf("Writing to influxdb failed: %v", err)
	}
}

// Record writes a sensor value. Values that are not numbers or booleans are skipped.
func (w *Writer) Record(bridgeID string, sensor comfoconnect.Sensor, value any) {
	v, ok := numeric(value)
	if !ok {
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	tags := map[string]string{
		"uuid":   bridgeID,
		"sensor": sensor.Name,
	}
	if sensor.Unit != "" {
		tags["unit"] = sensor.Unit
	}

	w.api.WritePoint(write.NewPoint(Measurement, tags, map[string]any{"value": v}, w.now()))
}

// Close flushes pending points.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.api.Flush()
	if w.client != nil {
		w.client.Close()
	}
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
