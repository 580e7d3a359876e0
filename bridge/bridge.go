package bridge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"go.uber.org/zap"
)

// Controller is what entities need from a ventilation unit.
type Controller interface {
	RegisterSensor(ctx context.Context, sensor comfoconnect.Sensor) error
	DeregisterSensor(ctx context.Context, sensor comfoconnect.Sensor) error
	SetSpeed(ctx context.Context, speed comfoconnect.VentilationSpeed) error
	GetMode(ctx context.Context) (comfoconnect.VentilationMode, error)
	SetMode(ctx context.Context, mode comfoconnect.VentilationMode) error
	GetBypass(ctx context.Context) (comfoconnect.VentilationSetting, error)
	SetBypass(ctx context.Context, setting comfoconnect.VentilationSetting) error
	GetBalanceMode(ctx context.Context) (comfoconnect.VentilationBalance, error)
	SetBalanceMode(ctx context.Context, balance comfoconnect.VentilationBalance) error
	GetTemperatureProfile(ctx context.Context) (comfoconnect.VentilationTemperatureProfile, error)
	SetTemperatureProfile(ctx context.Context, profile comfoconnect.VentilationTemperatureProfile) error
	ClearErrors(ctx context.Context) error
}

// Recorder receives every sensor value, e.g. to keep history.
type Recorder interface {
	Record(bridgeID string, sensor comfoconnect.Sensor, value any)
}

// ID formats a bridge uuid the way it is stored and used in topics: 32 hex digits.
func ID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// ComfoConnectBridge is a ComfoConnect whose sensor updates go out as dispatcher signals.
type ComfoConnectBridge struct {
	*comfoconnect.ComfoConnect

	ID string

	dispatcher *Dispatcher
	recorder   Recorder
	logger     *zap.SugaredLogger
}

func NewComfoConnectBridge(host string, id uuid.UUID, dispatcher *Dispatcher, recorder Recorder, logger *zap.SugaredLogger, opts ...comfoconnect.Option) *ComfoConnectBridge {
	b := &ComfoConnectBridge{
		ID:         ID(id),
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger,
	}

	opts = append([]comfoconnect.Option{comfoconnect.WithLogger(logger.Named("comfoconnect"))}, opts...)
	opts = append(opts,
		comfoconnect.WithSensorCallback(b.sensorCallback),
		comfoconnect.WithAlarmCallback(b.alarmCallback),
	)
	b.ComfoConnect = comfoconnect.New(host, id, opts...)

	return b
}

func (b *ComfoConnectBridge) sensorCallback(sensor comfoconnect.Sensor, value any) {
	b.dispatcher.Send(UpdateSignal(b.ID, sensor.ID), value)

	if b.recorder != nil {
		b.recorder.Record(b.ID, sensor, value)
	}
}

func (b *ComfoConnectBridge) alarmCallback(nodeID uint32, errors map[int]string) {
	b.logger.Warn(alarmMessage(nodeID, errors))
}

func alarmMessage(nodeID uint32, errors map[int]string) string {
	ids := make([]int, 0, len(errors))
	for id := range errors {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Alarm received for Node %v:\n", nodeID)
	for _, id := range ids {
		fmt.Fprintf(&sb, "* %v: %v\n", id, errors[id])
	}
	return sb.String()
}
