package comfoconnect

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// noTimeout is the override duration used when setting a schedule without an end.
const noTimeout int32 = -1

// ComfoConnect controls a ComfoAir Q unit through its gateway.
type ComfoConnect struct {
	*Bridge

	sensorCallback func(Sensor, any)
	alarmCallback  func(nodeID uint32, errors map[int]string)

	sensorsMu sync.Mutex
	sensors   map[uint32]Sensor
}

// New returns a ComfoConnect for the unit behind the gateway at host. It does not connect.
func New(host string, id uuid.UUID, opts ...Option) *ComfoConnect {
	b := NewBridge(host, id, opts...)
	c := &ComfoConnect{
		Bridge:         b,
		sensorCallback: b.opts.sensorCallback,
		alarmCallback:  b.opts.alarmCallback,
		sensors:        map[uint32]Sensor{},
	}
	b.notify = c.handleNotification

	return c
}

// Connect connects, starts a session (taking over any other) and restores the sensor registrations
// of a previous connection.
func (c *ComfoConnect) Connect(ctx context.Context, localUUID uuid.UUID) error {
	if err := c.Bridge.Connect(ctx, localUUID); err != nil {
		return err
	}

	if _, err := c.CmdStartSession(ctx, true); err != nil {
		c.closeCurrent()
		return err
	}

	c.sensorsMu.Lock()
	sensors := make([]Sensor, 0, len(c.sensors))
	for _, s := range c.sensors {
		sensors = append(sensors, s)
	}
	c.sensorsMu.Unlock()
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })

	for _, s := range sensors {
		if err := c.requestSensor(ctx, s); err != nil {
			return fmt.Errorf("re-registering sensor %v: %w", s.ID, err)
		}
	}

	return nil
}

// RegisterSensor subscribes to a sensor. Registrations survive reconnects.
func (c *ComfoConnect) RegisterSensor(ctx context.Context, sensor Sensor) error {
	c.sensorsMu.Lock()
	c.sensors[sensor.ID] = sensor
	c.sensorsMu.Unlock()

	return c.requestSensor(ctx, sensor)
}

// DeregisterSensor forgets a sensor so it is not restored on reconnect and, when connected, asks
// the gateway to stop sending it.
func (c *ComfoConnect) DeregisterSensor(ctx context.Context, sensor Sensor) error {
	c.sensorsMu.Lock()
	delete(c.sensors, sensor.ID)
	c.sensorsMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	c.logger.Debugf("Deregistering sensor %v (%d)", sensor.Name, sensor.ID)
	var timeout uint32
	return c.CmdRpdoRequest(ctx, sensor.ID, sensor.Type, 1, &timeout)
}

func (c *ComfoConnect) requestSensor(ctx context.Context, sensor Sensor) error {
	c.logger.Debugf("Registering sensor %v (%d)", sensor.Name, sensor.ID)
	return c.CmdRpdoRequest(ctx, sensor.ID, sensor.Type, 1, nil)
}

// GetProperty reads a property. Strings come back as string, numbers as int64.
func (c *ComfoConnect) GetProperty(ctx context.Context, p Property) (any, error) {
	result, err := c.CmdRmiRequest(ctx, []byte{rmiGetProperty, p.Unit, p.Subunit, 0x10, p.PropertyID}, defaultNodeID)
	if err != nil {
		return nil, err
	}
	return decodeValue(p.Type, result)
}

// GetPropertyString reads a property and formats it as text.
func (c *ComfoConnect) GetPropertyString(ctx context.Context, p Property) (string, error) {
	v, err := c.GetProperty(ctx, p)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

// SetProperty writes a property.
func (c *ComfoConnect) SetProperty(ctx context.Context, p Property, value any) error {
	encoded, err := encodeValue(p.Type, value)
	if err != nil {
		return err
	}
	msg := append([]byte{rmiSetProperty, p.Unit, p.Subunit, p.PropertyID}, encoded...)
	_, err = c.CmdRmiRequest(ctx, msg, defaultNodeID)
	return err
}

var speedValues = map[VentilationSpeed]byte{
	SpeedAway:   0,
	SpeedLow:    1,
	SpeedMedium: 2,
	SpeedHigh:   3,
}

// GetSpeed returns the current fan speed step.
func (c *ComfoConnect) GetSpeed(ctx context.Context) (VentilationSpeed, error) {
	v, err := c.getSchedule(ctx, subunitSpeed)
	if err != nil {
		return "", err
	}
	for speed, b := range speedValues {
		if b == v {
			return speed, nil
		}
	}
	return "", fmt.Errorf("unknown speed %d", v)
}

// SetSpeed sets the fan speed step.
func (c *ComfoConnect) SetSpeed(ctx context.Context, speed VentilationSpeed) error {
	v, ok := speedValues[speed]
	if !ok {
		return fmt.Errorf("invalid speed %q", speed)
	}
	return c.setSchedule(ctx, subunitSpeed, v, 0)
}

// GetMode returns whether the unit follows its schedule or a manual override.
func (c *ComfoConnect) GetMode(ctx context.Context) (VentilationMode, error) {
	result, err := c.CmdRmiRequest(ctx, []byte{rmiGetSchedule, unitSchedule, subunitMode, 0x01}, defaultNodeID)
	if err != nil {
		return "", err
	}
	if len(result) == 0 {
		return "", fmt.Errorf("empty mode response")
	}
	// The first byte tells whether an override is active.
	if result[0] == 1 {
		return ModeManual, nil
	}
	return ModeAuto, nil
}

// SetMode switches between schedule and manual override.
func (c *ComfoConnect) SetMode(ctx context.Context, mode VentilationMode) error {
	switch mode {
	case ModeAuto:
		return c.deleteSchedule(ctx, subunitMode)
	case ModeManual:
		return c.setSchedule(ctx, subunitMode, 1, 0)
	}
	return fmt.Errorf("invalid mode %q", mode)
}

// GetBypass returns the bypass override.
func (c *ComfoConnect) GetBypass(ctx context.Context) (VentilationSetting, error) {
	v, err := c.getSchedule(ctx, subunitBypass)
	if err != nil {
		return "", err
	}
	switch v {
	case 0:
		return SettingAuto, nil
	case 1:
		return SettingOn, nil
	case 2:
		return SettingOff, nil
	}
	return "", fmt.Errorf("unknown bypass setting %d", v)
}

// SetBypass sets the bypass override.
func (c *ComfoConnect) SetBypass(ctx context.Context, setting VentilationSetting) error {
	switch setting {
	case SettingAuto:
		return c.deleteSchedule(ctx, subunitBypass)
	case SettingOn:
		return c.setSchedule(ctx, subunitBypass, 1, noTimeout)
	case SettingOff:
		return c.setSchedule(ctx, subunitBypass, 2, noTimeout)
	}
	return fmt.Errorf("invalid bypass setting %q", setting)
}

// GetBalanceMode derives the balance mode from the supply and exhaust fan overrides.
func (c *ComfoConnect) GetBalanceMode(ctx context.Context) (VentilationBalance, error) {
	supply, err := c.CmdRmiRequest(ctx, []byte{rmiGetSchedule, unitSchedule, subunitSupplyFan, 0x01}, defaultNodeID)
	if err != nil {
		return "", err
	}
	exhaust, err := c.CmdRmiRequest(ctx, []byte{rmiGetSchedule, unitSchedule, subunitExhaustFan, 0x01}, defaultNodeID)
	if err != nil {
		return "", err
	}
	if len(supply) == 0 || len(exhaust) == 0 {
		return "", fmt.Errorf("empty balance response")
	}

	switch {
	case supply[0] == exhaust[0]:
		return BalanceBalance, nil
	case supply[0] == 1 && exhaust[0] == 0:
		return BalanceSupplyOnly, nil
	case supply[0] == 0 && exhaust[0] == 1:
		return BalanceExhaustOnly, nil
	}
	return "", fmt.Errorf("unknown balance mode %d/%d", supply[0], exhaust[0])
}

// SetBalanceMode stops one of the fans, or runs both.
func (c *ComfoConnect) SetBalanceMode(ctx context.Context, balance VentilationBalance) error {
	switch balance {
	case BalanceBalance:
		if err := c.deleteSchedule(ctx, subunitSupplyFan); err != nil {
			return err
		}
		return c.deleteSchedule(ctx, subunitExhaustFan)
	case BalanceSupplyOnly:
		if err := c.setSchedule(ctx, subunitSupplyFan, 0, noTimeout); err != nil {
			return err
		}
		return c.deleteSchedule(ctx, subunitExhaustFan)
	case BalanceExhaustOnly:
		if err := c.deleteSchedule(ctx, subunitSupplyFan); err != nil {
			return err
		}
		return c.setSchedule(ctx, subunitExhaustFan, 0, noTimeout)
	}
	return fmt.Errorf("invalid balance mode %q", balance)
}

var profileValues = map[VentilationTemperatureProfile]byte{
	ProfileNormal: 0,
	ProfileCool:   1,
	ProfileWarm:   2,
}

// GetTemperatureProfile returns the comfort temperature profile.
func (c *ComfoConnect) GetTemperatureProfile(ctx context.Context) (VentilationTemperatureProfile, error) {
	v, err := c.getSchedule(ctx, subunitTemperatureProfile)
	if err != nil {
		return "", err
	}
	for profile, b := range profileValues {
		if b == v {
			return profile, nil
		}
	}
	return "", fmt.Errorf("unknown temperature profile %d", v)
}

// SetTemperatureProfile sets the comfort temperature profile.
func (c *ComfoConnect) SetTemperatureProfile(ctx context.Context, profile VentilationTemperatureProfile) error {
	v, ok := profileValues[profile]
	if !ok {
		return fmt.Errorf("invalid temperature profile %q", profile)
	}
	return c.setSchedule(ctx, subunitTemperatureProfile, v, noTimeout)
}

// ClearErrors resets the errors of the unit.
func (c *ComfoConnect) ClearErrors(ctx context.Context) error {
	_, err := c.CmdRmiRequest(ctx, []byte{rmiClear, unitError, 0x01}, defaultNodeID)
	return err
}

// getSchedule returns the value byte of a schedule subunit, which is the last byte of the reply.
func (c *ComfoConnect) getSchedule(ctx context.Context, subunit byte) (byte, error) {
	result, err := c.CmdRmiRequest(ctx, []byte{rmiGetSchedule, unitSchedule, subunit, 0x01}, defaultNodeID)
	if err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, fmt.Errorf("empty schedule response for subunit %#x", subunit)
	}
	return result[len(result)-1], nil
}

// setSchedule activates an override on a schedule subunit. A timeout of -1 keeps it until removed,
// 0 uses the unit's default.
func (c *ComfoConnect) setSchedule(ctx context.Context, subunit byte, value byte, timeout int32) error {
	msg := []byte{rmiSetSchedule, unitSchedule, subunit, 0x01, 0x00, 0x00, 0x00, 0x00}
	if timeout == 0 {
		msg = append(msg, 0x01, 0x00, 0x00, 0x00)
	} else {
		msg = binary.LittleEndian.AppendUint32(msg, uint32(timeout))
	}
	msg = append(msg, value)

	_, err := c.CmdRmiRequest(ctx, msg, defaultNodeID)
	return err
}

func (c *ComfoConnect) deleteSchedule(ctx context.Context, subunit byte) error {
	_, err := c.CmdRmiRequest(ctx, []byte{rmiDeleteSchedule, unitSchedule, subunit, 0x01}, defaultNodeID)
	return err
}

func (c *ComfoConnect) handleNotification(msg *message) {
	switch msg.Op.Type {
	case OperationCnRpdoNotification:
		n, err := unmarshalRpdoNotification(msg.Body)
		if err != nil {
			c.logger.Warnf("Invalid sensor notification: %v", err)
			return
		}
		c.handleSensor(n)

	case OperationCnAlarmNotification:
		a, err := unmarshalAlarmNotification(msg.Body)
		if err != nil {
			c.logger.Warnf("Invalid alarm notification: %v", err)
			return
		}
		c.handleAlarm(a)

	case OperationGatewayNotification:
		a, err := unmarshalGatewayNotification(msg.Body)
		if err != nil {
			c.logger.Warnf("Invalid gateway notification: %v", err)
			return
		}
		if a != nil {
			c.handleAlarm(*a)
		}

	case OperationCnNodeNotification:
		n, err := unmarshalNodeNotification(msg.Body)
		if err != nil {
			c.logger.Warnf("Invalid node notification: %v", err)
			return
		}
		c.logger.Debugf("Node %d (product %d, zone %d) is in mode %d", n.NodeID, n.ProductID, n.ZoneID, n.Mode)
	}
}

func (c *ComfoConnect) handleSensor(n rpdoNotification) {
	c.sensorsMu.Lock()
	sensor, ok := c.sensors[n.PDID]
	c.sensorsMu.Unlock()
	if !ok {
		c.logger.Debugf("Ignoring update for unregistered sensor %d", n.PDID)
		return
	}

	value, err := decodeValue(sensor.Type, n.Data)
	if err != nil {
		c.logger.Warnf("Invalid value for sensor %v (%d): %v", sensor.Name, sensor.ID, err)
		return
	}
	if sensor.ValueFn != nil {
		value = sensor.ValueFn(value)
	}

	if c.sensorCallback != nil {
		c.sensorCallback(sensor, value)
	}
}

func (c *ComfoConnect) handleAlarm(a alarmNotification) {
	if c.alarmCallback != nil {
		c.alarmCallback(a.NodeID, decodeErrors(a.Errors))
	}
}
