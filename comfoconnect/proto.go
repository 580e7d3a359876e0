package comfoconnect

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The gateway speaks protobuf (proto2). The handful of messages used here are encoded by hand with
// protowire instead of generated code.

// operation is the GatewayOperation header of every frame.
type operation struct {
	Type              OperationType
	Result            GatewayResult
	ResultDescription string
	Reference         uint32
}

func (o operation) marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(o.Type))
	if o.Result != ResultOK {
		b = appendVarint(b, 2, uint64(o.Result))
	}
	if o.ResultDescription != "" {
		b = appendString(b, 3, o.ResultDescription)
	}
	if o.Reference != 0 {
		b = appendVarint(b, 4, uint64(o.Reference))
	}
	return b
}

func unmarshalOperation(b []byte) (operation, error) {
	var o operation
	err := walk(b, func(num protowire.Number, v uint64, data []byte) {
		switch num {
		case 1:
			o.Type = OperationType(v)
		case 2:
			o.Result = GatewayResult(v)
		case 3:
			o.ResultDescription = string(data)
		case 4:
			o.Reference = uint32(v)
		}
	})
	return o, err
}

// StartSessionConfirm is the reply to a StartSessionRequest.
type StartSessionConfirm struct {
	DeviceName string
	Resumed    bool
}

// VersionConfirm is the reply to a VersionRequest.
type VersionConfirm struct {
	GatewayVersion  uint32
	SerialNumber    string
	ComfoNetVersion uint32
}

// RegisteredApp is an app known to the gateway.
type RegisteredApp struct {
	UUID       []byte
	DeviceName string
}

type rpdoNotification struct {
	PDID uint32
	Data []byte
	Zone uint32
}

type alarmNotification struct {
	Zone             uint32
	ProductID        uint32
	ProductVariant   uint32
	SerialNumber     string
	SwProgramVersion uint32
	Errors           []byte
	ErrorID          uint32
	NodeID           uint32
}

type nodeNotification struct {
	NodeID    uint32
	ProductID uint32
	ZoneID    uint32
	Mode      uint32
}

type searchGatewayResponse struct {
	IPAddress string
	UUID      []byte
	Version   uint32
}

func marshalStartSessionRequest(takeover bool) []byte {
	return appendBool(nil, 1, takeover)
}

func marshalRegisterAppRequest(localUUID []byte, pin uint32, deviceName string) []byte {
	var b []byte
	b = appendBytes(b, 1, localUUID)
	b = appendVarint(b, 2, uint64(pin))
	b = appendString(b, 3, deviceName)
	return b
}

func marshalDeregisterAppRequest(appUUID []byte) []byte {
	return appendBytes(nil, 1, appUUID)
}

func marshalRmiRequest(nodeID uint32, message []byte) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(nodeID))
	b = appendBytes(b, 2, message)
	return b
}

func marshalRpdoRequest(pdid uint32, zone uint32, typ PdoType, timeout *uint32) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(pdid))
	b = appendVarint(b, 2, uint64(zone))
	b = appendVarint(b, 3, uint64(typ))
	if timeout != nil {
		b = appendVarint(b, 4, uint64(*timeout))
	}
	return b
}

func unmarshalStartSessionConfirm(b []byte) (StartSessionConfirm, error) {
	var m StartSessionConfirm
	err := walk(b, func(num protowire.Number, v uint64, data []byte) {
		switch num {
		case 1:
			m.DeviceName = string(data)
		case 2:
			m.Resumed = v != 0
		}
	})
	return m, err
}

func unmarshalVersionConfirm(b []byte) (VersionConfirm, error) {
	var m VersionConfirm
	err := walk(b, func(num protowire.Number, v uint64, data []byte) {
		switch num {
		case 1:
			m.GatewayVersion = uint32(v)
		case 2:
			m.SerialNumber = string(data)
		case 3:
			m.ComfoNetVersion = uint32(v)
		}
	})
	return m, err
}

func unmarshalRegisteredApps(b []byte) ([]RegisteredApp, error) {
	var apps []RegisteredApp
	var inner error
	err := walk(b, func(num protowire.Number, _ uint64, data []byte) {
		if num != 1 {
			return
		}
		var app RegisteredApp
		if err := walk(data, func(num protowire.Number, _ uint64, data []byte) {
			switch num {
			case 1:
				app.UUID = append([]byte(nil), data...)
			case 2:
				app.DeviceName = string(data)
			}
		}); err != nil {
			inner = err
			return
		}
		apps = append(apps, app)
	})
	if err == nil {
		err = inner
	}
	return apps, err
}

func unmarshalTimeConfirm(b []byte) (uint32, error) {
	var current uint32
	err := walk(b, func(num protowire.Number, v uint64, _ []byte) {
		if num == 1 {
			current = uint32(v)
		}
	})
	return current, err
}

// unmarshalRmiResponse returns the response payload, or an RmiError when the unit rejected the call.
func unmarshalRmiResponse(b []byte) ([]byte, error) {
	var result uint32
	var message []byte
	err := walk(b, func(num protowire.Number, v uint64, data []byte) {
		switch num {
		case 1:
			result = uint32(v)
		case 2:
			message = append([]byte(nil), data...)
		}
	})
	if err != nil {
		return nil, err
	}
	if result != 0 {
		return nil, &RmiError{Code: result}
	}
	return message, nil
}

func unmarshalRpdoNotification(b []byte) (rpdoNotification, error) {
	var m rpdoNotification
	err := walk(b, func(num protowire.Number, v uint64, data []byte) {
		switch num {
		case 1:
			m.PDID = uint32(v)
		case 2:
			m.Data = append([]byte(nil), data...)
		case 3:
			m.Zone = uint32(v)
		}
	})
	return m, err
}

func unmarshalAlarmNotification(b []byte) (alarmNotification, error) {
	var m alarmNotification
	err := walk(b, func(num protowire.Number, v uint64, data []byte) {
		switch num {
		case 1:
			m.Zone = uint32(v)
		case 2:
			m.ProductID = uint32(v)
		case 3:
			m.ProductVariant = uint32(v)
		case 4:
			m.SerialNumber = string(data)
		case 5:
			m.SwProgramVersion = uint32(v)
		case 6:
			m.Errors = append([]byte(nil), data...)
		case 7:
			m.ErrorID = uint32(v)
		case 8:
			m.NodeID = uint32(v)
		}
	})
	return m, err
}

// unmarshalGatewayNotification returns the alarm wrapped in a GatewayNotification, if any.
func unmarshalGatewayNotification(b []byte) (*alarmNotification, error) {
	var alarm *alarmNotification
	var inner error
	err := walk(b, func(num protowire.Number, _ uint64, data []byte) {
		if num != 2 {
			return
		}
		a, err := unmarshalAlarmNotification(data)
		if err != nil {
			inner = err
			return
		}
		alarm = &a
	})
	if err == nil {
		err = inner
	}
	return alarm, err
}

func unmarshalNodeNotification(b []byte) (nodeNotification, error) {
	var m nodeNotification
	err := walk(b, func(num protowire.Number, v uint64, _ []byte) {
		switch num {
		case 1:
			m.NodeID = uint32(v)
		case 2:
			m.ProductID = uint32(v)
		case 3:
			m.ZoneID = uint32(v)
		case 4:
			m.Mode = uint32(v)
		}
	})
	return m, err
}

// searchGatewayRequest is an encoded DiscoveryOperation holding an empty SearchGatewayRequest.
var searchGatewayRequest = []byte{0x0a, 0x00}

func unmarshalSearchGatewayResponse(b []byte) (*searchGatewayResponse, error) {
	var resp *searchGatewayResponse
	var inner error
	err := walk(b, func(num protowire.Number, _ uint64, data []byte) {
		if num != 2 {
			return
		}
		r := &searchGatewayResponse{}
		if err := walk(data, func(num protowire.Number, v uint64, data []byte) {
			switch num {
			case 1:
				r.IPAddress = string(data)
			case 2:
				r.UUID = append([]byte(nil), data...)
			case 3:
				r.Version = uint32(v)
			}
		}); err != nil {
			inner = err
			return
		}
		resp = r
	})
	if err == nil {
		err = inner
	}
	return resp, err
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// walk calls fn for every varint and length-delimited field in b. Other wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, v uint64, data []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("invalid varint in field %d: %w", num, protowire.ParseError(n))
			}
			fn(num, v, nil)
			b = b[n:]
		case protowire.BytesType:
			data, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("invalid bytes in field %d: %w", num, protowire.ParseError(n))
			}
			fn(num, 0, data)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}
