package comfoconnect

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// VersionDecode formats a packed firmware version, e.g. "R1.12.0".
func VersionDecode(version uint32) string {
	stage := [...]string{"U", "D", "P", "R"}[(version>>30)&3]
	major := (version >> 20) & 0x3ff
	minor := (version >> 10) & 0x3ff
	patch := version & 0x3ff

	return fmt.Sprintf("%s%d.%d.%d", stage, major, minor, patch)
}

// airflowConstraintBits maps bits of the airflow constraint sensor to a description.
var airflowConstraintBits = map[uint]string{
	2:  "Temperature",
	3:  "Humidity",
	6:  "AnalogInput1",
	7:  "AnalogInput2",
	8:  "AnalogInput3",
	9:  "AnalogInput4",
	10: "Hood",
	12: "ArtificialHeating",
	40: "Bypass",
	41: "FrostProtection",
	42: "ResistanceGuard",
	43: "NoiseGuard",
	44: "PreheaterNegative",
	45: "Resistance",
}

// AirflowConstraints lists the active constraints in a raw airflow constraint value, highest bit
// first.
func AirflowConstraints(value int64) []string {
	bits := make([]uint, 0, len(airflowConstraintBits))
	for bit := range airflowConstraintBits {
		bits = append(bits, bit)
	}
	sort.Slice(bits, func(i, j int) bool { return bits[i] > bits[j] })

	constraints := []string{}
	for _, bit := range bits {
		if uint64(value)&(1<<bit) != 0 {
			constraints = append(constraints, airflowConstraintBits[bit])
		}
	}
	return constraints
}

// decodeErrors turns the alarm error bitmask into error ids.
func decodeErrors(mask []byte) map[int]string {
	errors := map[int]string{}
	for i, b := range mask {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				id := i*8 + bit
				errors[id] = fmt.Sprintf("error %d", id)
			}
		}
	}
	return errors
}

// decodeValue decodes little-endian process data. Integer types become int64, booleans become
// bool, strings become string.
func decodeValue(typ PdoType, data []byte) (any, error) {
	need := map[PdoType]int{
		TypeBool:    1,
		TypeUint8:   1,
		TypeInt8:    1,
		TypeUint16:  2,
		TypeInt16:   2,
		TypeUint32:  4,
		TypeTime:    4,
		TypeVersion: 4,
		TypeInt64:   8,
	}
	if typ == TypeString {
		return string(bytes.TrimRight(data, "\x00")), nil
	}

	n, ok := need[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported pdo type %#x", uint32(typ))
	}
	if len(data) < n {
		return nil, fmt.Errorf("pdo type %#x needs %d bytes, got %d", uint32(typ), n, len(data))
	}

	switch typ {
	case TypeBool:
		return data[0] != 0, nil
	case TypeUint8:
		return int64(data[0]), nil
	case TypeInt8:
		return int64(int8(data[0])), nil
	case TypeUint16:
		return int64(binary.LittleEndian.Uint16(data)), nil
	case TypeInt16:
		return int64(int16(binary.LittleEndian.Uint16(data))), nil
	case TypeUint32, TypeTime, TypeVersion:
		return int64(binary.LittleEndian.Uint32(data)), nil
	default:
		return int64(binary.LittleEndian.Uint64(data)), nil
	}
}

// encodeValue is the inverse of decodeValue for property writes.
func encodeValue(typ PdoType, value any) ([]byte, error) {
	if typ == TypeString {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string value, got %T", value)
		}
		return append([]byte(s), 0x00), nil
	}

	var v int64
	switch x := value.(type) {
	case bool:
		if x {
			v = 1
		}
	case int:
		v = int64(x)
	case int64:
		v = x
	case uint32:
		v = int64(x)
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}

	switch typ {
	case TypeBool, TypeUint8, TypeInt8:
		return []byte{byte(v)}, nil
	case TypeUint16, TypeInt16:
		return binary.LittleEndian.AppendUint16(nil, uint16(v)), nil
	case TypeUint32, TypeTime, TypeVersion:
		return binary.LittleEndian.AppendUint32(nil, uint32(v)), nil
	case TypeInt64:
		return binary.LittleEndian.AppendUint64(nil, uint64(v)), nil
	}
	return nil, fmt.Errorf("unsupported pdo type %#x", uint32(typ))
}
