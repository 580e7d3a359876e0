package bridge

import "github.com/victorjacobs/go-comfoconnect/comfoconnect"

var fanSpeeds = []comfoconnect.VentilationSpeed{
	comfoconnect.SpeedLow,
	comfoconnect.SpeedMedium,
	comfoconnect.SpeedHigh,
}

var fanSpeedMapping = map[int64]comfoconnect.VentilationSpeed{
	0: comfoconnect.SpeedAway,
	1: comfoconnect.SpeedLow,
	2: comfoconnect.SpeedMedium,
	3: comfoconnect.SpeedHigh,
}

// SpeedCount is the number of speed steps above away.
var SpeedCount = len(fanSpeeds)

// SpeedToPercentage maps a speed onto 0-100. Away is 0.
func SpeedToPercentage(speed comfoconnect.VentilationSpeed) int {
	for i, s := range fanSpeeds {
		if s == speed {
			return (i + 1) * 100 / len(fanSpeeds)
		}
	}
	return 0
}

// PercentageToSpeed picks the lowest speed whose share of 0-100 covers percentage. 0 is away.
func PercentageToSpeed(percentage int) comfoconnect.VentilationSpeed {
	if percentage <= 0 {
		return comfoconnect.SpeedAway
	}

	for i, s := range fanSpeeds {
		if percentage <= (i+1)*100/len(fanSpeeds) {
			return s
		}
	}
	return fanSpeeds[len(fanSpeeds)-1]
}

// SpeedStep is the position of speed in the 1..SpeedCount range. Away is 0.
func SpeedStep(speed comfoconnect.VentilationSpeed) int {
	for i, s := range fanSpeeds {
		if s == speed {
			return i + 1
		}
	}
	return 0
}

// StepToSpeed is the inverse of SpeedStep. Steps above the range are clamped to the highest speed.
func StepToSpeed(step int) comfoconnect.VentilationSpeed {
	switch {
	case step <= 0:
		return comfoconnect.SpeedAway
	case step > len(fanSpeeds):
		return fanSpeeds[len(fanSpeeds)-1]
	}
	return fanSpeeds[step-1]
}

// FanSpeedStep converts a fan speed mode sensor value into a speed step.
func FanSpeedStep(value any) int {
	v, ok := value.(int64)
	if !ok {
		return 0
	}
	return SpeedStep(fanSpeedMapping[v])
}

// FanSpeedPercentage converts a fan speed mode sensor value into a percentage.
func FanSpeedPercentage(value any) int {
	v, ok := value.(int64)
	if !ok {
		return 0
	}
	speed, ok := fanSpeedMapping[v]
	if !ok {
		return 0
	}
	return SpeedToPercentage(speed)
}
