package protocol

import (
	"math"
	"strconv"
	"strings"
)

// Command bytes understood by the firmware. Every command is a single ASCII line.
const (
	tareCommand       = "t"
	calibrateAPrefix  = "i="
	calibrateBPrefix  = "q="
	commandTerminator = "\n"
)

// Tare returns the command that zeroes both force channels.
func Tare() []byte {
	return []byte(tareCommand + commandTerminator)
}

// CalibrateChannelA returns the command that sets the primary channel's calibration factor.
func CalibrateChannelA(factor float32) []byte {
	return calibrate(calibrateAPrefix, factor)
}

// CalibrateChannelB returns the command that sets the secondary channel's calibration factor.
func CalibrateChannelB(factor float32) []byte {
	return calibrate(calibrateBPrefix, factor)
}

func calibrate(prefix string, factor float32) []byte {
	return []byte(prefix + FormatFactor(factor) + commandTerminator)
}

// FormatFactor renders factor in plain decimal notation with at least one fractional digit
// ("2.0", "-0.125"), which is what the firmware's float parser accepts.
func FormatFactor(factor float32) string {
	if math.IsNaN(float64(factor)) || math.IsInf(float64(factor), 0) {
		return "0.0"
	}
	s := strconv.FormatFloat(float64(factor), 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
