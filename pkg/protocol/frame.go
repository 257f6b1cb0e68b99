package protocol

import (
	"encoding/binary"
	"math"
)

// Wire constants for the binary telemetry frame:
//
//	STX(0x02) LEN(0x0C) PAYLOAD[12] CHECKSUM ETX(0x03)
//
// The payload holds three little-endian float32 values {primary, secondary, ratio}. The checksum is
// the XOR of the twelve payload bytes. A lone ACK (0x06) between frames acknowledges a command.
const (
	STX = 0x02
	ETX = 0x03
	ACK = 0x06

	PayloadLength = 12
	FrameSize     = 4 + PayloadLength

	lengthOffset   = 1
	payloadOffset  = 2
	checksumOffset = payloadOffset + PayloadLength
)

// Checksum XOR-folds payload.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// EncodeFrame serializes r into a telemetry frame.
func EncodeFrame(r ForceReading) []byte {
	frame := make([]byte, FrameSize)
	frame[0] = STX
	frame[lengthOffset] = PayloadLength
	payload := frame[payloadOffset:checksumOffset]
	binary.LittleEndian.PutUint32(payload[0:4], math.Float32bits(r.Primary))
	binary.LittleEndian.PutUint32(payload[4:8], math.Float32bits(r.Secondary))
	binary.LittleEndian.PutUint32(payload[8:12], math.Float32bits(r.Ratio))
	frame[checksumOffset] = Checksum(payload)
	frame[FrameSize-1] = ETX
	return frame
}

func decodePayload(payload []byte) ForceReading {
	return ForceReading{
		Primary:   math.Float32frombits(binary.LittleEndian.Uint32(payload[0:4])),
		Secondary: math.Float32frombits(binary.LittleEndian.Uint32(payload[4:8])),
		Ratio:     math.Float32frombits(binary.LittleEndian.Uint32(payload[8:12])),
	}
}

// DecoderState is the position of a Decoder within a frame.
type DecoderState int

const (
	AwaitingStart DecoderState = iota
	Collecting
)

func (s DecoderState) String() string {
	if s == Collecting {
		return "Collecting"
	}
	return "AwaitingStart"
}

// DecoderStats counts decoder outcomes for diagnostics.
type DecoderStats struct {
	Accepted uint64
	Rejected uint64
	Acks     uint64
}

// A Decoder incrementally parses a byte stream into ForceReadings.
//
// A Decoder is not safe for concurrent use; it is owned by the goroutine reading the link.
type Decoder struct {
	// OnReading is invoked for every frame whose checksum verifies.
	OnReading func(ForceReading)
	// OnAck is invoked for every ACK byte received outside a frame.
	OnAck func()
	// OnReject is invoked with ErrBadLength, ErrBadTerminator or ErrBadChecksum when a frame is
	// dropped.
	OnReject func(error)

	state DecoderState
	buf   [FrameSize]byte
	n     int
	stats DecoderStats
}

// NewDecoder returns a Decoder that passes verified readings to onReading.
func NewDecoder(onReading func(ForceReading)) *Decoder {
	return &Decoder{OnReading: onReading}
}

// State returns the current parser state.
func (d *Decoder) State() DecoderState {
	return d.state
}

// Stats returns counters accumulated since the Decoder was created.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Reset discards any partially buffered frame.
func (d *Decoder) Reset() {
	d.state = AwaitingStart
	d.n = 0
}

// Write feeds p to the decoder. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	for _, b := range p {
		d.feed(b, true)
	}
	return len(p), nil
}

// Feed consumes a single byte.
func (d *Decoder) Feed(b byte) {
	d.feed(b, true)
}

// feed advances the state machine. live is false while replaying bytes of a discarded frame, in
// which case ACK bytes are payload remnants and are not reported.
func (d *Decoder) feed(b byte, live bool) {
	switch d.state {
	case AwaitingStart:
		if b == STX {
			d.buf[0] = b
			d.n = 1
			d.state = Collecting
		} else if b == ACK && live {
			d.stats.Acks++
			if d.OnAck != nil {
				d.OnAck()
			}
		}
	case Collecting:
		d.buf[d.n] = b
		d.n++
		if d.n == lengthOffset+1 && b != PayloadLength {
			d.reject(ErrBadLength)
			d.resync()
			return
		}
		if d.n < FrameSize {
			return
		}
		if d.buf[FrameSize-1] != ETX {
			d.reject(ErrBadTerminator)
			d.resync()
			return
		}
		payload := d.buf[payloadOffset:checksumOffset]
		if Checksum(payload) != d.buf[checksumOffset] {
			// The frame was structurally intact, so none of its bytes can begin the next one.
			d.reject(ErrBadChecksum)
			d.Reset()
			return
		}
		reading := decodePayload(payload)
		d.Reset()
		d.stats.Accepted++
		if d.OnReading != nil {
			d.OnReading(reading)
		}
	}
}

// resync drops the buffered frame and hunts for a start marker among its remaining bytes, so that
// a stray STX in front of a real frame does not swallow it.
func (d *Decoder) resync() {
	var pending [FrameSize]byte
	n := copy(pending[:], d.buf[1:d.n])
	d.Reset()
	for _, b := range pending[:n] {
		d.feed(b, false)
	}
}

func (d *Decoder) reject(reason error) {
	d.stats.Rejected++
	if d.OnReject != nil {
		d.OnReject(reason)
	}
}
