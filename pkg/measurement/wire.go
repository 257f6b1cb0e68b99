package measurement

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the compact wire form. Unknown fields are skipped when decoding.
const (
	fieldID              protowire.Number = 1
	fieldProfileID       protowire.Number = 2
	fieldPrimaryAvg      protowire.Number = 3
	fieldPrimaryMax      protowire.Number = 4
	fieldSecondaryAvg    protowire.Number = 5
	fieldSecondaryMax    protowire.Number = 6
	fieldRatio           protowire.Number = 7
	fieldTimestamp       protowire.Number = 8
	fieldDurationSeconds protowire.Number = 9
	fieldNotes           protowire.Number = 10
	fieldLeg             protowire.Number = 11
)

var ErrMalformed = errors.New("malformed measurement")

// MarshalBinary encodes m in protobuf wire format. The timestamp is carried in milliseconds.
func (m *Measurement) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, fieldID, m.ID)
	b = protowire.AppendTag(b, fieldProfileID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(m.ProfileID))
	for _, f := range []struct {
		num   protowire.Number
		value float32
	}{
		{fieldPrimaryAvg, m.PrimaryAvg},
		{fieldPrimaryMax, m.PrimaryMax},
		{fieldSecondaryAvg, m.SecondaryAvg},
		{fieldSecondaryMax, m.SecondaryMax},
		{fieldRatio, m.Ratio},
	} {
		b = protowire.AppendTag(b, f.num, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(f.value))
	}
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(m.Timestamp.UnixMilli()))
	b = protowire.AppendTag(b, fieldDurationSeconds, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.DurationSeconds))
	b = appendString(b, fieldNotes, m.Notes)
	b = appendString(b, fieldLeg, string(m.Leg))
	return b, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// UnmarshalBinary decodes the output of MarshalBinary.
func (m *Measurement) UnmarshalBinary(b []byte) error {
	*m = Measurement{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case typ == protowire.BytesType && (num == fieldID || num == fieldNotes || num == fieldLeg):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %s", ErrMalformed, num, protowire.ParseError(n))
			}
			switch num {
			case fieldID:
				m.ID = v
			case fieldNotes:
				m.Notes = v
			case fieldLeg:
				m.Leg = Leg(v)
			}
			b = b[n:]
		case typ == protowire.Fixed32Type && num >= fieldPrimaryAvg && num <= fieldRatio:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %s", ErrMalformed, num, protowire.ParseError(n))
			}
			*m.float(num) = math.Float32frombits(v)
			b = b[n:]
		case typ == protowire.VarintType && (num == fieldProfileID || num == fieldTimestamp || num == fieldDurationSeconds):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %s", ErrMalformed, num, protowire.ParseError(n))
			}
			switch num {
			case fieldProfileID:
				m.ProfileID = protowire.DecodeZigZag(v)
			case fieldTimestamp:
				m.Timestamp = time.UnixMilli(protowire.DecodeZigZag(v))
			case fieldDurationSeconds:
				m.DurationSeconds = int(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %s", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if m.Leg == "" {
		m.Leg = DefaultLeg
	}
	return nil
}

func (m *Measurement) float(num protowire.Number) *float32 {
	switch num {
	case fieldPrimaryAvg:
		return &m.PrimaryAvg
	case fieldPrimaryMax:
		return &m.PrimaryMax
	case fieldSecondaryAvg:
		return &m.SecondaryAvg
	case fieldSecondaryMax:
		return &m.SecondaryMax
	}
	return &m.Ratio
}
