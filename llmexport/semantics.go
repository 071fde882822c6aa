package llmexport

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

type fieldKind string

const (
	kindU8     fieldKind = "uint8"
	kindU16    fieldKind = "uint16"
	kindU32    fieldKind = "uint32"
	kindI16    fieldKind = "sint16"
	kindI32    fieldKind = "sint32"
	kindBytes  fieldKind = "bytes"
	kindString fieldKind = "latin1"
)

type fieldSemantic struct {
	name   string
	offset int
	size   int
	kind   fieldKind
	units  string
	scaler func(decoded any) (any, bool)
}

// Record layouts, offsets relative to the record start. All integers are big-endian.
var layouts = map[string][]fieldSemantic{
	kindHeader: {
		{name: "magic", offset: 0, size: 4, kind: kindString},
		{name: "days_since_1880", offset: 4, size: 2, kind: kindU16, units: "days"},
		{name: "wheel_circumference", offset: 6, size: 2, kind: kindU16, units: "mm"},
		{name: "recint1", offset: 8, size: 1, kind: kindU8},
		{name: "recint2", offset: 9, size: 1, kind: kindU8},
		{name: "block_count", offset: 10, size: 2, kind: kindU16},
		{name: "marker_count", offset: 12, size: 2, kind: kindU16},
		{name: "padding", offset: 14, size: 1, kind: kindBytes},
		{name: "comment_length", offset: 15, size: 1, kind: kindU8, units: "bytes incl. NUL"},
		{name: "comment", offset: 16, size: 70, kind: kindString},
	},
	kindMarker: {
		{name: "comment", offset: 0, size: 255, kind: kindString},
		{name: "active", offset: 255, size: 1, kind: kindU8},
		{name: "start", offset: 256, size: 2, kind: kindU16, units: "sample (1-based)"},
		{name: "end", offset: 258, size: 2, kind: kindU16, units: "sample (1-based, inclusive)"},
		{name: "avg_watts", offset: 260, size: 2, kind: kindU16},
		{name: "avg_hr", offset: 262, size: 2, kind: kindU16},
		{name: "avg_cadence", offset: 264, size: 2, kind: kindU16},
		{name: "avg_speed", offset: 266, size: 2, kind: kindU16},
		{name: "pwc150", offset: 268, size: 2, kind: kindU16},
	},
	kindBlock: {
		{name: "hsecs_since_midnight", offset: 0, size: 4, kind: kindI32, units: "s", scaler: scaleBy(100)},
		{name: "chunk_count", offset: 4, size: 2, kind: kindU16, units: "samples"},
	},
	kindTrailer: {
		{name: "zero", offset: 0, size: 2, kind: kindU16},
		{name: "slope", offset: 2, size: 2, kind: kindU16},
		{name: "data_count", offset: 4, size: 2, kind: kindU16, units: "samples"},
		{name: "padding", offset: 6, size: 1, kind: kindBytes},
	},
	kindSampleV6: {
		{name: "packed_speed_power", offset: 0, size: 3, kind: kindBytes},
		{name: "cadence", offset: 3, size: 1, kind: kindU8, units: "rpm"},
		{name: "heart_rate", offset: 4, size: 1, kind: kindU8, units: "bpm"},
	},
	kindSampleV7: {
		{name: "power", offset: 0, size: 2, kind: kindU16, units: "w"},
		{name: "cadence", offset: 2, size: 1, kind: kindU8, units: "rpm"},
		{name: "heart_rate", offset: 3, size: 1, kind: kindU8, units: "bpm"},
		{name: "speed", offset: 4, size: 4, kind: kindU32, units: "km/h", scaler: scaleFactor(3.6 / 1000)},
		{name: "altitude", offset: 8, size: 4, kind: kindI32, units: "m"},
		{name: "temperature", offset: 12, size: 2, kind: kindI16, units: "c", scaler: scaleFactor(0.1)},
	},
}

func layoutFor(kind string, version int) []fieldSemantic {
	if kind == kindSample {
		if version == 6 {
			return layouts[kindSampleV6]
		}
		return layouts[kindSampleV7]
	}
	return layouts[kind]
}

func decodeFields(raw []byte, fields []fieldSemantic) []FieldValue {
	out := make([]FieldValue, 0, len(fields))
	for i, fs := range fields {
		fv := FieldValue{
			FieldIndex: i,
			Name:       fs.name,
			Offset:     fs.offset,
			Size:       fs.size,
			Type:       string(fs.kind),
			Units:      fs.units,
		}
		if fs.offset+fs.size > len(raw) {
			fv.DecodeError = fmt.Sprintf("field needs %d bytes at %d, record has %d", fs.size, fs.offset, len(raw))
			out = append(out, fv)
			continue
		}
		b := raw[fs.offset : fs.offset+fs.size]
		fv.RawHex = hex.EncodeToString(b)
		fv.Decoded = decodeValue(b, fs.kind)
		if fs.scaler != nil {
			if scaled, ok := fs.scaler(fv.Decoded); ok {
				fv.Scaled = scaled
			}
		}
		out = append(out, fv)
	}
	return out
}

func decodeValue(b []byte, kind fieldKind) any {
	switch kind {
	case kindU8:
		return b[0]
	case kindU16:
		return binary.BigEndian.Uint16(b)
	case kindU32:
		return binary.BigEndian.Uint32(b)
	case kindI16:
		return int16(binary.BigEndian.Uint16(b))
	case kindI32:
		return int32(binary.BigEndian.Uint32(b))
	case kindString:
		if i := strings.IndexByte(string(b), 0); i >= 0 {
			b = b[:i]
		}
		runes := make([]rune, len(b))
		for i, ch := range b {
			runes[i] = rune(ch)
		}
		return string(runes)
	default:
		return nil
	}
}

func scaleBy(divisor float64) func(any) (any, bool) {
	return scaleFactor(1 / divisor)
}

func scaleFactor(factor float64) func(any) (any, bool) {
	return func(decoded any) (any, bool) {
		switch v := decoded.(type) {
		case uint8:
			return float64(v) * factor, true
		case uint16:
			return float64(v) * factor, true
		case uint32:
			return float64(v) * factor, true
		case int16:
			return float64(v) * factor, true
		case int32:
			return float64(v) * factor, true
		default:
			return nil, false
		}
	}
}

// layoutDocs renders the layout tables for the manifest.
func layoutDocs() map[string][]FieldLayout {
	out := make(map[string][]FieldLayout, len(layouts))
	for kind, fields := range layouts {
		docs := make([]FieldLayout, 0, len(fields))
		for _, fs := range fields {
			docs = append(docs, FieldLayout{
				Name:   fs.name,
				Offset: fs.offset,
				Size:   fs.size,
				Type:   string(fs.kind),
				Units:  fs.units,
			})
		}
		out[kind] = docs
	}
	return out
}
