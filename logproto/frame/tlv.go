/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package frame

import (
	"encoding/binary"
)

// TLVType identifies a single Type-Length-Value record.
type TLVType uint8

// TLV types.
const (
	TLVStatusMessage  TLVType = 0x00
	TLVAppID          TLVType = 0x01
	TLVLogMessage     TLVType = 0x02
	TLVThresholdLevel TLVType = 0x03
	TLVEntryLevel     TLVType = 0x04
	TLVTimestamp      TLVType = 0x05
	TLVFatalMode      TLVType = 0x21
	TLVErrorMode      TLVType = 0x22
	TLVWarningMode    TLVType = 0x23
	TLVInfoMode       TLVType = 0x24
	TLVDebugMode      TLVType = 0x25
	TLVVerboseMode    TLVType = 0x26
)

// TLV is one Type-Length-Value record.
type TLV struct {
	Type  TLVType
	Value []byte
}

// decodeTLVs parses a flat TLV stream. Unknown TLV types are kept and
// never invalidate the frame during parsing; only the schema validator
// rejects on missing/misshapen required TLVs.
func decodeTLVs(buf []byte) ([]TLV, error) {
	var out []TLV
	off := 0
	for off < len(buf) {
		if off+3 > len(buf) {
			return nil, ErrBadTLVEncoding
		}
		typ := TLVType(buf[off])
		length := binary.BigEndian.Uint16(buf[off+1 : off+3])
		off += 3
		if int(length) > MaxTLVValue {
			return nil, ErrValueTooLarge
		}
		if off+int(length) > len(buf) {
			return nil, ErrBadTLVEncoding
		}
		value := make([]byte, length)
		copy(value, buf[off:off+int(length)])
		out = append(out, TLV{Type: typ, Value: value})
		off += int(length)
	}
	return out, nil
}

// Get returns the first TLV of typ in tlvs, if present.
func Get(tlvs []TLV, typ TLVType) (TLV, bool) {
	for _, t := range tlvs {
		if t.Type == typ {
			return t, true
		}
	}
	return TLV{}, false
}

// GetAll returns every TLV of typ, in order, used for the repeated
// (ENTRY_LEVEL, TIMESTAMP, LOG_MESSAGE) triples of a MULTIPLE_LOGS frame.
func GetAll(tlvs []TLV, typ TLVType) []TLV {
	var out []TLV
	for _, t := range tlvs {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

// NewString builds a NUL-terminated string TLV.
func NewString(typ TLVType, s string) TLV {
	v := make([]byte, len(s)+1)
	copy(v, s)
	v[len(s)] = 0
	return TLV{Type: typ, Value: v}
}

// GetString returns the decoded string of a NUL-terminated string TLV.
// It returns ok=false if the last byte is not '\0'.
func GetString(t TLV) (string, bool) {
	if len(t.Value) == 0 || t.Value[len(t.Value)-1] != 0 {
		return "", false
	}
	return string(t.Value[:len(t.Value)-1]), true
}

// NewByte builds a single-byte TLV (used for ENTRY_LEVEL, THRESHOLD_LEVEL
// and the six *_MODE types).
func NewByte(typ TLVType, v uint8) TLV {
	return TLV{Type: typ, Value: []byte{v}}
}

// GetByte returns the value of a single-byte TLV.
func GetByte(t TLV) (uint8, bool) {
	if len(t.Value) != 1 {
		return 0, false
	}
	return t.Value[0], true
}

// Timestamp is the decoded form of a TIMESTAMP TLV: 8-byte signed seconds
// followed by 2-byte milliseconds, both big-endian.
type Timestamp struct {
	Sec int64
	MS  uint16
}

// NewTimestamp builds a TIMESTAMP TLV.
func NewTimestamp(ts Timestamp) TLV {
	v := make([]byte, 10)
	binary.BigEndian.PutUint64(v[0:8], uint64(ts.Sec))
	binary.BigEndian.PutUint16(v[8:10], ts.MS)
	return TLV{Type: TLVTimestamp, Value: v}
}

// GetTimestamp decodes a TIMESTAMP TLV; it must be exactly 10 bytes.
func GetTimestamp(t TLV) (Timestamp, bool) {
	if len(t.Value) != 10 {
		return Timestamp{}, false
	}
	return Timestamp{
		Sec: int64(binary.BigEndian.Uint64(t.Value[0:8])),
		MS:  binary.BigEndian.Uint16(t.Value[8:10]),
	}, true
}
