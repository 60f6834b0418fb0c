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

// Package frame implements the log-telemetry TLV frame: a fixed header
// followed by a sequence of Type-Length-Value records.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic identifies a log frame on the wire.
const Magic uint32 = 0xDEADBEEF

// Protocol version emitted by New.
const (
	MajorVersion uint8 = 1
	MinorVersion uint8 = 0
)

// HeaderSize is the fixed portion of a log frame: magic(4) +
// major_version(1) + minor_version(1) + sequence(2) + timestamp_sec(8) +
// timestamp_ms(2) + msg_type(1) + status(1) + payload_len(2).
const HeaderSize = 22

// MaxTLVValue is the largest a single TLV value may be.
const MaxTLVValue = 32 * 1024

// DefaultMaxFrameSize is the default overall frame size ceiling.
const DefaultMaxFrameSize = 64 * 1024

// MessageType identifies the kind of log-protocol message a frame carries.
type MessageType uint8

// Log-protocol message types.
const (
	RequestConfig MessageType = 0x01
	ConfigStatus  MessageType = 0x02
	PureStatus    MessageType = 0x03
	UpdateConfig  MessageType = 0x04
	SingleLog     MessageType = 0x05
	MultipleLogs  MessageType = 0x06
)

// Status mirrors the single status byte carried in the header.
type Status uint8

// Frame statuses.
const (
	StatusOK   Status = 0x00
	StatusFail Status = 0x01
)

// Errors returned while decoding a frame.
var (
	ErrBadMagic       = errors.New("logframe: bad magic")
	ErrBadVersion     = errors.New("logframe: incompatible major version")
	ErrTooLarge       = errors.New("logframe: frame exceeds max size")
	ErrTruncated      = errors.New("logframe: truncated header or TLV")
	ErrValueTooLarge  = errors.New("logframe: TLV value exceeds 32KiB")
	ErrBadTLVEncoding = errors.New("logframe: malformed TLV stream")
)

// Frame is one log-telemetry message: a header plus a TLV-encoded
// payload.
type Frame struct {
	MajorVersion uint8
	MinorVersion uint8
	Sequence     uint16
	TimestampSec int64
	TimestampMS  uint16
	Type         MessageType
	Status       Status
	TLVs         []TLV
}

// New builds a frame with the current protocol version and the supplied
// fields. Callers set TimestampSec/TimestampMS directly or via
// WithTimestamp.
func New(seq uint16, typ MessageType, status Status, tlvs ...TLV) *Frame {
	return &Frame{
		MajorVersion: MajorVersion,
		MinorVersion: MinorVersion,
		Sequence:     seq,
		Type:         typ,
		Status:       status,
		TLVs:         tlvs,
	}
}

// WithTimestamp sets the frame's timestamp fields and returns f for
// chaining.
func (f *Frame) WithTimestamp(sec int64, ms uint16) *Frame {
	f.TimestampSec = sec
	f.TimestampMS = ms
	return f
}

func (f *Frame) payloadLen() int {
	n := 0
	for _, t := range f.TLVs {
		n += 3 + len(t.Value)
	}
	return n
}

// Encode serializes f to its wire form, enforcing maxFrameSize (pass
// DefaultMaxFrameSize, or 0 to skip the check).
func (f *Frame) Encode(maxFrameSize int) ([]byte, error) {
	payloadLen := f.payloadLen()
	total := HeaderSize + payloadLen
	if maxFrameSize > 0 && total > maxFrameSize {
		return nil, ErrTooLarge
	}
	if payloadLen > 0xFFFF {
		return nil, ErrTooLarge
	}

	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = f.MajorVersion
	buf[5] = f.MinorVersion
	binary.BigEndian.PutUint16(buf[6:8], f.Sequence)
	binary.BigEndian.PutUint64(buf[8:16], uint64(f.TimestampSec))
	binary.BigEndian.PutUint16(buf[16:18], f.TimestampMS)
	buf[18] = byte(f.Type)
	buf[19] = byte(f.Status)
	binary.BigEndian.PutUint16(buf[20:22], uint16(payloadLen))

	off := HeaderSize
	for _, t := range f.TLVs {
		if len(t.Value) > MaxTLVValue {
			return nil, ErrValueTooLarge
		}
		buf[off] = byte(t.Type)
		binary.BigEndian.PutUint16(buf[off+1:off+3], uint16(len(t.Value)))
		copy(buf[off+3:], t.Value)
		off += 3 + len(t.Value)
	}
	return buf, nil
}

// Decode parses a complete, already length-delimited frame buffer; the
// caller (logproto/wire) is responsible for reading exactly
// payload_len+HeaderSize bytes off the wire first. requireMajor is the
// version this peer requires an exact major-version match against; pass
// 0 to skip the check.
func Decode(buf []byte, requireMajor uint8, maxFrameSize int) (*Frame, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTruncated
	}
	if maxFrameSize > 0 && len(buf) > maxFrameSize {
		return nil, ErrTooLarge
	}

	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != Magic {
		return nil, ErrBadMagic
	}

	f := &Frame{
		MajorVersion: buf[4],
		MinorVersion: buf[5],
		Sequence:     binary.BigEndian.Uint16(buf[6:8]),
		TimestampSec: int64(binary.BigEndian.Uint64(buf[8:16])),
		TimestampMS:  binary.BigEndian.Uint16(buf[16:18]),
		Type:         MessageType(buf[18]),
		Status:       Status(buf[19]),
	}
	if requireMajor != 0 && f.MajorVersion != requireMajor {
		return nil, ErrBadVersion
	}

	payloadLen := binary.BigEndian.Uint16(buf[20:22])
	if HeaderSize+int(payloadLen) != len(buf) {
		return nil, ErrTruncated
	}

	tlvs, err := decodeTLVs(buf[HeaderSize:])
	if err != nil {
		return nil, err
	}
	f.TLVs = tlvs
	return f, nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{seq=%d type=%s status=%d tlvs=%d}", f.Sequence, f.Type, f.Status, len(f.TLVs))
}

func (t MessageType) String() string {
	switch t {
	case RequestConfig:
		return "REQUEST_CONFIG"
	case ConfigStatus:
		return "CONFIG_STATUS"
	case PureStatus:
		return "PURE_STATUS"
	case UpdateConfig:
		return "UPDATE_CONFIG"
	case SingleLog:
		return "SINGLE_LOG"
	case MultipleLogs:
		return "MULTIPLE_LOGS"
	default:
		return fmt.Sprintf("MessageType(0x%02x)", uint8(t))
	}
}
