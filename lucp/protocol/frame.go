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

// Package protocol implements the LUCP wire codec: a fixed 14-byte header
// followed by a variable-length, non-null-terminated text payload.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Magic identifies a LUCP frame: ASCII "LUCP".
const Magic uint32 = 0x4C554350

// Protocol version emitted by Make.
const (
	VersionMajor uint8 = 1
	VersionMinor uint8 = 0
)

// HeaderSize is the fixed-size portion of every frame on the wire.
const HeaderSize = 14

// MaxPayload is the largest text payload a frame may carry.
const MaxPayload = 1010

// MessageType identifies the LUCP command carried by a frame.
type MessageType uint8

// LUCP message types.
const (
	UploadRequest     MessageType = 0x01
	AckStart          MessageType = 0x02
	NotifyDone        MessageType = 0x03
	FtpLoginResult    MessageType = 0x04
	FtpDownloadResult MessageType = 0x05
	CloudUploadResult MessageType = 0x06
)

// Status identifies the result code carried by a frame.
type Status uint8

// LUCP status codes. Values 0xF0-0xFF are reserved for client-side
// errors.
const (
	StatusFailed            Status = 0x00
	StatusSuccess           Status = 0x01
	StatusArchiveFailed     Status = 0x10
	StatusFtpUploadFailed   Status = 0x11
	StatusFtpLoginFailed    Status = 0x20
	StatusFtpDownloadFailed Status = 0x21
	StatusCloudUploadFailed Status = 0x30
)

// ErrBufferTooSmall is returned by Pack when the destination buffer cannot
// hold the encoded frame.
var ErrBufferTooSmall = errors.New("lucp: buffer too small")

// ErrPayloadTooLarge is returned by Pack (and truncation-warned by Make)
// when a payload exceeds MaxPayload.
var ErrPayloadTooLarge = errors.New("lucp: payload exceeds 1010 bytes")

// Frame is a single LUCP protocol message.
type Frame struct {
	VersionMajor uint8
	VersionMinor uint8
	Sequence     uint32
	Type         MessageType
	Status       Status
	Payload      []byte
}

// EncodedLen returns the number of bytes Pack would write for f.
func (f *Frame) EncodedLen() int {
	return HeaderSize + len(f.Payload)
}

// Make initializes a frame with the current protocol constants, the given
// sequence/type/status, and a payload truncated to MaxPayload bytes.
// Truncation is logged as a warning, never returned as an error.
func Make(seq uint32, typ MessageType, status Status, payload []byte) *Frame {
	if len(payload) > MaxPayload {
		log.Warnf("lucp: truncating %d-byte payload to %d bytes", len(payload), MaxPayload)
		payload = payload[:MaxPayload]
	}
	return &Frame{
		VersionMajor: VersionMajor,
		VersionMinor: VersionMinor,
		Sequence:     seq,
		Type:         typ,
		Status:       status,
		Payload:      payload,
	}
}

// Pack writes the 14-byte header followed by the payload into buf, in
// network byte order. It returns the number of bytes written.
func Pack(f *Frame, buf []byte) (int, error) {
	if len(f.Payload) > MaxPayload {
		return 0, ErrPayloadTooLarge
	}
	total := HeaderSize + len(f.Payload)
	if len(buf) < total {
		return 0, ErrBufferTooSmall
	}

	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = f.VersionMajor
	buf[5] = f.VersionMinor
	binary.BigEndian.PutUint32(buf[6:10], f.Sequence)
	buf[10] = byte(f.Type)
	buf[11] = byte(f.Status)
	binary.BigEndian.PutUint16(buf[12:14], uint16(len(f.Payload)))
	copy(buf[HeaderSize:total], f.Payload)

	return total, nil
}

// UnpackResult classifies the outcome of Unpack.
type UnpackResult int

const (
	// Complete indicates buf held at least one full frame.
	Complete UnpackResult = iota
	// Incomplete indicates buf does not yet hold a full frame; the
	// caller should read more bytes and retry.
	Incomplete
	// Corrupt indicates buf can never produce a valid frame (bad magic
	// or an oversize declared payload) and must be discarded.
	Corrupt
)

// Unpack attempts to decode one frame from the head of buf.
//
//   - len(buf) < 14                      -> Incomplete
//   - magic mismatch                     -> Corrupt
//   - text_len > 1010                    -> Corrupt
//   - len(buf) < 14 + text_len           -> Incomplete
//   - otherwise                          -> Complete, consumed = 14+text_len
func Unpack(buf []byte) (frame *Frame, consumed int, result UnpackResult) {
	if len(buf) < HeaderSize {
		return nil, 0, Incomplete
	}

	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != Magic {
		return nil, 0, Corrupt
	}

	textLen := binary.BigEndian.Uint16(buf[12:14])
	if textLen > MaxPayload {
		return nil, 0, Corrupt
	}

	total := HeaderSize + int(textLen)
	if len(buf) < total {
		return nil, 0, Incomplete
	}

	f := &Frame{
		VersionMajor: buf[4],
		VersionMinor: buf[5],
		Sequence:     binary.BigEndian.Uint32(buf[6:10]),
		Type:         MessageType(buf[10]),
		Status:       Status(buf[11]),
	}
	if textLen > 0 {
		f.Payload = make([]byte, textLen)
		copy(f.Payload, buf[HeaderSize:total])
	}

	return f, total, Complete
}

func (t MessageType) String() string {
	switch t {
	case UploadRequest:
		return "UPLOAD_REQUEST"
	case AckStart:
		return "ACK_START"
	case NotifyDone:
		return "NOTIFY_DONE"
	case FtpLoginResult:
		return "FTP_LOGIN_RESULT"
	case FtpDownloadResult:
		return "FTP_DOWNLOAD_RESULT"
	case CloudUploadResult:
		return "CLOUD_UPLOAD_RESULT"
	default:
		return fmt.Sprintf("MessageType(0x%02x)", uint8(t))
	}
}

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "FAILED"
	case StatusSuccess:
		return "SUCCESS"
	case StatusArchiveFailed:
		return "ARCHIVE_FAILED"
	case StatusFtpUploadFailed:
		return "FTP_UPLOAD_FAILED"
	case StatusFtpLoginFailed:
		return "FTP_LOGIN_FAILED"
	case StatusFtpDownloadFailed:
		return "FTP_DOWNLOAD_FAILED"
	case StatusCloudUploadFailed:
		return "CLOUD_UPLOAD_FAILED"
	default:
		return fmt.Sprintf("Status(0x%02x)", uint8(s))
	}
}
