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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := New(42, SingleLog, StatusOK,
		NewString(TLVAppID, "svc"),
		NewByte(TLVEntryLevel, 3),
		NewTimestamp(Timestamp{Sec: 1732999999, MS: 250}),
		NewString(TLVLogMessage, "hello world"),
	).WithTimestamp(1732999999, 250)

	buf, err := f.Encode(DefaultMaxFrameSize)
	require.NoError(t, err)

	got, err := Decode(buf, MajorVersion, DefaultMaxFrameSize)
	require.NoError(t, err)
	require.Equal(t, f.Sequence, got.Sequence)
	require.Equal(t, f.Type, got.Type)
	require.Len(t, got.TLVs, 4)
	require.NoError(t, got.Validate())
}

func TestDecodeBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	_, err := Decode(buf, 0, 0)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeVersionMismatch(t *testing.T) {
	f := New(1, RequestConfig, StatusOK, NewString(TLVAppID, "svc"))
	buf, err := f.Encode(0)
	require.NoError(t, err)

	_, err = Decode(buf, 2, 0)
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestDecodeTooLarge(t *testing.T) {
	f := New(1, RequestConfig, StatusOK, NewString(TLVAppID, "svc"))
	buf, err := f.Encode(0)
	require.NoError(t, err)

	_, err = Decode(buf, 0, HeaderSize)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestValidateRequestConfig(t *testing.T) {
	ok := New(1, RequestConfig, StatusOK, NewString(TLVAppID, "svc"))
	require.NoError(t, ok.Validate())

	missing := New(1, RequestConfig, StatusOK)
	require.Error(t, missing.Validate())
}

func TestValidateConfigStatus(t *testing.T) {
	f := New(1, ConfigStatus, StatusOK,
		NewString(TLVStatusMessage, "ok"),
		NewString(TLVAppID, "svc"),
		NewByte(TLVThresholdLevel, 5),
		NewByte(TLVFatalMode, 1),
		NewByte(TLVErrorMode, 1),
		NewByte(TLVWarningMode, 1),
		NewByte(TLVInfoMode, 1),
		NewByte(TLVDebugMode, 1),
		NewByte(TLVVerboseMode, 0),
	)
	require.NoError(t, f.Validate())

	missingMode := New(1, ConfigStatus, StatusOK,
		NewString(TLVStatusMessage, "ok"),
		NewString(TLVAppID, "svc"),
		NewByte(TLVThresholdLevel, 5),
	)
	require.Error(t, missingMode.Validate())
}

func TestValidateMultipleLogsBatch(t *testing.T) {
	f := New(1, MultipleLogs, StatusOK, NewString(TLVAppID, "svc"))
	for i := 0; i < 3; i++ {
		f.TLVs = append(f.TLVs,
			NewByte(TLVEntryLevel, uint8(i)),
			NewTimestamp(Timestamp{Sec: int64(1700000000 + i), MS: 0}),
			NewString(TLVLogMessage, "entry"),
		)
	}
	require.NoError(t, f.Validate())

	// Break the interleaving: a dangling triple.
	f.TLVs = f.TLVs[:len(f.TLVs)-1]
	require.Error(t, f.Validate())
}

func TestStringTLVMustBeNulTerminated(t *testing.T) {
	raw := TLV{Type: TLVAppID, Value: []byte("svc")} // no trailing NUL
	_, ok := GetString(raw)
	require.False(t, ok)
}

func TestUnknownTLVIgnoredByDecode(t *testing.T) {
	f := New(1, RequestConfig, StatusOK,
		TLV{Type: TLVType(0x7f), Value: []byte{1, 2, 3}},
		NewString(TLVAppID, "svc"),
	)
	buf, err := f.Encode(0)
	require.NoError(t, err)

	got, err := Decode(buf, 0, 0)
	require.NoError(t, err)
	require.NoError(t, got.Validate())
}
