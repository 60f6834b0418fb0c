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

import "fmt"

// ErrSchema is returned by Validate when a frame's TLV set does not
// satisfy the required shape for its message type.
type ErrSchema struct {
	Reason string
}

func (e *ErrSchema) Error() string { return "logframe: schema violation: " + e.Reason }

var configModeTLVs = []TLVType{
	TLVFatalMode, TLVErrorMode, TLVWarningMode, TLVInfoMode, TLVDebugMode, TLVVerboseMode,
}

// Validate checks f's TLV set against the required-TLV schema for
// f.Type. For every type except MULTIPLE_LOGS, unknown TLV types are
// ignored and only required types and their per-type shape are checked.
// A MULTIPLE_LOGS payload must be exactly APP_ID followed by
// (ENTRY_LEVEL, TIMESTAMP, LOG_MESSAGE) triples, so any other TLV in it
// is rejected.
func (f *Frame) Validate() error {
	switch f.Type {
	case RequestConfig:
		return requireString(f, TLVAppID)

	case ConfigStatus:
		if err := requireString(f, TLVStatusMessage); err != nil {
			return err
		}
		if err := requireString(f, TLVAppID); err != nil {
			return err
		}
		if err := requireByte(f, TLVThresholdLevel); err != nil {
			return err
		}
		for _, m := range configModeTLVs {
			if err := requireByte(f, m); err != nil {
				return err
			}
		}
		return nil

	case PureStatus:
		if err := requireString(f, TLVAppID); err != nil {
			return err
		}
		return requireString(f, TLVStatusMessage)

	case UpdateConfig:
		if err := requireString(f, TLVAppID); err != nil {
			return err
		}
		if err := requireByte(f, TLVThresholdLevel); err != nil {
			return err
		}
		for _, m := range configModeTLVs {
			if err := requireByte(f, m); err != nil {
				return err
			}
		}
		return nil

	case SingleLog:
		if err := requireString(f, TLVAppID); err != nil {
			return err
		}
		if err := requireByte(f, TLVEntryLevel); err != nil {
			return err
		}
		if err := requireTimestamp(f); err != nil {
			return err
		}
		return requireString(f, TLVLogMessage)

	case MultipleLogs:
		return validateMultipleLogs(f)

	default:
		return &ErrSchema{Reason: fmt.Sprintf("unknown message type 0x%02x", uint8(f.Type))}
	}
}

func requireString(f *Frame, typ TLVType) error {
	t, ok := Get(f.TLVs, typ)
	if !ok {
		return &ErrSchema{Reason: fmt.Sprintf("missing required TLV %d", typ)}
	}
	if _, ok := GetString(t); !ok {
		return &ErrSchema{Reason: fmt.Sprintf("TLV %d is not NUL-terminated", typ)}
	}
	return nil
}

func requireByte(f *Frame, typ TLVType) error {
	t, ok := Get(f.TLVs, typ)
	if !ok {
		return &ErrSchema{Reason: fmt.Sprintf("missing required TLV %d", typ)}
	}
	if _, ok := GetByte(t); !ok {
		return &ErrSchema{Reason: fmt.Sprintf("TLV %d must be exactly 1 byte", typ)}
	}
	return nil
}

func requireTimestamp(f *Frame) error {
	t, ok := Get(f.TLVs, TLVTimestamp)
	if !ok {
		return &ErrSchema{Reason: "missing required TLV TIMESTAMP"}
	}
	if _, ok := GetTimestamp(t); !ok {
		return &ErrSchema{Reason: "TLV TIMESTAMP must be exactly 10 bytes"}
	}
	return nil
}

// validateMultipleLogs checks that the payload is exactly APP_ID followed
// by zero or more (ENTRY_LEVEL, TIMESTAMP, LOG_MESSAGE) triples, in that
// exact interleaving.
func validateMultipleLogs(f *Frame) error {
	if len(f.TLVs) == 0 {
		return &ErrSchema{Reason: "MULTIPLE_LOGS frame has no TLVs"}
	}
	if f.TLVs[0].Type != TLVAppID {
		return &ErrSchema{Reason: "MULTIPLE_LOGS must start with APP_ID"}
	}
	if _, ok := GetString(f.TLVs[0]); !ok {
		return &ErrSchema{Reason: "APP_ID is not NUL-terminated"}
	}

	rest := f.TLVs[1:]
	if len(rest)%3 != 0 {
		return &ErrSchema{Reason: "MULTIPLE_LOGS entries must come in (ENTRY_LEVEL, TIMESTAMP, LOG_MESSAGE) triples"}
	}
	for i := 0; i < len(rest); i += 3 {
		lvl, ts, msg := rest[i], rest[i+1], rest[i+2]
		if lvl.Type != TLVEntryLevel {
			return &ErrSchema{Reason: "expected ENTRY_LEVEL"}
		}
		if _, ok := GetByte(lvl); !ok {
			return &ErrSchema{Reason: "ENTRY_LEVEL must be exactly 1 byte"}
		}
		if ts.Type != TLVTimestamp {
			return &ErrSchema{Reason: "expected TIMESTAMP"}
		}
		if _, ok := GetTimestamp(ts); !ok {
			return &ErrSchema{Reason: "TIMESTAMP must be exactly 10 bytes"}
		}
		if msg.Type != TLVLogMessage {
			return &ErrSchema{Reason: "expected LOG_MESSAGE"}
		}
		if _, ok := GetString(msg); !ok {
			return &ErrSchema{Reason: "LOG_MESSAGE is not NUL-terminated"}
		}
	}
	return nil
}
