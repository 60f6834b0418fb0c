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

package cfg

import (
	"fmt"
	"strings"
)

// ErrNotFound is returned by accessors when section/key has no entry.
type ErrNotFound struct {
	Section, Key string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("cfg: no value for [%s] %s", e.Section, e.Key)
}

// ErrRange is returned by the narrow integer accessors when the stored
// value does not fit the target type.
type ErrRange struct {
	Section, Key string
	Value        float64
}

func (e *ErrRange) Error() string {
	return fmt.Sprintf("cfg: value %g for [%s] %s out of range", e.Value, e.Section, e.Key)
}

// ErrType is returned when an accessor is used against a value of an
// incompatible kind (e.g. GetInt against a non-numeric string).
type ErrType struct {
	Section, Key string
}

func (e *ErrType) Error() string {
	return fmt.Sprintf("cfg: value for [%s] %s is not of the requested type", e.Section, e.Key)
}

// GetString returns the raw textual form of the value. For Integer/Double
// entries this is still the pre-parse text.
func (s *Store) GetString(section, key string) (string, error) {
	e, ok := s.lookup(section, key)
	if !ok {
		return "", &ErrNotFound{section, key}
	}
	return e.raw, nil
}

// GetInt returns the stored value as an int64. It succeeds for Integer
// entries directly, and for expression/Double entries by truncation.
func (s *Store) GetInt(section, key string) (int64, error) {
	e, ok := s.lookup(section, key)
	if !ok {
		return 0, &ErrNotFound{section, key}
	}
	switch {
	case e.kind == KindInteger:
		return e.ival, nil
	case e.kind == KindDouble:
		return int64(e.dval), nil
	default:
		return 0, &ErrType{section, key}
	}
}

// GetDouble returns the stored value as a float64.
func (s *Store) GetDouble(section, key string) (float64, error) {
	e, ok := s.lookup(section, key)
	if !ok {
		return 0, &ErrNotFound{section, key}
	}
	switch e.kind {
	case KindDouble:
		return e.dval, nil
	case KindInteger:
		return float64(e.ival), nil
	default:
		return 0, &ErrType{section, key}
	}
}

// numericValue returns the value that range-checked integer accessors
// narrow, whichever native kind produced it.
func (s *Store) numericValue(section, key string) (float64, error) {
	e, ok := s.lookup(section, key)
	if !ok {
		return 0, &ErrNotFound{section, key}
	}
	switch e.kind {
	case KindInteger:
		return float64(e.ival), nil
	case KindDouble:
		return e.dval, nil
	default:
		return 0, &ErrType{section, key}
	}
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// GetInt8 through GetUint64 succeed only when the stored numeric value
// falls within the target's representable range; otherwise *ErrRange is
// returned and the stored value is left untouched.

func (s *Store) GetInt8(section, key string) (int8, error) {
	v, err := s.numericValue(section, key)
	if err != nil {
		return 0, err
	}
	if !inRange(v, -128, 127) {
		return 0, &ErrRange{section, key, v}
	}
	return int8(v), nil
}

func (s *Store) GetInt16(section, key string) (int16, error) {
	v, err := s.numericValue(section, key)
	if err != nil {
		return 0, err
	}
	if !inRange(v, -32768, 32767) {
		return 0, &ErrRange{section, key, v}
	}
	return int16(v), nil
}

func (s *Store) GetInt32(section, key string) (int32, error) {
	v, err := s.numericValue(section, key)
	if err != nil {
		return 0, err
	}
	if !inRange(v, -2147483648, 2147483647) {
		return 0, &ErrRange{section, key, v}
	}
	return int32(v), nil
}

func (s *Store) GetInt64(section, key string) (int64, error) {
	if e, ok := s.lookup(section, key); ok && e.kind == KindInteger {
		return e.ival, nil
	}
	v, err := s.numericValue(section, key)
	if err != nil {
		return 0, err
	}
	if !(v >= -9223372036854775808 && v < 9223372036854775808) {
		return 0, &ErrRange{section, key, v}
	}
	return int64(v), nil
}

func (s *Store) GetUint8(section, key string) (uint8, error) {
	v, err := s.numericValue(section, key)
	if err != nil {
		return 0, err
	}
	if !inRange(v, 0, 255) {
		return 0, &ErrRange{section, key, v}
	}
	return uint8(v), nil
}

func (s *Store) GetUint16(section, key string) (uint16, error) {
	v, err := s.numericValue(section, key)
	if err != nil {
		return 0, err
	}
	if !inRange(v, 0, 65535) {
		return 0, &ErrRange{section, key, v}
	}
	return uint16(v), nil
}

func (s *Store) GetUint32(section, key string) (uint32, error) {
	v, err := s.numericValue(section, key)
	if err != nil {
		return 0, err
	}
	if !inRange(v, 0, 4294967295) {
		return 0, &ErrRange{section, key, v}
	}
	return uint32(v), nil
}

func (s *Store) GetUint64(section, key string) (uint64, error) {
	if e, ok := s.lookup(section, key); ok && e.kind == KindInteger {
		if e.ival < 0 {
			return 0, &ErrRange{section, key, float64(e.ival)}
		}
		return uint64(e.ival), nil
	}
	v, err := s.numericValue(section, key)
	if err != nil {
		return 0, err
	}
	if !(v >= 0 && v < 18446744073709551616) {
		return 0, &ErrRange{section, key, v}
	}
	return uint64(v), nil
}

// GetBool accepts integer 0/1, an expression result compared against
// zero, or the string literal pairs true/false, yes/no, on/off
// (case-insensitive).
func (s *Store) GetBool(section, key string) (bool, error) {
	e, ok := s.lookup(section, key)
	if !ok {
		return false, &ErrNotFound{section, key}
	}
	switch e.kind {
	case KindInteger:
		if e.ival == 0 || e.ival == 1 {
			return e.ival == 1, nil
		}
		return false, &ErrType{section, key}
	case KindDouble:
		return e.dval != 0, nil
	default:
		switch strings.ToLower(strings.TrimSpace(e.raw)) {
		case "true", "yes", "on":
			return true, nil
		case "false", "no", "off":
			return false, nil
		default:
			return false, &ErrType{section, key}
		}
	}
}

// GetStringDefault and friends are convenience helpers used by daemon
// config loaders that fall back to defaults on a missing key.

func (s *Store) GetStringDefault(section, key, def string) string {
	if v, err := s.GetString(section, key); err == nil {
		return v
	}
	return def
}

func (s *Store) GetIntDefault(section, key string, def int64) int64 {
	if v, err := s.GetInt(section, key); err == nil {
		return v
	}
	return def
}

func (s *Store) GetUint16Default(section, key string, def uint16) uint16 {
	if v, err := s.GetUint16(section, key); err == nil {
		return v
	}
	return def
}

func (s *Store) GetBoolDefault(section, key string, def bool) bool {
	if v, err := s.GetBool(section, key); err == nil {
		return v
	}
	return def
}
