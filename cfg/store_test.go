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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAndGetString(t *testing.T) {
	path := writeTempConfig(t, `
[network]
ip = 127.0.0.1
port = 32100
`)
	s, err := Load(path)
	require.NoError(t, err)

	ip, err := s.GetString("network", "ip")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", ip)

	// case-insensitive lookup
	ip2, err := s.GetString("NETWORK", "IP")
	require.NoError(t, err)
	require.Equal(t, ip, ip2)
}

func TestExpressionValue(t *testing.T) {
	path := writeTempConfig(t, `
[expressions]
prop_expr = (2 + 3) * 4 - 1
`)
	s, err := Load(path)
	require.NoError(t, err)

	d, err := s.GetDouble("expressions", "prop_expr")
	require.NoError(t, err)
	require.Equal(t, 19.0, d)

	i, err := s.GetInt("expressions", "prop_expr")
	require.NoError(t, err)
	require.Equal(t, int64(19), i)
}

func TestExpressionResidualCharacterFails(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("x", "bad_expr", "1 + 2 foo"))
	// falls through to string, since it is neither a clean expression,
	// integer, nor float.
	kind, err := s.GetString("x", "bad_expr")
	require.NoError(t, err)
	require.Equal(t, "1 + 2 foo", kind)
	_, err = s.GetDouble("x", "bad_expr")
	require.Error(t, err)
}

func TestRangeCheckedAccessors(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("limits", "u8_max_p1", "256"))
	require.NoError(t, s.Set("limits", "u8_max", "255"))

	_, err := s.GetUint8("limits", "u8_max_p1")
	require.Error(t, err)
	var rangeErr *ErrRange
	require.ErrorAs(t, err, &rangeErr)

	v, err := s.GetUint8("limits", "u8_max")
	require.NoError(t, err)
	require.Equal(t, uint8(255), v)
}

func TestGetBool(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("f", "a", "true"))
	require.NoError(t, s.Set("f", "b", "Off"))
	require.NoError(t, s.Set("f", "c", "1"))
	require.NoError(t, s.Set("f", "d", "0"))

	for key, want := range map[string]bool{"a": true, "b": false, "c": true, "d": false} {
		got, err := s.GetBool("f", key)
		require.NoError(t, err)
		require.Equal(t, want, got, key)
	}
}

func TestGetSectionsAndKeys(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("general", "ip", "127.0.0.1"))
	require.NoError(t, s.Set("general", "port", "9000"))
	require.NoError(t, s.Set("svc", "threshold_level", "debug"))

	sections := s.GetSections()
	require.ElementsMatch(t, []string{"general", "svc"}, sections)

	keys := s.GetKeys("general")
	require.ElementsMatch(t, []string{"ip", "port"}, keys)
}

func TestParseModeGrammar(t *testing.T) {
	require.Equal(t, ModeConsole|ModeVolatile, ParseMode("console+volatile"))
	require.Equal(t, ModePersistent, ParseMode("PERSISTENT"))
	require.Equal(t, Mode(0), ParseMode(""))
}

func TestLoadRejectsUnterminatedSectionHeader(t *testing.T) {
	// A section header with no closing ']' is rejected by the tokenizer,
	// so Load returns an error instead of a partially populated store.
	path := writeTempConfig(t, "[network\nip=127.0.0.1\n")
	_, err := Load(path)
	require.Error(t, err)
}
