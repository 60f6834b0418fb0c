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

// Package cfg implements a typed, case-insensitive key/value configuration
// store parsed from an INI-like file with a small arithmetic expression
// evaluator layered on top of raw string values.
package cfg

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-ini/ini"
	log "github.com/sirupsen/logrus"
)

// Kind is the discriminant of a parsed configuration value.
type Kind int

// Value kinds a raw string can resolve to. Quoted strings are not a
// distinct Kind: they resolve to String after stripping the quotes.
const (
	KindString Kind = iota
	KindInteger
	KindDouble
)

// entry is one stored configuration value.
type entry struct {
	section string
	key     string
	raw     string
	ival    int64
	dval    float64
	isExpr  bool
	kind    Kind
}

// Store is an in-memory, case-insensitive section/key/value store.
// All reads and writes are serialized by a single mutex.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	// sections and keys do not preserve insertion order.
	sections map[string]map[string]struct{}
}

// ErrParse is returned by Load when the file cannot be parsed; the
// whole file is discarded on any parse error.
type ErrParse struct {
	Path   string
	Reason string
}

func (e *ErrParse) Error() string {
	return fmt.Sprintf("cfg: parse error loading %q: %s", e.Path, e.Reason)
}

func normKey(section, key string) string {
	return strings.ToLower(section) + "\x00" + strings.ToLower(key)
}

// NewStore returns an empty store. Callers typically use Load instead.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*entry),
		sections: make(map[string]map[string]struct{}),
	}
}

// Load parses path as an INI-like file (sections in `[name]`, lines of
// `key = value`) using go-ini as the tokenizer, then runs the typed value
// inference over every key. On any parse error the whole file is
// discarded and a non-nil *ErrParse is returned.
func Load(path string) (*Store, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, &ErrParse{Path: path, Reason: err.Error()}
	}

	s := NewStore()
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection && len(sec.Keys()) == 0 {
			continue
		}
		for _, k := range sec.Keys() {
			if k.Name() == "" {
				return nil, &ErrParse{Path: path, Reason: "empty key name"}
			}
			if err := s.set(name, k.Name(), k.Value()); err != nil {
				return nil, &ErrParse{Path: path, Reason: err.Error()}
			}
		}
	}
	log.Debugf("cfg: loaded %d section(s) from %s", len(s.sections), path)
	return s, nil
}

// Set stores value under section/key, inferring its type. It is
// exposed so callers (and tests) can build a Store without a backing file.
func (s *Store) Set(section, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(section, key, value)
}

func (s *Store) set(section, key, value string) error {
	e, err := parseValue(section, key, value)
	if err != nil {
		return err
	}
	nk := normKey(section, key)
	s.entries[nk] = e

	ls := strings.ToLower(section)
	if s.sections[ls] == nil {
		s.sections[ls] = make(map[string]struct{})
	}
	s.sections[ls][strings.ToLower(key)] = struct{}{}
	return nil
}

func (s *Store) lookup(section, key string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[normKey(section, key)]
	return e, ok
}

// GetSections returns the distinct section names present in the store.
// Insertion order is not preserved.
func (s *Store) GetSections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sections))
	for sec := range s.sections {
		out = append(out, sec)
	}
	return out
}

// GetKeys returns the distinct key names within section.
func (s *Store) GetKeys(section string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.sections[strings.ToLower(section)]
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	return out
}
