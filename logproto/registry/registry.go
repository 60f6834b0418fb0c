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

// Package registry resolves per-application log policy (threshold
// level and per-level destination modes) out of the typed
// configuration store, and enforces the log server's application cap.
package registry

import (
	"fmt"
	"strings"

	"github.com/facebookincubator/lucp/cfg"
	"github.com/facebookincubator/lucp/logproto/frame"
)

// MaxApplications is the ceiling on registered applications in the log
// server.
const MaxApplications = 20

// generalSection is the section name reserved for daemon-wide
// defaults; every other section name is an application identifier.
const generalSection = "general"

// Policy is one application's resolved log classification policy.
type Policy struct {
	AppID     string
	Threshold frame.Level
	Modes     map[frame.Level]cfg.Mode
}

// Allows reports whether a log at lvl should be forwarded at all: at
// or below the configured threshold (lower ordinal == more severe)
// and with a non-empty destination mode.
func (p Policy) Allows(lvl frame.Level) bool {
	if lvl > p.Threshold {
		return false
	}
	return p.Modes[lvl] != 0
}

// Registry resolves Policy values from a cfg.Store, enforcing
// MaxApplications.
type Registry struct {
	store *cfg.Store
}

// New wraps store.
func New(store *cfg.Store) *Registry {
	return &Registry{store: store}
}

// ErrTooManyApplications is returned by Lookup, whatever appID is, when
// the store holds more than MaxApplications application sections.
var ErrTooManyApplications = fmt.Errorf("registry: more than %d applications configured", MaxApplications)

// Lookup resolves appID's policy. ok is false if the application has
// no matching configuration section; the server replies PURE_STATUS
// in that case.
func (r *Registry) Lookup(appID string) (Policy, bool, error) {
	sections := r.store.GetSections()
	appCount := 0
	found := false
	for _, s := range sections {
		if strings.EqualFold(s, generalSection) {
			continue
		}
		appCount++
		if strings.EqualFold(s, appID) {
			found = true
		}
	}
	if appCount > MaxApplications {
		return Policy{}, false, ErrTooManyApplications
	}
	if !found {
		return Policy{}, false, nil
	}

	// [general] supplies daemon-wide defaults; the application's own
	// section overrides them key by key.
	generalThreshold := r.store.GetStringDefault(generalSection, "threshold_level", "info")
	thresholdStr := r.store.GetStringDefault(appID, "threshold_level", generalThreshold)
	threshold, ok := frame.ParseLevel(thresholdStr)
	if !ok {
		threshold = frame.LevelInfo
	}

	modes := make(map[frame.Level]cfg.Mode, 6)
	for lvl := frame.LevelFatal; lvl <= frame.LevelVerbose; lvl++ {
		key := lvl.String() + ".mode"
		if _, err := r.store.GetString(appID, key); err == nil {
			modes[lvl] = r.store.GetMode(appID, key)
		} else {
			modes[lvl] = r.store.GetMode(generalSection, key)
		}
	}

	return Policy{AppID: appID, Threshold: threshold, Modes: modes}, true, nil
}
