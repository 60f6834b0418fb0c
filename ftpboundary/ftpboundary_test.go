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

package ftpboundary

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/lucp/lucp/protocol"
)

func testConfig() Config {
	return Config{TmpDir: "/tmp/lucpd-test", Timeout: time.Second}
}

func TestPrepareSuccess(t *testing.T) {
	up := &SimulatedUploader{}
	p := New(testConfig(), up)

	status, reason := p.Prepare(10001)

	require.Equal(t, protocol.StatusSuccess, status)
	require.Equal(t, "demo_logfile_10001.log", reason)
	require.Len(t, up.Calls, 1)
	require.Equal(t, "demo_logfile_10001.log", up.Calls[0].RemoteName)
}

func TestPrepareUploadFailure(t *testing.T) {
	up := &SimulatedUploader{Fail: errors.New("connection refused")}
	p := New(testConfig(), up)

	status, _ := p.Prepare(42)

	require.Equal(t, protocol.StatusFtpUploadFailed, status)
}
