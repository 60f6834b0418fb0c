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
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/jlaffaye/ftp"
)

// FTPUploader is the default Uploader: it dials the configured FTP
// server, logs in, and STORs the archive under RemoteDir.
type FTPUploader struct {
	cfg Config
}

// NewFTPUploader builds an FTPUploader from cfg.
func NewFTPUploader(cfg Config) *FTPUploader {
	return &FTPUploader{cfg: cfg}
}

// Upload dials, logs in, and stores payload under remoteName, closing
// the control connection whether or not the transfer succeeds.
func (u *FTPUploader) Upload(ctx context.Context, remoteName string, payload []byte) error {
	addr := fmt.Sprintf("%s:%d", u.cfg.FTPHost, u.cfg.FTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(u.cfg.Timeout))
	if err != nil {
		return fmt.Errorf("ftpboundary: dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login(u.cfg.FTPUser, u.cfg.FTPPass); err != nil {
		return fmt.Errorf("ftpboundary: login: %w", err)
	}

	remote := path.Join(u.cfg.RemoteDir, remoteName)
	if err := conn.Stor(remote, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("ftpboundary: stor %s: %w", remote, err)
	}
	return nil
}

// SimulatedUploader is the Uploader used in tests: it never touches
// the network and lets tests script success/failure per call.
type SimulatedUploader struct {
	// Fail, when non-nil, is returned by Upload instead of succeeding.
	Fail error
	// Calls records every (remoteName, payload) pair passed to Upload.
	Calls []SimulatedCall
}

// SimulatedCall is one recorded Upload invocation.
type SimulatedCall struct {
	RemoteName string
	Payload    []byte
}

// Upload records the call and returns Fail (nil on success).
func (s *SimulatedUploader) Upload(_ context.Context, remoteName string, payload []byte) error {
	s.Calls = append(s.Calls, SimulatedCall{RemoteName: remoteName, Payload: payload})
	return s.Fail
}
