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

// Package ftpboundary supplies the log-preparation collaborator the
// LUCP session invokes from WaitingUploadRequest: archive a log file
// and push it to a drop directory over FTP, so the device peer can
// subsequently log in, download it, and report FTP_LOGIN_RESULT /
// FTP_DOWNLOAD_RESULT back to the session.
package ftpboundary

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/lucp/cfg"
	"github.com/facebookincubator/lucp/lucp/protocol"
)

// Uploader pushes one archived log file to the FTP drop location. The
// default implementation (FTPUploader, built by NewFTPUploader) drives a
// real login+STOR via
// github.com/jlaffaye/ftp; tests use SimulatedUploader instead.
type Uploader interface {
	Upload(ctx context.Context, remoteName string, payload []byte) error
}

// Config is sourced from the LUCP daemon's cfg.Store: `[file] tmp_dir`
// for the archive staging location, and the FTP drop target the
// session's WaitingUploadRequest step uploads to.
type Config struct {
	TmpDir    string
	FTPHost   string
	FTPPort   int
	FTPUser   string
	FTPPass   string
	Timeout   time.Duration
	RemoteDir string
}

// FromStore builds a Config from the daemon's [file]/[ftp] sections.
func FromStore(store *cfg.Store) Config {
	return Config{
		TmpDir:    store.GetStringDefault("file", "tmp_dir", "/tmp/lucpd"),
		FTPHost:   store.GetStringDefault("ftp", "host", "127.0.0.1"),
		FTPPort:   int(store.GetUint16Default("ftp", "port", 21)),
		FTPUser:   store.GetStringDefault("ftp", "user", "anonymous"),
		FTPPass:   store.GetStringDefault("ftp", "password", ""),
		Timeout:   time.Duration(store.GetIntDefault("ftp", "timeout_ms", 5000)) * time.Millisecond,
		RemoteDir: store.GetStringDefault("ftp", "remote_dir", "/incoming"),
	}
}

// Prep implements lucp/session.LogPrep: the log-preparation step the
// session delegates to from WaitingUploadRequest.
type Prep struct {
	cfg      Config
	uploader Uploader
}

// New builds a Prep that uploads through uploader (a *FTPUploader in
// production, a *SimulatedUploader in tests).
func New(cfg Config, uploader Uploader) *Prep {
	return &Prep{cfg: cfg, uploader: uploader}
}

// Prepare archives and uploads a log file for sequence seq, returning
// the status/reason pair the session's NOTIFY_DONE reply carries:
// StatusSuccess with the uploaded file name, StatusArchiveFailed, or
// StatusFtpUploadFailed.
func (p *Prep) Prepare(seq uint32) (protocol.Status, string) {
	name := fmt.Sprintf("demo_logfile_%d.log", seq)
	payload, err := archive(p.cfg, name)
	if err != nil {
		log.WithError(err).WithField("seq", seq).Warn("ftpboundary: archive failed")
		return protocol.StatusArchiveFailed, "archive failed"
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()
	if err := p.uploader.Upload(ctx, name, payload); err != nil {
		log.WithError(err).WithField("seq", seq).Warn("ftpboundary: ftp upload failed")
		return protocol.StatusFtpUploadFailed, "ftp upload failed"
	}

	return protocol.StatusSuccess, name
}

// archive is the local staging step: in this repository it is a stub
// that stands in for the device-side tar/gzip of its log directory;
// it always succeeds with a small placeholder payload.
func archive(cfg Config, name string) ([]byte, error) {
	return []byte(fmt.Sprintf("lucp archive placeholder for %s (tmp_dir=%s)", name, cfg.TmpDir)), nil
}
