// Zaparoo Factory Test
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Factory Test.
//
// Zaparoo Factory Test is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Factory Test is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Factory Test.  If not, see <http://www.gnu.org/licenses/>.

// Package fileserver serves the test payload to the target and absorbs
// upload traffic for throughput checks.
package fileserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	PayloadExt     = ".tar"
	DefaultPort    = 8080
	shutdownWait   = 5 * time.Second
	readHeaderWait = 10 * time.Second
)

var ErrNoPayload = errors.New("no payload archive found")

type Server struct {
	fs  afero.Fs
	dir string
}

func New(fs afero.Fs, dir string) *Server {
	return &Server{fs: fs, dir: dir}
}

// NewestPayload returns the most recently modified .tar in the payload dir.
func (s *Server) NewestPayload() (string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to read payload dir: %w", err)
	}
	var (
		newest string
		mod    time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), PayloadExt) {
			continue
		}
		if newest == "" || e.ModTime().After(mod) {
			newest = e.Name()
			mod = e.ModTime()
		}
	}
	if newest == "" {
		return "", ErrNoPayload
	}
	return filepath.Join(s.dir, newest), nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Get("/download", s.handleDownload)
	r.Post("/upload", handleUpload)
	return r
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path, err := s.NewestPayload()
	if err != nil {
		log.Error().Err(err).Msg("payload download requested but none available")
		http.Error(w, "no payload", http.StatusNotFound)
		return
	}
	f, err := s.fs.Open(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to open payload")
		http.Error(w, "payload unavailable", http.StatusInternalServerError)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close payload")
		}
	}()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "payload unavailable", http.StatusInternalServerError)
		return
	}

	log.Info().Str("path", path).Str("remote", r.RemoteAddr).Msg("serving payload")
	w.Header().Set("Content-Type", "application/x-tar")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

type uploadResponse struct {
	Bytes   int64 `json:"bytes"`
	Success bool  `json:"success"`
}

func handleUpload(w http.ResponseWriter, r *http.Request) {
	n, err := io.Copy(io.Discard, r.Body)
	if err != nil {
		log.Warn().Err(err).Int64("bytes", n).Msg("upload aborted")
		http.Error(w, "upload aborted", http.StatusBadRequest)
		return
	}
	log.Debug().Int64("bytes", n).Str("remote", r.RemoteAddr).Msg("upload received")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(uploadResponse{Success: true, Bytes: n}); err != nil {
		log.Warn().Err(err).Msg("failed to write upload response")
	}
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderWait,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("file server shutdown")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Str("dir", s.dir).Msg("file server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("file server failed: %w", err)
	}
	return nil
}
