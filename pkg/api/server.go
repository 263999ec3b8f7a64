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

// Package api serves the station's JSON-RPC 2.0 websocket API and pushes
// notifications to every connected client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/methods"
	"github.com/ZaparooProject/factory-test/pkg/api/middleware"
	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/models/requests"
	"github.com/ZaparooProject/factory-test/pkg/api/validation"
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/ZaparooProject/factory-test/pkg/database"
	"github.com/ZaparooProject/factory-test/pkg/dialog"
	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/ZaparooProject/factory-test/pkg/service/state"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

var (
	JSONRPCErrorParseError = models.ErrorObject{
		Code:    -32700,
		Message: "Parse error",
	}
	JSONRPCErrorInvalidRequest = models.ErrorObject{
		Code:    -32600,
		Message: "Invalid Request",
	}
	JSONRPCErrorMethodNotFound = models.ErrorObject{
		Code:    -32601,
		Message: "Method not found",
	}
	JSONRPCErrorInvalidParams = models.ErrorObject{
		Code:    -32602,
		Message: "Invalid params",
	}
	JSONRPCErrorServerError = models.ErrorObject{
		Code:    -32000,
		Message: "Server error",
	}
)

var nullID = json.RawMessage("null")

const shutdownWait = 5 * time.Second

type Options struct {
	Config        *config.Instance
	State         *state.State
	Results       *orchestrator.Results
	Defects       *orchestrator.Defects
	Dialogs       *dialog.Manager
	History       database.HistoryDBI
	Records       *records.Store
	Queue         *records.Queue
	OnReload      func()
	Notifications <-chan models.Notification
	// Snapshot supplies the current state pushed to clients on connect.
	Snapshot func() []models.Notification
}

func (o *Options) env(ctx context.Context, r *http.Request) requests.RequestEnv {
	return requests.RequestEnv{
		Context:  ctx,
		Config:   o.Config,
		State:    o.State,
		Results:  o.Results,
		Defects:  o.Defects,
		Dialogs:  o.Dialogs,
		History:  o.History,
		Records:  o.Records,
		Queue:    o.Queue,
		OnReload: o.OnReload,
		IsLocal:  middleware.IsLoopbackAddr(r.RemoteAddr),
	}
}

func handleRequest(env requests.RequestEnv, req models.RequestObject) (any, *models.ErrorObject) {
	log.Debug().Str("method", req.Method).RawJSON("id", req.ID).Msg("received request")

	fn, ok := methods.Map[strings.ToLower(req.Method)]
	if !ok {
		log.Warn().Str("method", req.Method).Msg("unknown method")
		return nil, &JSONRPCErrorMethodNotFound
	}

	env.ID = req.ID
	env.Params = req.Params

	resp, err := fn(env)
	if err != nil {
		return nil, errorObject(err)
	}
	return resp, nil
}

func errorObject(err error) *models.ErrorObject {
	var ve *validation.Error
	switch {
	case errors.Is(err, validation.ErrMissingParams),
		errors.Is(err, validation.ErrInvalidParams),
		errors.As(err, &ve):
		return &models.ErrorObject{Code: JSONRPCErrorInvalidParams.Code, Message: err.Error()}
	default:
		log.Error().Err(err).Msg("method failed")
		return &models.ErrorObject{Code: JSONRPCErrorServerError.Code, Message: err.Error()}
	}
}

func writeJSON(session *melody.Session, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error marshalling response: %w", err)
	}
	if err := session.Write(data); err != nil {
		return fmt.Errorf("error writing response: %w", err)
	}
	return nil
}

func sendResponse(session *melody.Session, id json.RawMessage, result any) error {
	return writeJSON(session, models.ResponseObject{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func sendError(session *melody.Session, id json.RawMessage, errObj models.ErrorObject) error {
	log.Debug().Int("code", errObj.Code).Str("message", errObj.Message).Msg("sending error")
	if len(id) == 0 {
		id = nullID
	}
	return writeJSON(session, models.ResponseErrorObject{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &errObj,
	})
}

func notificationFrame(n models.Notification) ([]byte, error) {
	data, err := json.Marshal(models.RequestObject{
		JSONRPC: "2.0",
		Method:  n.Method,
		Params:  n.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling notification: %w", err)
	}
	return data, nil
}

func broadcastNotifications(ctx context.Context, session *melody.Melody, ns <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-ns:
			if !ok {
				return
			}
			data, err := notificationFrame(notif)
			if err != nil {
				log.Error().Err(err).Msg("broadcasting notification")
				continue
			}
			if err := session.Broadcast(data); err != nil {
				log.Debug().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

// handleConnect brings a new client up to date: current state first,
// then any dialog still waiting for an answer.
func handleConnect(opts *Options) func(*melody.Session) {
	return func(session *melody.Session) {
		log.Info().Str("remote", session.Request.RemoteAddr).Msg("api client connected")
		var backlog []models.Notification
		if opts.Snapshot != nil {
			backlog = opts.Snapshot()
		}
		if opts.Dialogs != nil {
			for _, d := range opts.Dialogs.Pending() {
				params, err := json.Marshal(d)
				if err != nil {
					continue
				}
				backlog = append(backlog, models.Notification{Method: models.NotificationShowDialog, Params: params})
			}
		}
		for _, n := range backlog {
			data, err := notificationFrame(n)
			if err != nil {
				continue
			}
			if err := session.Write(data); err != nil {
				log.Debug().Err(err).Msg("failed to replay state to client")
				return
			}
		}
	}
}

func handleWSMessage(ctx context.Context, opts *Options) func(*melody.Session, []byte) {
	return func(session *melody.Session, msg []byte) {
		if bytes.Equal(msg, []byte("ping")) {
			if err := session.Write([]byte("pong")); err != nil {
				log.Error().Err(err).Msg("sending pong")
			}
			return
		}

		if !json.Valid(msg) {
			log.Warn().Msg("data not valid json")
			if err := sendError(session, nil, JSONRPCErrorParseError); err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}

		var req models.RequestObject
		if err := json.Unmarshal(msg, &req); err != nil || req.JSONRPC != "2.0" || req.Method == "" {
			log.Warn().Str("jsonrpc", req.JSONRPC).Msg("invalid request")
			if err := sendError(session, req.ID, JSONRPCErrorInvalidRequest); err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}

		if len(req.ID) == 0 {
			log.Debug().Str("method", req.Method).Msg("received notification, ignoring")
			return
		}

		resp, errObj := handleRequest(opts.env(ctx, session.Request), req)
		if errObj != nil {
			if err := sendError(session, req.ID, *errObj); err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}
		if err := sendResponse(session, req.ID, resp); err != nil {
			log.Error().Err(err).Msg("error sending response")
		}
	}
}

// NewRouter builds the HTTP handler. The notification broadcaster runs
// until ctx is done.
func NewRouter(ctx context.Context, opts *Options) http.Handler {
	r := chi.NewRouter()

	limiter := middleware.NewIPRateLimiter()
	limiter.StartCleanup(ctx)

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.NoCache)
	r.Use(middleware.HTTPIPFilterMiddleware(middleware.NewIPFilter(opts.Config.AllowedIPs())))
	r.Use(middleware.HTTPRateLimitMiddleware(limiter))

	origins := []string{"http://localhost", "http://127.0.0.1"}
	origins = append(origins, opts.Config.AllowedOrigins()...)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Accept"},
	}))

	session := melody.New()
	session.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	session.HandleConnect(handleConnect(opts))
	session.HandleMessage(middleware.WebSocketRateLimitHandler(limiter, handleWSMessage(ctx, opts)))
	if opts.Notifications != nil {
		go broadcastNotifications(ctx, session, opts.Notifications)
	}
	go func() {
		<-ctx.Done()
		if err := session.Close(); err != nil {
			log.Debug().Err(err).Msg("closing websocket sessions")
		}
	}()

	r.Get("/api", func(w http.ResponseWriter, r *http.Request) {
		if err := session.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}

// Start serves the API on the configured address until ctx is done.
func Start(ctx context.Context, opts *Options) error {
	addr := opts.Config.APIListen()
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           NewRouter(ctx, opts),
		ReadHeaderTimeout: config.APIRequestLimit,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("api server shutdown")
		}
	}()

	log.Info().Str("addr", addr).Msg("api server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
