// Zaparoo MSU
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo MSU.
//
// Zaparoo MSU is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo MSU is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo MSU.  If not, see <http://www.gnu.org/licenses/>.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/api/middleware"
	"github.com/ZaparooProject/zaparoo-msu/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-msu/pkg/config"
	"github.com/ZaparooProject/zaparoo-msu/pkg/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	RequestTimeout    = 10 * time.Second
	ReadHeaderTimeout = 5 * time.Second
	ShutdownTimeout   = 5 * time.Second
)

// StatusProvider exposes the daemon snapshot.
type StatusProvider interface {
	Status() models.DaemonStatus
}

// ReadingsProvider exposes the readings behind the last rendered frame.
type ReadingsProvider interface {
	Latest() metrics.Readings
}

// Server is the read-only status API. It never touches the serial port, all
// data comes from daemon snapshots.
type Server struct {
	status   StatusProvider
	readings ReadingsProvider
	session  *melody.Melody
	limiter  *middleware.RateLimiter
	router   chi.Router
	deviceID string
}

func NewServer(
	cfg *config.Instance,
	status StatusProvider,
	readings ReadingsProvider,
	clock clockwork.Clock,
) *Server {
	s := &Server{
		status:   status,
		readings: readings,
		session:  melody.New(),
		limiter:  middleware.NewRateLimiter(clock),
		deviceID: cfg.DeviceID(),
	}
	s.session.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	s.session.HandleConnect(func(sess *melody.Session) {
		log.Debug().Str("addr", sess.Request.RemoteAddr).Msg("events client connected")
		s.sendSnapshot(sess)
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.IPFilterMiddleware(middleware.NewIPFilter(cfg.APIAllowedIPs())))
	r.Use(middleware.RateLimitMiddleware(s.limiter))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
	}))

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.NoCache)
		r.Use(chimiddleware.Timeout(RequestTimeout))
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/version", s.handleVersion)
	})

	r.Get("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if err := s.session.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling events websocket request")
		}
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe binds addr and serves until ctx is done.
func (s *Server) ListenAndServe(
	ctx context.Context,
	addr string,
	notifications <-chan models.Notification,
) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, notifications)
}

// Serve serves on ln and broadcasts notifications to events clients until
// ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener, notifications <-chan models.Notification) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	log.Info().Str("addr", ln.Addr().String()).Msg("status API listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.broadcastNotifications(gctx, notifications)
		return nil
	})
	g.Go(func() error {
		s.limiter.RunCleanup(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if err := s.session.Close(); err != nil && !errors.Is(err, melody.ErrClosed) {
			log.Debug().Err(err).Msg("closing events sessions")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status API shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status API: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("status API stopped: %w", err)
	}
	return nil
}

func (s *Server) snapshot() models.StatusResponse {
	resp := models.StatusResponse{DaemonStatus: s.status.Status()}
	if s.readings != nil {
		r := s.readings.Latest()
		if !r.CollectedAt.IsZero() {
			resp.Readings = &r
		}
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.snapshot())
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, models.VersionResponse{
		Version:  config.AppVersion,
		DeviceID: s.deviceID,
	})
}

func (s *Server) sendSnapshot(sess *melody.Session) {
	data, err := json.Marshal(models.Notification{
		Method: models.NotificationStatus,
		Params: s.snapshot(),
	})
	if err != nil {
		log.Error().Err(err).Msg("marshalling status snapshot")
		return
	}
	if err := sess.Write(data); err != nil {
		log.Debug().Err(err).Msg("writing status snapshot")
	}
}

// broadcastNotifications forwards daemon events to every events client with
// the latest readings attached.
func (s *Server) broadcastNotifications(ctx context.Context, notifications <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-notifications:
			if !ok {
				return
			}
			if notif.Params.Readings == nil && s.readings != nil {
				r := s.readings.Latest()
				notif.Params.Readings = &r
			}

			data, err := json.Marshal(notif)
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification")
				continue
			}
			if err := s.session.Broadcast(data); err != nil && !errors.Is(err, melody.ErrClosed) {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding API response")
	}
}
