// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package api exposes the agent's local status endpoint.
package api

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/DataDog/process-guard/pkg/dispatcher"
	"github.com/DataDog/process-guard/pkg/guard"
	"github.com/DataDog/process-guard/pkg/kernel"
	"github.com/DataDog/process-guard/pkg/util/log"
	"github.com/DataDog/process-guard/pkg/version"
)

// StatusPayload is what GET /agent/status returns.
type StatusPayload struct {
	Version      string                           `json:"version"`
	State        string                           `json:"state"`
	ProtectedPid int32                            `json:"protected_pid,omitempty"`
	Protected    bool                             `json:"protected"`
	Checks       map[string]dispatcher.CheckStats `json:"checks"`
}

// Server serves the local status API.
type Server struct {
	srv        *http.Server
	d          *dispatcher.Dispatcher
	processCfg *guard.ProcessConfig
}

// NewServer builds the API server on the given port, bound to localhost.
func NewServer(port int, d *dispatcher.Dispatcher, processCfg *guard.ProcessConfig) *Server {
	s := &Server{
		d:          d,
		processCfg: processCfg,
	}

	r := mux.NewRouter()
	r.HandleFunc("/agent/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/agent/catalog", s.catalogHandler).Methods("GET")
	r.Handle("/debug/vars", expvar.Handler()).Methods("GET")

	s.srv = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: r,
	}
	return s
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("status api: %v", err) //nolint:errcheck
		}
	}()
	log.Infof("status api listening on %s", s.srv.Addr)
}

// Stop shuts the server down, letting in-flight requests finish.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.srv.Shutdown(ctx) //nolint:errcheck
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	payload := StatusPayload{
		Version: version.AgentVersion,
		State:   s.d.State().String(),
		Checks:  s.d.Stats(),
	}
	if pid, err := s.processCfg.GetProtectedProcessID(); err == nil {
		payload.Protected = true
		payload.ProtectedPid = pid
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload) //nolint:errcheck
}

func (s *Server) catalogHandler(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name         string `json:"name"`
		Code         uint32 `json:"code"`
		IntervalSecs int    `json:"interval_secs"`
		TimeoutSecs  int    `json:"timeout_secs"`
		Jitter       bool   `json:"jitter"`
	}

	var entries []entry
	for _, desc := range kernel.Catalog() {
		entries = append(entries, entry{
			Name:         desc.Kind.String(),
			Code:         desc.Code,
			IntervalSecs: int(desc.Interval / time.Second),
			TimeoutSecs:  int(desc.Timeout / time.Second),
			Jitter:       desc.Jitter,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries) //nolint:errcheck
}
