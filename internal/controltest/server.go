// Package controltest provides an in-process stand-in for the ledger
// server's control API, for tests that exercise the configuration
// round-trip without a real server binary.
package controltest

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/julienschmidt/httprouter"

	"github.com/ledgersim/launcher/control"
)

// Server records control-channel calls and serves canned responses.
type Server struct {
	InstanceID      int
	GatewayPort     uint16
	RootKey         []byte
	DefaultTargetID []byte

	srv *httptest.Server

	mu           sync.Mutex
	createReqs   []control.CreateInstanceRequest
	autoProgress []control.AutoProgressConfig
	deleted      []int
}

// New starts the fake on an ephemeral loopback port.
func New() *Server {
	s := &Server{
		InstanceID:      7,
		GatewayPort:     18080,
		RootKey:         []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02},
		DefaultTargetID: []byte{0, 0, 0, 0, 0, 0, 0, 1, 1, 1},
	}
	router := httprouter.New()
	router.POST("/instances", s.createInstance)
	router.POST("/instances/:id/auto_progress", s.setAutoProgress)
	router.GET("/instances/:id/root_key", s.rootKey)
	router.DELETE("/instances/:id", s.deleteInstance)
	s.srv = httptest.NewServer(router)
	return s
}

func (s *Server) Close() { s.srv.Close() }

// URL is the fake's base URL.
func (s *Server) URL() string { return s.srv.URL }

// Port is the admin port the fake listens on. A fake child writes this to
// the port file so the launcher configures against this server.
func (s *Server) Port() uint16 {
	return uint16(s.srv.Listener.Addr().(*net.TCPAddr).Port)
}

// CreateRequests returns the instance configurations received so far.
func (s *Server) CreateRequests() []control.CreateInstanceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]control.CreateInstanceRequest(nil), s.createReqs...)
}

// AutoProgressConfigs returns the auto-progress configurations received.
func (s *Server) AutoProgressConfigs() []control.AutoProgressConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]control.AutoProgressConfig(nil), s.autoProgress...)
}

// Deleted reports the instance IDs stopped over the control channel.
func (s *Server) Deleted() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.deleted...)
}

func (s *Server) createInstance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req control.CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.createReqs = append(s.createReqs, req)
	s.mu.Unlock()

	gatewayPort := s.GatewayPort
	if req.Gateway != nil && req.Gateway.Port != 0 {
		gatewayPort = req.Gateway.Port
	}
	writeJSON(w, control.Instance{
		ID:          s.InstanceID,
		GatewayPort: gatewayPort,
		Topology:    control.Topology{DefaultEffectiveTargetID: s.DefaultTargetID},
	})
}

func (s *Server) setAutoProgress(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var cfg control.AutoProgressConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.autoProgress = append(s.autoProgress, cfg)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) rootKey(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, map[string][]byte{"root_key": s.RootKey})
}

func (s *Server) deleteInstance(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	id, err := strconv.Atoi(ps.ByName("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.deleted = append(s.deleted, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
