package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/aetherless/aetherless/pkg/dataplane"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, StatusResponse{
		Uptime:    time.Since(s.startTime).Truncate(time.Second).String(),
		Interface: s.iface,
		Backend:   s.backend,
		Policy:    s.policy.String(),
		PortCount: s.table.Len(),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	c, err := s.stats.ReadStats()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := StatsResponse{
		Total:   c.Total,
		Matched: c.Matched,
		Passed:  c.Passed,
		Dropped: c.Dropped,
	}
	if s.shards != nil {
		for i, sc := range s.shards() {
			resp.Shards = append(resp.Shards, ShardStats{
				Shard:   i,
				Total:   sc.Total,
				Matched: sc.Matched,
				Passed:  sc.Passed,
				Dropped: sc.Dropped,
			})
		}
	}
	writeOK(w, resp)
}

func (s *Server) clearStatsHandler(w http.ResponseWriter, _ *http.Request) {
	if err := s.stats.ClearStats(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeOK(w, map[string]string{"status": "cleared"})
}

func (s *Server) listPortsHandler(w http.ResponseWriter, _ *http.Request) {
	entries := s.table.Entries()
	ports := make([]PortEntry, 0, len(entries))
	for _, port := range s.table.Ports() {
		val := entries[port]
		ports = append(ports, PortEntry{
			Port: port,
			PID:  val.PID,
			Addr: dataplane.UnpackAddr(val.Addr).String(),
		})
	}
	writeOK(w, ports)
}

func (s *Server) registerPortHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.Port == 0 {
		writeError(w, http.StatusBadRequest, "port 0 cannot be registered")
		return
	}

	if req.Addr == "" {
		req.Addr = "127.0.0.1"
	}
	addr, err := netip.ParseAddr(req.Addr)
	if err != nil || !addr.Is4() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid IPv4 addr %q", req.Addr))
		return
	}

	val := dataplane.PortValue{PID: req.PID, Addr: dataplane.PackAddr(addr)}
	prev, replaced := s.table.Entries()[req.Port]
	if err := s.table.Register(req.Port, val); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if s.sync != nil {
		if err := s.sync.SyncPort(req.Port, val); err != nil {
			// Keep userspace and kernel views consistent.
			if replaced {
				s.table.Register(req.Port, prev)
			} else {
				s.table.Unregister(req.Port)
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeOK(w, PortEntry{Port: req.Port, PID: req.PID, Addr: addr.String()})
}

func (s *Server) unregisterPortHandler(w http.ResponseWriter, r *http.Request) {
	port, err := strconv.ParseUint(r.PathValue("port"), 10, 16)
	if err != nil || port == 0 {
		writeError(w, http.StatusBadRequest, "invalid port")
		return
	}
	if !s.table.Unregister(uint16(port)) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("port %d not registered", port))
		return
	}
	if s.sync != nil {
		if err := s.sync.DeletePort(uint16(port)); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeOK(w, map[string]any{"port": port, "status": "unregistered"})
}
