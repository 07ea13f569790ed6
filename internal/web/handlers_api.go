package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matishsiao/goInfo"

	"lampd/internal/adapter"
	"lampd/internal/driver"
	"lampd/internal/node"
	"lampd/internal/zcl/clusters"
)

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	host := map[string]interface{}{}
	if gi, err := goInfo.GetInfo(); err == nil {
		host["os"] = gi.OS
		host["kernel"] = gi.Kernel
		host["core"] = gi.Core
		host["platform"] = gi.Platform
		host["hostname"] = gi.Hostname
		host["cpus"] = gi.CPUs
	}

	s.connMu.RLock()
	transports := make(map[string]bool, len(s.transports))
	for k, v := range s.transports {
		transports[k] = v
	}
	s.connMu.RUnlock()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"device":     s.node.Info(),
		"version":    s.version,
		"uptime":     s.node.Uptime().Round(time.Second).String(),
		"state":      s.adapter.Properties(),
		"transports": transports,
		"host":       host,
	})
}

func (s *Server) handleAPIGetLamp(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.adapter.Properties())
}

// lampRequest is the friendly control surface: absolute values in
// human units, every field optional.
type lampRequest struct {
	On         *bool `json:"on,omitempty"`
	Toggle     bool  `json:"toggle,omitempty"`
	Brightness *int  `json:"brightness,omitempty"`
	Hue        *int  `json:"hue,omitempty"`
	Saturation *int  `json:"saturation,omitempty"`
	Kelvin     *int  `json:"kelvin,omitempty"`
	Mireds     *int  `json:"mireds,omitempty"`
}

type lampCommand struct {
	Cluster uint16
	Command uint8
	Payload map[string]interface{}
}

// lampCommands translates a lamp request into cluster commands. Power
// first, so a brightness change in the same request lands on a lit
// lamp.
func lampCommands(req lampRequest) []lampCommand {
	var cmds []lampCommand

	if req.Toggle {
		cmds = append(cmds, lampCommand{clusters.IDOnOff, clusters.CmdToggle, nil})
	} else if req.On != nil {
		cmd := clusters.CmdOff
		if *req.On {
			cmd = clusters.CmdOn
		}
		cmds = append(cmds, lampCommand{clusters.IDOnOff, cmd, nil})
	}

	if req.Brightness != nil {
		cmds = append(cmds, lampCommand{clusters.IDLevelControl, clusters.CmdMoveToLevelWithOnOff,
			map[string]interface{}{"level": clampRange(*req.Brightness, 0, int(driver.LevelMax))}})
	}

	switch {
	case req.Hue != nil && req.Saturation != nil:
		cmds = append(cmds, lampCommand{clusters.IDColorControl, clusters.CmdMoveToHueAndSaturation,
			map[string]interface{}{"hue": hueToAttr(*req.Hue), "saturation": satToAttr(*req.Saturation)}})
	case req.Hue != nil:
		cmds = append(cmds, lampCommand{clusters.IDColorControl, clusters.CmdMoveToHue,
			map[string]interface{}{"hue": hueToAttr(*req.Hue)}})
	case req.Saturation != nil:
		cmds = append(cmds, lampCommand{clusters.IDColorControl, clusters.CmdMoveToSaturation,
			map[string]interface{}{"saturation": satToAttr(*req.Saturation)}})
	}

	switch {
	case req.Kelvin != nil && *req.Kelvin > 0:
		cmds = append(cmds, lampCommand{clusters.IDColorControl, clusters.CmdMoveToColorTemperature,
			map[string]interface{}{"mireds": adapter.KelvinToMireds(uint32(*req.Kelvin))}})
	case req.Mireds != nil && *req.Mireds > 0:
		m := *req.Mireds
		if m > 0xFFFF {
			m = 0xFFFF
		}
		cmds = append(cmds, lampCommand{clusters.IDColorControl, clusters.CmdMoveToColorTemperature,
			map[string]interface{}{"mireds": m}})
	}

	return cmds
}

// hueToAttr converts hue degrees to the 0..254 attribute scale.
func hueToAttr(deg int) int {
	deg = clampRange(deg, 0, int(driver.HueMax))
	return int(adapter.RemapRange(uint32(deg), uint32(driver.HueMax), 254))
}

// satToAttr converts saturation percent to the 0..254 attribute scale.
func satToAttr(pct int) int {
	pct = clampRange(pct, 0, int(driver.SaturationMax))
	return int(adapter.RemapRange(uint32(pct), uint32(driver.SaturationMax), 254))
}

func clampRange(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Server) handleAPISetLamp(w http.ResponseWriter, r *http.Request) {
	var req lampRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	cmds := lampCommands(req)
	if len(cmds) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no recognized fields in request"})
		return
	}

	for _, c := range cmds {
		if err := s.node.Invoke(1, c.Cluster, c.Command, c.Payload, "web"); err != nil {
			s.writeNodeError(w, "set lamp", err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, s.adapter.Properties())
}

type identifyRequest struct {
	Seconds int `json:"seconds"`
}

func (s *Server) handleAPIIdentify(w http.ResponseWriter, r *http.Request) {
	// Empty body means the default blink; an explicit zero stops an
	// identify effect that is already running.
	req := identifyRequest{Seconds: 3}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Seconds < 0 {
		req.Seconds = 0
	}

	err := s.node.Invoke(1, clusters.IDIdentify, clusters.CmdIdentify,
		map[string]interface{}{"time": req.Seconds}, "web")
	if err != nil {
		s.writeNodeError(w, "identify", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIListClusters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.node.Registry().All())
}

func (s *Server) handleAPIListAttributes(w http.ResponseWriter, r *http.Request) {
	endpoint := uint8(1)
	if q := r.URL.Query().Get("endpoint"); q != "" {
		v, err := strconv.ParseUint(q, 10, 8)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid endpoint"})
			return
		}
		endpoint = uint8(v)
	}

	attrs := s.node.Attributes(endpoint)
	if attrs == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "endpoint not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, attrs)
}

type writeAttributeRequest struct {
	Endpoint uint8       `json:"endpoint"`
	Value    interface{} `json:"value"`
}

func (s *Server) handleAPIWriteAttribute(w http.ResponseWriter, r *http.Request) {
	cluster, err := parseUint16(r.PathValue("cluster"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cluster id"})
		return
	}
	attr, err := parseUint16(r.PathValue("attr"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid attribute id"})
		return
	}

	var req writeAttributeRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Endpoint == 0 {
		req.Endpoint = 1
	}

	if err := s.node.WriteAttribute(req.Endpoint, cluster, attr, req.Value, "web"); err != nil {
		s.writeNodeError(w, "write attribute", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type commandRequest struct {
	Endpoint uint8                  `json:"endpoint"`
	Cluster  uint16                 `json:"cluster"`
	Command  uint8                  `json:"command"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

func (s *Server) handleAPICommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Endpoint == 0 {
		req.Endpoint = 1
	}

	if err := s.node.Invoke(req.Endpoint, req.Cluster, req.Command, req.Payload, "web"); err != nil {
		s.writeNodeError(w, "send command", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeNodeError maps node dispatch errors to HTTP statuses.
func (s *Server) writeNodeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, node.ErrUnsupportedCluster),
		errors.Is(err, node.ErrUnsupportedAttribute),
		errors.Is(err, node.ErrUnsupportedCommand):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, node.ErrReadOnly):
		s.writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, node.ErrInvalidValue), errors.Is(err, node.ErrInvalidPayload):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error(op, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// parseUint16 accepts decimal ("768") and hex ("0x0300") cluster and
// attribute IDs.
func parseUint16(v string) (uint16, error) {
	base := 10
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		v = v[2:]
		base = 16
	}
	n, err := strconv.ParseUint(v, base, 16)
	return uint16(n), err
}
