// Package diagnostics builds a downloadable tar.gz support bundle
// describing rfbd's configuration, session set, and Go runtime state.
package diagnostics

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/rjsadow/rfbd/internal/rfb"
	"github.com/rjsadow/rfbd/internal/rfbconfig"
)

// Collector gathers diagnostic information from a running rfbd process.
type Collector struct {
	server  *rfb.Server
	config  *rfbconfig.Config
	started time.Time
}

// NewCollector creates a diagnostics collector bound to server and cfg.
func NewCollector(server *rfb.Server, cfg *rfbconfig.Config, started time.Time) *Collector {
	return &Collector{server: server, config: cfg, started: started}
}

// Bundle is a complete diagnostics snapshot.
type Bundle struct {
	GeneratedAt time.Time      `json:"generated_at"`
	System      SystemInfo     `json:"system"`
	Config      RedactedConfig `json:"config"`
	Health      HealthSummary  `json:"health"`
	Sessions    SessionStats   `json:"sessions"`
	Runtime     RuntimeInfo    `json:"runtime"`
}

// SystemInfo is basic host/process information.
type SystemInfo struct {
	GoVersion     string  `json:"go_version"`
	GOOS          string  `json:"goos"`
	GOARCH        string  `json:"goarch"`
	NumCPU        int     `json:"num_cpu"`
	Hostname      string  `json:"hostname"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// RedactedConfig is rfbd's configuration with secrets stripped.
type RedactedConfig struct {
	Port            int     `json:"port"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DesktopName     string  `json:"desktop_name"`
	AuthEnabled     bool    `json:"auth_enabled"`
	AcceptRate      float64 `json:"accept_rate"`
	AcceptBurst     int     `json:"accept_burst"`
	CaptureInterval string  `json:"capture_interval"`
	WSBridgeEnabled bool    `json:"ws_bridge_enabled"`
	AdminAPIEnabled bool    `json:"admin_api_enabled"`
}

// HealthSummary is the server's current overall health.
type HealthSummary struct {
	Overall      string `json:"overall"`
	ListenerUp   bool   `json:"listener_up"`
	SessionCount int    `json:"session_count"`
}

// SessionStats describes the live session set, including which
// encodings clients have advertised support for.
type SessionStats struct {
	ActiveSessions   int            `json:"active_sessions"`
	EncodingCounts   map[string]int `json:"encoding_counts"`
	FramebufferWidth int            `json:"framebuffer_width"`
	FramebufferHigh  int            `json:"framebuffer_height"`
}

// RuntimeInfo is Go runtime/GC information.
type RuntimeInfo struct {
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory"`
}

// MemoryStats is a condensed view of runtime.MemStats.
type MemoryStats struct {
	AllocMB      float64 `json:"alloc_mb"`
	TotalAllocMB float64 `json:"total_alloc_mb"`
	SysMB        float64 `json:"sys_mb"`
	NumGC        uint32  `json:"num_gc"`
}

// Collect gathers all diagnostic sections into a Bundle.
func (c *Collector) Collect(ctx context.Context) (*Bundle, error) {
	bundle := &Bundle{GeneratedAt: time.Now().UTC()}
	bundle.System = c.collectSystemInfo()
	bundle.Config = c.collectRedactedConfig()
	bundle.Sessions = c.collectSessionStats()
	bundle.Health = c.collectHealth(bundle.Sessions)
	bundle.Runtime = c.collectRuntimeInfo()
	return bundle, nil
}

// WriteTarGz writes the diagnostics bundle as a tar.gz archive to w.
func (c *Collector) WriteTarGz(ctx context.Context, w io.Writer) error {
	bundle, err := c.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collecting diagnostics: %w", err)
	}

	gzw := gzip.NewWriter(w)
	defer gzw.Close()
	tw := tar.NewWriter(gzw)
	defer tw.Close()

	bundleJSON, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling bundle: %w", err)
	}
	if err := addFileToTar(tw, "diagnostics/bundle.json", bundleJSON); err != nil {
		return fmt.Errorf("adding bundle.json to archive: %w", err)
	}

	sections := map[string]any{
		"diagnostics/system.json":   bundle.System,
		"diagnostics/config.json":   bundle.Config,
		"diagnostics/health.json":   bundle.Health,
		"diagnostics/sessions.json": bundle.Sessions,
		"diagnostics/runtime.json":  bundle.Runtime,
	}
	for name, data := range sections {
		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", name, err)
		}
		if err := addFileToTar(tw, name, jsonData); err != nil {
			return fmt.Errorf("adding %s to archive: %w", name, err)
		}
	}
	return nil
}

func addFileToTar(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name:    name,
		Size:    int64(len(data)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func (c *Collector) collectSystemInfo() SystemInfo {
	hostname, _ := os.Hostname()
	uptime := time.Since(c.started)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		GOOS:          runtime.GOOS,
		GOARCH:        runtime.GOARCH,
		NumCPU:        runtime.NumCPU(),
		Hostname:      hostname,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
	}
}

func (c *Collector) collectRedactedConfig() RedactedConfig {
	return RedactedConfig{
		Port:            c.config.Port,
		Width:           c.config.Width,
		Height:          c.config.Height,
		DesktopName:     c.config.DesktopName,
		AuthEnabled:     c.config.Password != "",
		AcceptRate:      c.config.AcceptRate,
		AcceptBurst:     c.config.AcceptBurst,
		CaptureInterval: c.config.CaptureInterval.String(),
		WSBridgeEnabled: c.config.WSPort != 0,
		AdminAPIEnabled: c.config.AdminPort != 0,
	}
}

func (c *Collector) collectHealth(sessions SessionStats) HealthSummary {
	return HealthSummary{
		Overall:      "healthy",
		ListenerUp:   true,
		SessionCount: sessions.ActiveSessions,
	}
}

func (c *Collector) collectSessionStats() SessionStats {
	sessions := c.server.Sessions()
	width, height := c.server.Dimensions()
	counts := make(map[string]int)
	for _, sess := range sessions {
		for _, enc := range sess.Encodings {
			counts[enc]++
		}
	}
	return SessionStats{
		ActiveSessions:   len(sessions),
		EncodingCounts:   counts,
		FramebufferWidth: width,
		FramebufferHigh:  height,
	}
}

func (c *Collector) collectRuntimeInfo() RuntimeInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return RuntimeInfo{
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			AllocMB:      float64(memStats.Alloc) / 1024 / 1024,
			TotalAllocMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			SysMB:        float64(memStats.Sys) / 1024 / 1024,
			NumGC:        memStats.NumGC,
		},
	}
}
