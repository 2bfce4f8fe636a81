package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/config"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    flags
		wantErr bool
	}{
		{"empty", nil, flags{}, false},
		{"headless", []string{"-headless", "-frames", "10"}, flags{headless: true, frames: 10}, false},
		{"watch", []string{"-config", "p.toml", "-watch"}, flags{config: "p.toml", watch: true}, false},
		{"watch without config", []string{"-watch"}, flags{}, true},
		{"negative frames", []string{"-frames", "-1"}, flags{}, true},
		{"positional", []string{"extra"}, flags{}, true},
		{"unknown flag", []string{"-nope"}, flags{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseFlags(%v) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseFlagsHelp(t *testing.T) {
	var out bytes.Buffer
	_, err := parseFlags([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("parseFlags(-h) error = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(out.String(), "-headless") {
		t.Errorf("usage does not list -headless:\n%s", out.String())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "particles.toml")
	data := "[simulation]\nparticles = 64\n\n[debug]\nlog_level = \"warn\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(flags{config: path, headless: true, metrics: "localhost:0", logLevel: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.Particles != 64 {
		t.Errorf("Particles = %d, want 64", cfg.Simulation.Particles)
	}
	if !cfg.Window.Headless {
		t.Error("Headless = false, want true")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "localhost:0" {
		t.Errorf("Metrics = %+v, want enabled on localhost:0", cfg.Metrics)
	}
	if cfg.Debug.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want the flag to win", cfg.Debug.LogLevel)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	if _, err := loadConfig(flags{logLevel: "loud"}); err == nil {
		t.Error("loadConfig() accepted log level \"loud\"")
	}
	if _, err := loadConfig(flags{config: filepath.Join(t.TempDir(), "missing.toml")}); err == nil {
		t.Error("loadConfig() accepted a missing file")
	}
}

func TestRunHeadless(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var stdout bytes.Buffer
	err := run(ctx, []string{"-headless", "-frames", "3", "-log", "error"}, &stdout, io.Discard)
	if err != nil {
		t.Fatalf("run() = %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"sim: 1,024 particles, 3 frames", "compute ticks 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary does not contain %q:\n%s", want, out)
		}
	}
}

func TestRunHeadlessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Without -frames it runs until ctx is done.
	err := run(ctx, []string{"-headless", "-log", "error"}, io.Discard, io.Discard)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("run() = %v, want nil or context.Canceled", err)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, "sim", 12345, particles.Stats{Frames: 20, ComputeTicks: 20, Rebuilds: 1}, 2*time.Second)
	out := buf.String()
	for _, want := range []string{"12,345 particles", "20 frames in 2s (10.0 fps)", "swapchain rebuilds 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("printSummary() = %q, want it to contain %q", out, want)
		}
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}
