// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_WithService(t *testing.T) {
	logger := New(Config{
		Service: "spatial-test",
		Quiet:   true,
	})
	defer logger.Close()
	if logger.config.Service != "spatial-test" {
		t.Errorf("Service = %v, want spatial-test", logger.config.Service)
	}
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Error("logger.file is nil when LogDir specified")
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) == 0 {
		t.Error("No log file created in LogDir")
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir: tmpDir,
		Quiet:  true,
	})
	defer logger.Close()

	// Should use "spatial" as default service name
	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "spatial_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("Expected log file with 'spatial_' prefix")
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	logger := New(Config{
		LogDir: string([]byte{0}) + "/cannot/create",
		Quiet:  true,
	})
	defer logger.Close()
	// Should still work, just without file logging
	if logger.file != nil {
		t.Error("logger.file should be nil for invalid path")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()
	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "spatial" {
		t.Errorf("Default service = %v, want spatial", logger.config.Service)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	// Must not panic and must accept writes
	logger.Info("dropped", "walker_id", "w1")
	logger.Error("also dropped")
	if logger.Slog() == nil {
		t.Error("Discard().Slog() returned nil")
	}
}

// =============================================================================
// Logger Method Tests
// =============================================================================

func TestLogger_ExportAllLevels(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelDebug,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("dequeued element", "elem_id", "n1")
	logger.Info("walker spawned", "walker_id", "w1")
	logger.Warn("filter cache full", "capacity", 128)
	logger.Error("ability failed", "error", "boom")

	time.Sleep(100 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(entries))
	}

	// Export is async per entry, so check levels as a set.
	byLevel := make(map[Level]LogEntry, len(entries))
	for _, e := range entries {
		byLevel[e.Level] = e
	}
	for _, lvl := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if _, ok := byLevel[lvl]; !ok {
			t.Errorf("No entry exported at level %v", lvl)
		}
	}
	if got := byLevel[LevelInfo].Attrs["walker_id"]; got != "w1" {
		t.Errorf("Attrs[walker_id] = %v, want w1", got)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn, // Only Warn and Error
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
	time.Sleep(50 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries (Warn+Error), got %d", len(entries))
	}
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	child := logger.With("walker_id", "w42")
	child.Info("traversal started")
	time.Sleep(50 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})
	defer logger.Close()

	child := logger.With("child", true)
	if child.file != logger.file {
		t.Error("Child logger should share file handle")
	}
}

func TestLogger_Close_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})

	logger.Info("persisted line")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestLogger_Close_ExporterError(t *testing.T) {
	exporter := &errorExporter{flushErr: errors.New("flush failed")}
	logger := New(Config{
		Exporter: exporter,
		Quiet:    true,
	})

	err := logger.Close()
	if err == nil {
		t.Fatal("Expected error from Close()")
	}
	if !strings.Contains(err.Error(), "flush exporter") {
		t.Errorf("Error should mention 'flush exporter': %v", err)
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent log", "n", n)
		}(i)
	}
	wg.Wait()
	time.Sleep(100 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 100 {
		t.Errorf("Expected 100 entries, got %d", len(entries))
	}
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h1 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	if !mh.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Debug should be enabled (h1 accepts it)")
	}
	if !mh.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("Warn should be enabled")
	}
}

func TestMultiHandler_Handle_LevelFiltering(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelError})
	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	record := slog.Record{}
	record.Level = slog.LevelInfo

	_ = mh.Handle(context.Background(), record)

	if buf1.Len() == 0 {
		t.Error("buf1 should have content")
	}
	if buf2.Len() != 0 {
		t.Error("buf2 should be empty")
	}
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, nil)
	mh := &multiHandler{handlers: []slog.Handler{h}}

	newHandler := mh.WithAttrs([]slog.Attr{slog.String("key", "value")})
	if _, ok := newHandler.(*multiHandler); !ok {
		t.Error("WithAttrs() should return *multiHandler")
	}
}

func TestMultiHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, nil)
	mh := &multiHandler{handlers: []slog.Handler{h}}

	newHandler := mh.WithGroup("group")
	if _, ok := newHandler.(*multiHandler); !ok {
		t.Error("WithGroup() should return *multiHandler")
	}
}

func TestMultiHandler_Empty(t *testing.T) {
	mh := &multiHandler{handlers: []slog.Handler{}}

	if mh.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Empty multiHandler should not be enabled")
	}
	if err := mh.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("Handle() returned error: %v", err)
	}
}

// =============================================================================
// Helper Function Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~/.aleutian/logs", filepath.Join(home, ".aleutian/logs")},
		{"~", home},
		{"/var/log", "/var/log"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want map[string]any
	}{
		{"empty", []any{}, map[string]any{}},
		{"single pair", []any{"key", "value"}, map[string]any{"key": "value"}},
		{"multiple pairs", []any{"k1", "v1", "k2", 42}, map[string]any{"k1": "v1", "k2": 42}},
		{"odd count (ignores last)", []any{"k1", "v1", "orphan"}, map[string]any{"k1": "v1"}},
		{"non-string key (skipped)", []any{123, "value", "ok", "yes"}, map[string]any{"ok": "yes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsToMap(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("argsToMap() len = %d, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("argsToMap()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	if err := e.Export(context.Background(), LogEntry{Message: "test"}); err != nil {
		t.Errorf("Export() returned error: %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() returned error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestBufferedExporter_Export(t *testing.T) {
	e := NewBufferedExporter()
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "spawn completed",
		Service:   "spatial",
		Attrs:     map[string]any{"reports": 3},
	}

	if err := e.Export(context.Background(), entry); err != nil {
		t.Errorf("Export() returned error: %v", err)
	}

	entries := e.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "spawn completed" {
		t.Errorf("Message = %v, want 'spawn completed'", entries[0].Message)
	}
}

func TestBufferedExporter_Entries_ReturnsCopy(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "original"})

	entries1 := e.Entries()
	entries2 := e.Entries()
	entries1[0].Message = "modified"

	if entries2[0].Message != "original" {
		t.Error("Entries() should return a copy, not a reference")
	}
}

func TestBufferedExporter_ConcurrentAccess(t *testing.T) {
	e := NewBufferedExporter()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{Message: "msg"})
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Entries()
		}()
	}
	wg.Wait()

	if got := len(e.Entries()); got != 100 {
		t.Errorf("Expected 100 entries, got %d", got)
	}
}

func TestWriterExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "root loaded",
		Attrs:     map[string]any{"root_id": "r1"},
	}

	if err := e.Export(context.Background(), entry); err != nil {
		t.Errorf("Export() returned error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "root loaded") {
		t.Errorf("Output should contain 'root loaded': %v", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Output should contain 'INFO': %v", output)
	}
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestLogger_FullIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	exporter := NewBufferedExporter()

	logger := New(Config{
		Level:    LevelDebug,
		LogDir:   tmpDir,
		Service:  "integration-test",
		Exporter: exporter,
		Quiet:    true,
	})

	logger.Debug("dequeued", "elem_id", "n1")
	logger.Info("visit resolved", "matches", 3)
	logger.Warn("sweep demoted elements", "count", 2)
	logger.Error("ability failed", "error", "boom")

	child := logger.With("walker_id", "w1")
	child.Info("walk finished")

	time.Sleep(100 * time.Millisecond)

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}

	entries := exporter.Entries()
	if len(entries) != 5 {
		t.Errorf("Expected 5 entries, got %d", len(entries))
	}

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Error("No log file created")
	}
}

func TestLogger_FileContent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "file-test",
		Quiet:   true,
	})

	logger.Info("walker spawned", "walker_type", "visitor")
	logger.Close()

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("No log file created")
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	// File logs are JSON
	if !strings.Contains(string(content), "walker spawned") {
		t.Error("Log file should contain the message")
	}
	if !strings.Contains(string(content), "\"walker_type\":\"visitor\"") {
		t.Error("Log file should contain key-value pair in JSON format")
	}
}

// =============================================================================
// Error Handling Tests
// =============================================================================

// errorExporter is a test exporter that returns errors
type errorExporter struct {
	exportErr error
	flushErr  error
	closeErr  error
}

func (e *errorExporter) Export(ctx context.Context, entry LogEntry) error { return e.exportErr }
func (e *errorExporter) Flush(ctx context.Context) error                  { return e.flushErr }
func (e *errorExporter) Close() error                                     { return e.closeErr }

func TestLogger_ExportErrorSilentlyDropped(t *testing.T) {
	exporter := &errorExporter{exportErr: errors.New("export failed")}
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	// Must not panic or surface the export error
	logger.Info("test")
	time.Sleep(50 * time.Millisecond)
}

func TestLogger_Close_MultipleErrors(t *testing.T) {
	exporter := &errorExporter{
		flushErr: errors.New("flush failed"),
		closeErr: errors.New("close failed"),
	}
	logger := New(Config{
		Exporter: exporter,
		Quiet:    true,
	})

	err := logger.Close()
	if err == nil {
		t.Fatal("Expected error from Close()")
	}
	if !strings.Contains(err.Error(), "flush") {
		t.Errorf("Expected flush error first: %v", err)
	}
}
