package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.SerialBaudRate != 9600 {
		t.Errorf("expected SerialBaudRate=9600, got=%d", cfg.SerialBaudRate)
	}
	if cfg.OpenTimeout() != 100*time.Millisecond {
		t.Errorf("expected 100ms open timeout, got=%s", cfg.OpenTimeout())
	}
	if cfg.CloseTimeout() != 5*time.Second {
		t.Errorf("expected 5s close timeout, got=%s", cfg.CloseTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMerge(t *testing.T) {
	// Create a workspace config
	tmp := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	dir := filepath.Join(tmp, ".cloudeditor")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{
		// the board on my desk
		"serial_port": "/dev/ttyACM0",
		"serial_baud_rate": 115200, /* fast */
		"child_origin": "http://localhost:3001",
	}`), 0o644)

	cfg := Load(tmp)

	if cfg.SerialPort != "/dev/ttyACM0" {
		t.Errorf("expected serial_port from workspace, got=%s", cfg.SerialPort)
	}
	if cfg.SerialBaudRate != 115200 {
		t.Errorf("expected baud rate 115200 from workspace, got=%d", cfg.SerialBaudRate)
	}
	if cfg.ChildOrigin != "http://localhost:3001" {
		t.Errorf("expected child origin from workspace, got=%s", cfg.ChildOrigin)
	}
	// Timeouts should still be default since not overridden
	if cfg.CloseTimeoutMS != DefaultCloseTimeoutMS {
		t.Errorf("expected default close timeout, got=%d", cfg.CloseTimeoutMS)
	}
}

func TestWorkspaceOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	global := Defaults()
	global.SerialPort = "/dev/ttyUSB0"
	global.UploadCommand = "avrdude -P {port}"
	if err := Save(global, "", true); err != nil {
		t.Fatalf("Save global failed: %v", err)
	}

	ws := t.TempDir()
	if err := Save(Config{SerialPort: "/dev/ttyACM1"}, ws, false); err != nil {
		t.Fatalf("Save workspace failed: %v", err)
	}

	cfg := Load(ws)
	if cfg.SerialPort != "/dev/ttyACM1" {
		t.Errorf("expected workspace port, got=%s", cfg.SerialPort)
	}
	if cfg.UploadCommand != "avrdude -P {port}" {
		t.Errorf("expected global upload command, got=%s", cfg.UploadCommand)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	cfg := Config{
		SerialPort:     "/dev/ttyACM0",
		SerialBaudRate: 57600,
		CloseTimeoutMS: 2000,
	}

	err := Save(cfg, tmp, false)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify file exists
	path := filepath.Join(tmp, ".cloudeditor", "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	// Load it back
	loaded := Load(tmp)
	if loaded.SerialPort != "/dev/ttyACM0" {
		t.Errorf("expected SerialPort=/dev/ttyACM0, got=%s", loaded.SerialPort)
	}
	if loaded.SerialBaudRate != 57600 {
		t.Errorf("expected SerialBaudRate=57600, got=%d", loaded.SerialBaudRate)
	}
	if loaded.CloseTimeout() != 2*time.Second {
		t.Errorf("expected 2s close timeout, got=%s", loaded.CloseTimeout())
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.SerialBaudRate = 12345
	if err := cfg.Validate(); err == nil {
		t.Error("expected unsupported baud rate to fail")
	}

	cfg = Defaults()
	cfg.OpenTimeoutMS = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected negative timeout to fail")
	}

	if !IsBaudRate(115200) || IsBaudRate(0) {
		t.Error("IsBaudRate mismatch")
	}
}
