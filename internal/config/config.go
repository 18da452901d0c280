package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/tidwall/jsonc"
)

const (
	DefaultBaudRate           = 9600
	DefaultOpenTimeoutMS      = 100
	DefaultCloseTimeoutMS     = 5000
	DefaultBridgeAddr         = "127.0.0.1:8991"
	DefaultParentOrigin       = "http://127.0.0.1:8991"
	DefaultChildOrigin        = "http://localhost:8991"
	DefaultPortScanIntervalMS = 2000
	DefaultUploadCommand      = "arduino-cli upload -p {port}"
)

// BaudRates are the rates a monitor can be opened at.
var BaudRates = []int{
	300, 600, 750, 1200, 2400, 4800, 9600, 19200, 31250, 38400, 57600,
	74880, 115200, 230400, 250000, 460800, 500000, 921600, 1000000, 2000000,
}

// IsBaudRate reports whether rate is one of BaudRates.
func IsBaudRate(rate int) bool {
	return slices.Contains(BaudRates, rate)
}

// Config holds all cloudeditor configuration.
type Config struct {
	SerialPort         string `json:"serial_port,omitempty"`
	DeviceName         string `json:"device_name,omitempty"`
	SerialBaudRate     int    `json:"serial_baud_rate,omitempty"`
	OpenTimeoutMS      int    `json:"open_timeout_ms,omitempty"`
	CloseTimeoutMS     int    `json:"close_timeout_ms,omitempty"`
	ParentOrigin       string `json:"parent_origin,omitempty"`
	ChildOrigin        string `json:"child_origin,omitempty"`
	BridgeAddr         string `json:"bridge_addr,omitempty"`
	UploadCommand      string `json:"upload_command,omitempty"`
	PortScanIntervalMS int    `json:"port_scan_interval_ms,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		SerialBaudRate:     DefaultBaudRate,
		OpenTimeoutMS:      DefaultOpenTimeoutMS,
		CloseTimeoutMS:     DefaultCloseTimeoutMS,
		ParentOrigin:       DefaultParentOrigin,
		ChildOrigin:        DefaultChildOrigin,
		BridgeAddr:         DefaultBridgeAddr,
		UploadCommand:      DefaultUploadCommand,
		PortScanIntervalMS: DefaultPortScanIntervalMS,
	}
}

func (c Config) OpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutMS) * time.Millisecond
}

func (c Config) CloseTimeout() time.Duration {
	return time.Duration(c.CloseTimeoutMS) * time.Millisecond
}

func (c Config) PortScanInterval() time.Duration {
	return time.Duration(c.PortScanIntervalMS) * time.Millisecond
}

// Validate checks the values a merged config cannot repair by itself.
func (c Config) Validate() error {
	if !IsBaudRate(c.SerialBaudRate) {
		return fmt.Errorf("baud rate %d is not supported", c.SerialBaudRate)
	}
	if c.OpenTimeoutMS <= 0 || c.CloseTimeoutMS <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.PortScanIntervalMS <= 0 {
		return fmt.Errorf("port scan interval must be positive")
	}
	return nil
}

// GlobalPath returns the path of the user-wide config file.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cloudeditor", "config.json"), nil
}

// WorkspaceDir returns the per-workspace state directory.
func WorkspaceDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".cloudeditor")
}

// Load reads and merges global and workspace configs.
// Order: defaults → global (~/.config/cloudeditor/config.json) → workspace (.cloudeditor/config.json).
// Both files may contain comments and trailing commas.
func Load(workspaceRoot string) Config {
	cfg := Defaults()

	// Global config
	if globalPath, err := GlobalPath(); err == nil {
		mergeFromFile(&cfg, globalPath)
	}

	// Workspace config
	if workspaceRoot != "" {
		mergeFromFile(&cfg, filepath.Join(WorkspaceDir(workspaceRoot), "config.json"))
	}

	return cfg
}

// Save writes the config to the workspace .cloudeditor/config.json by
// default, or to the global config if global is true.
func Save(cfg Config, workspaceRoot string, global bool) error {
	var dir string
	if global {
		path, err := GlobalPath()
		if err != nil {
			return err
		}
		dir = filepath.Dir(path)
	} else {
		dir = WorkspaceDir(workspaceRoot)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

func mergeFromFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var fileCfg Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &fileCfg); err != nil {
		return
	}

	if fileCfg.SerialPort != "" {
		cfg.SerialPort = fileCfg.SerialPort
	}
	if fileCfg.DeviceName != "" {
		cfg.DeviceName = fileCfg.DeviceName
	}
	if fileCfg.SerialBaudRate != 0 {
		cfg.SerialBaudRate = fileCfg.SerialBaudRate
	}
	if fileCfg.OpenTimeoutMS != 0 {
		cfg.OpenTimeoutMS = fileCfg.OpenTimeoutMS
	}
	if fileCfg.CloseTimeoutMS != 0 {
		cfg.CloseTimeoutMS = fileCfg.CloseTimeoutMS
	}
	if fileCfg.ParentOrigin != "" {
		cfg.ParentOrigin = fileCfg.ParentOrigin
	}
	if fileCfg.ChildOrigin != "" {
		cfg.ChildOrigin = fileCfg.ChildOrigin
	}
	if fileCfg.BridgeAddr != "" {
		cfg.BridgeAddr = fileCfg.BridgeAddr
	}
	if fileCfg.UploadCommand != "" {
		cfg.UploadCommand = fileCfg.UploadCommand
	}
	if fileCfg.PortScanIntervalMS != 0 {
		cfg.PortScanIntervalMS = fileCfg.PortScanIntervalMS
	}
}
