package store

import "time"

// UploadRecord captures the result of an upload.
type UploadRecord struct {
	ID        string    `json:"id"`
	Port      string    `json:"port"`
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	ExitCode  int       `json:"exit_code"`
	Duration  string    `json:"duration"`
}

// SessionRecord captures one serial monitor session.
type SessionRecord struct {
	ID       string    `json:"id"`
	Port     string    `json:"port"`
	BaudRate int       `json:"baud_rate"`
	Opened   time.Time `json:"opened"`
	Closed   time.Time `json:"closed"`
	Bytes    int       `json:"bytes"`
	// LogFile holds the raw bytes received, when capture was possible.
	LogFile string `json:"log_file,omitempty"`
	// Reason is empty for a session closed on request.
	Reason string `json:"reason,omitempty"`
}
