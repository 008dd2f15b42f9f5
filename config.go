package main

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the hub's endpoint layout. Defaults produce the standard
// port family; a YAML file and flags may override any of it.
type Config struct {
	Host              string `yaml:"host"`
	ControlPort       int    `yaml:"control_port"`
	VideoPort         int    `yaml:"video_port"`
	AudioPort         int    `yaml:"audio_port"`
	ScreenControlPort int    `yaml:"screen_control_port"`
	ScreenDataPort    int    `yaml:"screen_data_port"`
	FilePort          int    `yaml:"file_port"`

	// APIAddr is the diagnostics HTTP listen address; empty disables it.
	APIAddr string `yaml:"api_addr"`

	// DBPath is the store location. ":memory:" (the default) keeps files
	// and chat history for the process lifetime only.
	DBPath string `yaml:"db"`
}

// DefaultConfig returns the standard endpoint layout.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		ControlPort:       5000,
		VideoPort:         5001,
		AudioPort:         5002,
		ScreenControlPort: 5003,
		ScreenDataPort:    5004,
		FilePort:          5005,
		APIAddr:           "127.0.0.1:5006",
		DBPath:            ":memory:",
	}
}

// LoadConfig reads a YAML config file over the defaults. Unknown keys are
// rejected so typos fail loudly.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the port layout.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	ports := map[string]int{
		"control_port":        c.ControlPort,
		"video_port":          c.VideoPort,
		"audio_port":          c.AudioPort,
		"screen_control_port": c.ScreenControlPort,
		"screen_data_port":    c.ScreenDataPort,
		"file_port":           c.FilePort,
	}
	seen := make(map[int]string, len(ports))
	for name, p := range ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%s: port %d out of range", name, p)
		}
		if other, dup := seen[p]; dup {
			return fmt.Errorf("%s and %s share port %d", name, other, p)
		}
		seen[p] = name
	}
	return nil
}

func (c Config) addr(port int) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}
