package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config carries the deployment-specific settings of the driver: the
// paired pump's serial number, the regional band and an optional fixed
// frequency, and the daemon listen address.
type Config struct {
	Serial    string  // six hex digits, e.g. 799163
	Region    string  // NA or WW
	Frequency float64 // MHz; 0 means the band default
	Addr      string  // pumpd listen address
}

var loaded *Config

// Load reads .env from the project root, then lets environment
// variables override it.
func Load() (*Config, error) {
	if loaded != nil {
		return loaded, nil
	}

	cfg := &Config{
		Region: "NA",
		Addr:   ":7481",
	}

	envPath := filepath.Join(findProjectRoot(), ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		if err := parseEnvFile(string(data), cfg); err != nil {
			return nil, err
		}
	}

	if serial := os.Getenv("PUMP_SERIAL"); serial != "" {
		cfg.Serial = serial
	}
	if region := os.Getenv("PUMP_REGION"); region != "" {
		cfg.Region = region
	}
	if freq := os.Getenv("PUMP_FREQUENCY"); freq != "" {
		f, err := strconv.ParseFloat(freq, 64)
		if err != nil {
			return nil, fmt.Errorf("PUMP_FREQUENCY: %w", err)
		}
		cfg.Frequency = f
	}
	if addr := os.Getenv("PUMPD_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	loaded = cfg
	return cfg, nil
}

// SerialBytes decodes the configured serial into the three bytes every
// pump packet carries.
func (c *Config) SerialBytes() ([3]byte, error) {
	var out [3]byte
	b, err := hex.DecodeString(c.Serial)
	if err != nil || len(b) != 3 {
		return out, fmt.Errorf("PUMP_SERIAL must be six hex digits, got %q", c.Serial)
	}
	copy(out[:], b)
	return out, nil
}

func parseEnvFile(content string, cfg *Config) error {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "PUMP_SERIAL":
			cfg.Serial = value
		case "PUMP_REGION":
			cfg.Region = value
		case "PUMP_FREQUENCY":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("PUMP_FREQUENCY: %w", err)
			}
			cfg.Frequency = f
		case "PUMPD_ADDR":
			cfg.Addr = value
		}
	}
	return nil
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

// MustLoad loads the configuration or panics; the daemon refuses to
// start without a pump serial.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	if cfg.Serial == "" {
		panic("PUMP_SERIAL must be set in .env or the environment")
	}
	return cfg
}
