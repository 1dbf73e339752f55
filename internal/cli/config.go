package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Config holds CLI configuration
type Config struct {
	// ConfigFile is the userdata.yaml to load (optional)
	ConfigFile string
	// Database overrides; only applied when the flag is given
	Driver string
	DSN    string
	Prefix string

	ServerURL string
	Output    string
	Verbose   bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ConfigFile: os.Getenv("USERDATA_CONFIG"),
		ServerURL:  getEnvOrDefault("USERDATA_SERVER", "http://localhost:8080"),
		Output:     "text",
		Verbose:    false,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// flagChanged reports whether the named flag, possibly inherited, was set
func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}
