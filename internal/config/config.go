// Package config holds process-wide configuration, loaded from a YAML
// file, environment variables, and flag defaults via viper — the same
// precedence stack as the teacher's config package.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var v *viper.Viper

const (
	// DefaultServerPort is the port the WebSocket gateway listens on.
	DefaultServerPort = 8910

	// demoBucketPrefix is the default for demo.bucket_prefix, the URI
	// prefix the supervisor reads through DemoBucketPrefix().
	demoBucketPrefix = "demo://"
)

func init() {
	v = viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("moments.root", filepath.Join(home, ".streamworker", "moments"))
	v.SetDefault("demo.bucket_prefix", demoBucketPrefix)
	v.SetDefault("log.format", "")

	v.AutomaticEnv()
	v.BindEnv("server.port", "STREAMWORKER_PORT")
	v.BindEnv("moments.root", "STREAMWORKER_MOMENTS_ROOT")
	v.BindEnv("log.format", "LOG_FORMAT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.streamworker", "/etc/streamworker"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("fatal error reading config file: %s", err))
		}
	}
}

// ServerPort returns the configured WebSocket gateway port.
func ServerPort() int {
	return v.GetInt("server.port")
}

// MomentsRoot returns the default save_root used when a start_stream
// command omits save_location.
func MomentsRoot() string {
	return v.GetString("moments.root")
}

// DemoBucketPrefix returns the URI prefix the supervisor treats as
// always-loop-on-graceful-end.
func DemoBucketPrefix() string {
	return v.GetString("demo.bucket_prefix")
}
