// conf/env.go environment variable overrides for configuration keys
package conf

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envBinding ties a viper config key to the environment variable that
// overrides it.
type envBinding struct {
	ConfigKey string
	EnvVar    string
}

// getEnvBindings returns the configuration keys that may be overridden from
// the environment, for deployments that cannot ship a config file.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.datadir", "WILDSET_DATADIR"},
		{"main.loglevel", "WILDSET_LOGLEVEL"},
		{"source.baseurl", "WILDSET_SOURCE_BASEURL"},
		{"source.ratelimitperminute", "WILDSET_SOURCE_RATELIMIT"},
		{"source.maxresults", "WILDSET_SOURCE_MAXRESULTS"},
		{"store.enabled", "WILDSET_STORE_ENABLED"},
		{"store.path", "WILDSET_STORE_PATH"},
		{"download.dir", "WILDSET_DOWNLOAD_DIR"},
		{"output.dir", "WILDSET_OUTPUT_DIR"},
		{"telemetry.enabled", "WILDSET_TELEMETRY_ENABLED"},
		{"telemetry.dsn", "WILDSET_TELEMETRY_DSN"},
	}
}

// configureEnvironmentVariables sets up environment variable support for viper.
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			return fmt.Errorf("error binding %s: %w", binding.EnvVar, err)
		}
	}
	return nil
}
