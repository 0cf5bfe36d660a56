// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "wildset")
	viper.SetDefault("main.loglevel", "info")
	viper.SetDefault("main.datadir", "data")

	viper.SetDefault("source.baseurl", "https://api.inaturalist.org/v1")
	viper.SetDefault("source.timeout", 30*time.Second)
	viper.SetDefault("source.ratelimitperminute", 60)
	viper.SetDefault("source.cachettl", 10*time.Minute)
	viper.SetDefault("source.perpage", 200)
	viper.SetDefault("source.maxresults", 2000)

	viper.SetDefault("fetch.taxonids", []int64{})
	viper.SetDefault("fetch.placeid", 0)
	viper.SetDefault("fetch.centerlat", 0.0)
	viper.SetDefault("fetch.centerlon", 0.0)
	viper.SetDefault("fetch.radiuskm", 0.0)
	viper.SetDefault("fetch.qualitygrade", "research")
	viper.SetDefault("fetch.observedafter", "")
	viper.SetDefault("fetch.observedbefore", "")

	viper.SetDefault("dedup.spatialthresholdm", 100.0)
	viper.SetDefault("dedup.temporalthresholddays", 1.0)
	viper.SetDefault("dedup.minclustersize", 1)

	viper.SetDefault("selection.method", "quality")
	viper.SetDefault("selection.targetperspecies", 20)
	viper.SetDefault("selection.minperspecies", 5)
	viper.SetDefault("selection.balance", false)
	viper.SetDefault("selection.seed", 0)

	viper.SetDefault("quality.sidecarsuffix", ".quality.json")
	viper.SetDefault("quality.workers", 4)

	viper.SetDefault("download.dir", "")
	viper.SetDefault("download.workers", 4)
	viper.SetDefault("download.size", "medium")
	viper.SetDefault("download.timeout", 60*time.Second)

	viper.SetDefault("store.enabled", true)
	viper.SetDefault("store.path", "")
	viper.SetDefault("store.maxage", 24*time.Hour)

	viper.SetDefault("output.dir", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
}
