// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "groundtruth")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/groundtruth.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "groundtruth.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "groundtruth")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "groundtruth")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("consolidation.grouping.iouthreshold", 0.3)
	viper.SetDefault("consolidation.grouping.centroidfactor", 0.5)

	viper.SetDefault("consolidation.trajectory.minpoints", 2)
	viper.SetDefault("consolidation.trajectory.baselinepoints", 8)
	viper.SetDefault("consolidation.trajectory.mergemaxgap", 3.0)
	viper.SetDefault("consolidation.trajectory.mergeoverlap", 0.5)
	viper.SetDefault("consolidation.trajectory.mergemaxdistance", 150.0)
	viper.SetDefault("consolidation.trajectory.trailinggap", 1.0)
	viper.SetDefault("consolidation.trajectory.internalgap", 0.5)
	viper.SetDefault("consolidation.trajectory.framebudget", 30)
	viper.SetDefault("consolidation.trajectory.samplestride", 0.2)
	viper.SetDefault("consolidation.trajectory.redetectminconf", 0.25)

	viper.SetDefault("consolidation.tracks.iouthreshold", 0.3)
	viper.SetDefault("consolidation.tracks.profiles", map[string]string{})
	viper.SetDefault("consolidation.tracks.windows", map[string]int{
		"roadway": 120,
		"parking": 7200,
	})
	viper.SetDefault("consolidation.tracks.defaultwindow", 300)
	viper.SetDefault("consolidation.tracks.cachettl", 600)
}
