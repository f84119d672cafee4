package config

import (
	"time"

	"github.com/spf13/viper"
)

// Archive report archive config struct
type Archive struct {
	Namespace     string
	Retention     time.Duration
	CleanInterval time.Duration
	// Publish enables the pub/sub event publisher.
	Publish bool
}

func setArchiveDefaults(v *viper.Viper) {
	v.SetDefault("archive.namespace", "reports")
	v.SetDefault("archive.retention", 7*24*time.Hour)
	v.SetDefault("archive.clean_interval", time.Minute)
	v.SetDefault("archive.publish", true)
}

func getArchiveConfig(v *viper.Viper) *Archive {
	return &Archive{
		Namespace:     v.GetString("archive.namespace"),
		Retention:     v.GetDuration("archive.retention"),
		CleanInterval: v.GetDuration("archive.clean_interval"),
		Publish:       v.GetBool("archive.publish"),
	}
}
