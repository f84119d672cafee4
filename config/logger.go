package config

import "github.com/spf13/viper"

// Logger logger config struct
type Logger struct {
	// Level is a logrus level name: trace, debug, info, warn, error.
	Level string
	// Format is "text" or "json".
	Format string
	// Output is "stdout", "stderr" or "file".
	Output     string
	OutputFile string
}

func setLoggerDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.output_file", "")
}

func getLoggerConfig(v *viper.Viper) *Logger {
	return &Logger{
		Level:      v.GetString("logger.level"),
		Format:     v.GetString("logger.format"),
		Output:     v.GetString("logger.output"),
		OutputFile: v.GetString("logger.output_file"),
	}
}
