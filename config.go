package main

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phobologic/yuimeta/internal/batch"
)

const envPrefix = "YUIMETA"

// settings holds the options of a run, resolved from flags, YUIMETA_*
// environment variables, .env files and an optional .yuimeta.yaml.
type settings struct {
	Configs     []string
	Ignores     []string
	DryRun      bool
	Jobs        int
	MaxFileSize int64
	LogLevel    string
	LogFormat   string
	NoColor     bool
	File        string
}

// addFlags registers the flags shared by every command.
func addFlags(fs *pflag.FlagSet) {
	fs.StringArray("config", nil, "glob selecting loader config files (repeatable)")
	fs.StringArray("ignore", nil, "glob selecting files to leave alone (repeatable)")
	fs.Bool("dry-run", false, "compute changes without writing files")
	fs.IntP("jobs", "j", runtime.GOMAXPROCS(0), "number of files processed at once")
	fs.Int64("max-file-size", batch.DefaultMaxFileSize, "skip module files larger than this many bytes")
	fs.String("log-level", "warn", "log level (debug, info, warn, error)")
	fs.String("log-format", "auto", "log format (auto, console, json)")
	fs.Bool("no-color", false, "disable colored output")
	fs.String("settings", "", "settings file (default ./.yuimeta.yaml)")
}

// loadSettings resolves settings for cmd. Flags set on the command line
// win over the environment, which wins over the settings file.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	for _, name := range []string{"dry-run", "jobs", "max-file-size", "log-level", "log-format", "no-color", "settings"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	file := v.GetString("settings")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(".yuimeta")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
	}

	s := &settings{
		DryRun:      v.GetBool("dry-run"),
		Jobs:        v.GetInt("jobs"),
		MaxFileSize: v.GetInt64("max-file-size"),
		LogLevel:    v.GetString("log-level"),
		LogFormat:   v.GetString("log-format"),
		NoColor:     v.GetBool("no-color"),
		File:        v.ConfigFileUsed(),
	}

	// Glob lists are read from the flags directly: viper splits flag
	// values on commas, which would break brace patterns.
	var err error
	if s.Configs, err = globList(v, flags, "config"); err != nil {
		return nil, err
	}
	if s.Ignores, err = globList(v, flags, "ignore"); err != nil {
		return nil, err
	}
	return s, nil
}

func globList(v *viper.Viper, flags *pflag.FlagSet, name string) ([]string, error) {
	if flags.Changed(name) {
		return flags.GetStringArray(name)
	}
	return v.GetStringSlice(name), nil
}

// loadEnvFiles loads .env and .env.local from the working directory when
// present. Variables already set in the environment are kept.
func loadEnvFiles() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}
