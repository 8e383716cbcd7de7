// Package config loads syncprov's configuration via a layered viper merge:
// built-in defaults, then a system config file, then a user config file,
// then a project-local config file (walking up from the working
// directory), then environment variables — each layer overriding the
// last, matching the teacher project's configuration-loading idiom.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/dirsync/syncprov/errors"
)

// Config is the fully resolved, typed configuration for a syncprovd
// process.
type Config struct {
	Listen struct {
		Address string
	}
	Database struct {
		Path string
	}
	Log struct {
		JSON  bool
		Level string
	}
	IDSet struct {
		BatchSize int
	}

	// The four sync-provider overlay keys (§6).
	Checkpoint struct {
		Ops     int
		Seconds int
	}
	SessionLog struct {
		Capacity int
	}
	NoPresent  bool
	ReloadHint bool

	Suffix string
}

const envPrefix = "SYNCPROV"

// Load builds a viper instance with defaults, reads whichever config
// files exist, binds environment variables, and decodes into a Config.
// file, if non-empty, is an explicit config path that takes precedence
// over the discovered system/user/project files (the same override
// relationship the teacher's config loader uses).
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, p := range configSearchPath(file) {
		v.SetConfigFile(p)
		if err := v.MergeInConfig(); err != nil {
			if os.IsNotExist(err) && file == "" {
				continue
			}
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				continue
			}
			return nil, errors.Wrapf(err, "reading config file %s", p)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen.address", ":1389")
	v.SetDefault("database.path", "syncprov.db")
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("idset.batchsize", 128)
	v.SetDefault("checkpoint.ops", 100)
	v.SetDefault("checkpoint.seconds", 300)
	v.SetDefault("sessionlog.capacity", 1000)
	v.SetDefault("nopresent", false)
	v.SetDefault("reloadhint", false)
	v.SetDefault("suffix", "dc=example,dc=com")
}

// configSearchPath returns, in increasing-precedence order, the config
// files to merge: an explicit file (if given) short-circuits the rest;
// otherwise system, user, then project-local config files are tried.
func configSearchPath(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}

	var paths []string
	if p := "/etc/syncprov/config.toml"; fileExists(p) {
		paths = append(paths, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "syncprov", "config.toml")
		if fileExists(p) {
			paths = append(paths, p)
		}
	}
	if p, ok := findProjectConfig(); ok {
		paths = append(paths, p)
	}
	return paths
}

// findProjectConfig walks up from the working directory looking for a
// syncprov.toml, the same "search upward for a project file" pattern the
// teacher's loader uses.
func findProjectConfig() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		p := filepath.Join(dir, "syncprov.toml")
		if fileExists(p) {
			return p, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
