// Package conftools loads daemon configuration from a config file, environment variables and flags.
package conftools

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const redacted = "***REDACTED***"

func decoderHook(dc *mapstructure.DecoderConfig) {
	dc.TagName = "json"
	dc.ErrorUnused = true
}

// Initialize looks for <name>.yaml in the working directory and /etc/<name>, and reads
// environment variables with the upper case name as prefix, e.g. FAKEDEPLOYD_LISTEN_ADDRESS
// for the key listen-address.
func Initialize(v *viper.Viper, name string) {
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/" + name)
	v.SetEnvPrefix(strings.ToUpper(name))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load parses args into flags and decodes flags, environment and config file, in that order of
// precedence, into cfg using its json struct tags. A missing config file is not an error.
func Load(v *viper.Viper, flags *flag.FlagSet, args []string, cfg interface{}) error {
	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	err = flags.Parse(args)
	if err != nil {
		return err
	}

	err = v.BindPFlags(flags)
	if err != nil {
		return err
	}

	return v.Unmarshal(cfg, decoderHook)
}

// Format returns a human-readable printout of all configuration options, except secret stuff.
func Format(v *viper.Viper, disallowedKeys []string) []string {
	masked := make(map[string]bool, len(disallowedKeys))
	for _, key := range disallowedKeys {
		masked[key] = true
	}

	keys := v.AllKeys()
	sort.Strings(keys)

	printed := make([]string, 0, len(keys))
	for _, key := range keys {
		value := v.Get(key)
		if masked[key] && fmt.Sprint(value) != "" {
			value = redacted
		}
		printed = append(printed, fmt.Sprintf("%s: %v", key, value))
	}

	return printed
}
