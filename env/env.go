// Package env holds command line helpers shared by the tiercache binaries:
// flag or environment lookups, logger setup and dotenv style files that
// feed the ${VAR} expansion of cache configuration.
package env

import (
	"log"
	"os"
	"sort"
	"unicode"

	"github.com/agentuity/go-tiercache/logger"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Line is a single KEY=VALUE pair of an env file.
type Line struct {
	Key string
	Val string
}

// Parse reads dotenv formatted buf. Comments, an "export " prefix and quoted
// values are accepted. ${NAME} refers to an earlier key of the file or, when
// the file does not define NAME, to the process environment. Lines are
// returned sorted by key.
func Parse(buf []byte) ([]Line, error) {
	local, err := godotenv.UnmarshalBytes(buf)
	if err != nil {
		return nil, errors.Wrap(err, "invalid env file")
	}
	expanded := os.Expand(string(buf), func(name string) string {
		if !isName(name) {
			return "$" + name
		}
		if _, ok := local[name]; !ok {
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
		}
		return "${" + name + "}"
	})
	vars, err := godotenv.UnmarshalBytes([]byte(expanded))
	if err != nil {
		return nil, errors.Wrap(err, "invalid env file")
	}
	lines := make([]Line, 0, len(vars))
	for k, v := range vars {
		lines = append(lines, Line{Key: k, Val: v})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Key < lines[j].Key })
	return lines, nil
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r != '_' && !unicode.IsLetter(r) && (i == 0 || !unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// ParseFile parses filename. A missing file yields no lines.
func ParseFile(filename string) ([]Line, error) {
	buf, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lines, err := Parse(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", filename)
	}
	return lines, nil
}

// Apply loads filename into the process environment. Variables that are
// already set win over the file.
func Apply(filename string) error {
	lines, err := ParseFile(filename)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if _, ok := os.LookupEnv(l.Key); ok {
			continue
		}
		if err := os.Setenv(l.Key, l.Val); err != nil {
			return err
		}
	}
	return nil
}

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// LogLevel reads the log-level flag, then TIERCACHE_LOG_LEVEL, defaulting to warn.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	return logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "warn"))
}

// NewLogger returns a console logger at the level chosen by LogLevel.
func NewLogger(cmd *cobra.Command) logger.Logger {
	log.SetFlags(0)
	return logger.NewConsoleLogger(LogLevel(cmd))
}
