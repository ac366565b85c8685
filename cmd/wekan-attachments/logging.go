package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"wekan-attachments/internal/config"
)

const logLevelEnvKey = "WEKAN_LOG_LEVEL"

type levelSource int

const (
	fromDefault levelSource = iota
	fromFlag
	fromEnv
	fromConfig
)

// levelChoice is the raw level that won the flag > env > config precedence.
type levelChoice struct {
	raw    string
	source levelSource
}

// setting names where an invalid level came from, for warnings.
func (c levelChoice) setting() string {
	switch c.source {
	case fromFlag:
		return "--log-level"
	case fromEnv:
		return logLevelEnvKey
	case fromConfig:
		return "log_level"
	default:
		return ""
	}
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func chooseLogLevel(flagLevel, envLevel, configLevel string) levelChoice {
	for _, c := range []levelChoice{
		{raw: flagLevel, source: fromFlag},
		{raw: envLevel, source: fromEnv},
		{raw: configLevel, source: fromConfig},
	} {
		if strings.TrimSpace(c.raw) != "" {
			return c
		}
	}
	return levelChoice{source: fromDefault}
}

// configureLoggerForCLI installs the default logger. A bad --log-level is an
// error; a bad env or config level falls back to the default with a warning.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	choice := chooseLogLevel(flagLevel, os.Getenv(logLevelEnvKey), configLevel)
	level, err := parseLogLevel(choice.raw)
	if err == nil {
		slog.SetDefault(newLogger(level))
		return "", nil
	}
	if choice.source == fromFlag {
		return "", fmt.Errorf("invalid --log-level %q", choice.raw)
	}

	fallback, _ := parseLogLevel("")
	slog.SetDefault(newLogger(fallback))
	return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", choice.setting(), choice.raw, config.DefaultLogLevel), nil
}

// parseLogLevel accepts level names and numeric slog levels. An empty value
// selects config.DefaultLogLevel.
func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		value = config.DefaultLogLevel
	}
	if level, ok := levelNames[value]; ok {
		return level, nil
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
