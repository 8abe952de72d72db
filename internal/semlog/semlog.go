// Package semlog provides the leveled logging helpers used across the
// simulator: thin wrappers over the stdlib log package, gated by a level
// read once from the SEM_LOG_LEVEL environment variable.
package semlog

import (
	"log"
	"os"
)

// Level orders log verbosity from silent up to debug.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
)

var current = parseLevel(os.Getenv("SEM_LOG_LEVEL"))

func parseLevel(s string) Level {
	switch s {
	case "silent":
		return LevelSilent
	case "warning":
		return LevelWarning
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelError
	}
}

func Debugf(format string, args ...any) {
	if current >= LevelDebug {
		log.Printf("debug: "+format, args...)
	}
}

func Infof(format string, args ...any) {
	if current >= LevelInfo {
		log.Printf("info: "+format, args...)
	}
}

func Warningf(format string, args ...any) {
	if current >= LevelWarning {
		log.Printf("warning: "+format, args...)
	}
}

func Errorf(format string, args ...any) {
	if current >= LevelError {
		log.Printf("error: "+format, args...)
	}
}
