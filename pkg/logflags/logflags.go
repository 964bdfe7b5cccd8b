// Package logflags toggles and builds the loggers used by the rest of
// the codebase. Logging is off by default; Setup enables it per layer.
package logflags

import (
	"errors"
	"io"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var proc = false
var symbol = false
var unwind = false

// Logger is the logging interface handed out to the other packages.
type Logger = *logrus.Entry

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Proc returns true if the process/thread layer should log.
func Proc() bool {
	return proc
}

// ProcLogger returns a logger for the process/thread layer.
func ProcLogger() *logrus.Entry {
	return makeLogger(proc, logrus.Fields{"layer": "proc"})
}

// Symbol returns true if the symbolication layer should log.
func Symbol() bool {
	return symbol
}

// SymbolLogger returns a logger for the symbolication layer.
func SymbolLogger() *logrus.Entry {
	return makeLogger(symbol, logrus.Fields{"layer": "symbol"})
}

// Unwind returns true if the unwinder should log.
func Unwind() bool {
	return unwind
}

// UnwindLogger returns a logger for the unwinder.
func UnwindLogger() *logrus.Entry {
	return makeLogger(unwind, logrus.Fields{"layer": "unwind"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the logging flags based on the contents of logstr, a comma
// separated list of layer names.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "proc"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "proc":
			proc = true
		case "symbol":
			symbol = true
		case "unwind":
			unwind = true
		}
	}
	return nil
}
