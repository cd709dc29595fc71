// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup applies format and level to the standard logger and, when logfile is
// set, sends output to a rotated file. An unknown level falls back to info.
// The returned closer releases the log file.
func Setup(logfile, level, format string) io.Closer {
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05.999"})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05.999"})
	}

	logLevel, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		logLevel = log.InfoLevel
	}
	log.SetLevel(logLevel)

	if logfile == "" {
		return nopCloser{}
	}
	l := &lumberjack.Logger{
		Filename:   logfile,
		MaxSize:    5, // megabytes
		MaxBackups: 2,
	}
	log.SetOutput(l)
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
