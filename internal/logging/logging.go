// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 10
	maxBackups = 10
	maxAgeDays = 30
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup applies the level, formatter and output of cfg. The returned closer
// flushes the log file, if any.
func Setup(cfg config.ServerConfig) (io.Closer, error) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		log.SetLevel(log.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}

	if !cfg.LoggingToFile {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}
	path := strings.TrimSpace(cfg.LogFile)
	if path == "" {
		return nil, fmt.Errorf("logging: log file path is empty")
	}
	if errMkdir := os.MkdirAll(filepath.Dir(path), 0o755); errMkdir != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", errMkdir)
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	out := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(out)
	gin.DefaultWriter = out
	gin.DefaultErrorWriter = out
	return rotator, nil
}
