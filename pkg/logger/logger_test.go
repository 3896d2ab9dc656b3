package logger_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/grokking-vietnam/querybench/pkg/logger"
)

func TestNewLoggerLevels(t *testing.T) {
	require.Equal(t, logrus.InfoLevel, logger.NewLogger(false).GetLevel())
	require.Equal(t, logrus.DebugLevel, logger.NewLogger(true).GetLevel())
}

func TestComponentTagsEntries(t *testing.T) {
	log := logger.NewLogger(false)
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})

	entry := log.Component("registry")
	require.Equal(t, "registry", entry.Data["component"])

	entry.Info("engine registered")
	require.Contains(t, buf.String(), "component=registry")
	require.Contains(t, buf.String(), "engine registered")
}

func TestNopDiscards(t *testing.T) {
	log := logger.NewNop()
	require.NotPanics(t, func() {
		log.Component("schema").Warnf("nothing to see: %d", 42)
	})
}
