package nodelog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestLevelOrDefaultFallsBackToInfo(t *testing.T) {
	require.Equal(t, log.LvlInfo, Options{}.levelOrDefault())
	require.Equal(t, log.LvlDebug, Options{Level: log.LvlDebug}.levelOrDefault())
}

func TestSetupWithoutFileLogsToStderrOnly(t *testing.T) {
	closer := Setup(Options{})
	defer closer()
	log.Info("test message without a file sink")
}

func TestSetupWithFileCreatesRotatingSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axond.log")
	closer := Setup(Options{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1, Level: log.LvlDebug})
	log.Info("hello from the rotating sink")
	closer()

	_, err := os.Stat(path)
	require.NoError(t, err, "Setup with a File option must create the log file")
}
