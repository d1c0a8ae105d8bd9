// Package nodelog wires up the node's structured logging: the same
// github.com/ethereum/go-ethereum/log handler and verbosity-controlled
// glog wrapper cmd/equa-beacon-engine/main.go installs at startup,
// pointed additionally at a rotating file sink via
// gopkg.in/natefinch/lumberjack.v2 so a long-running validator does not
// fill its disk with an unbounded log file.
package nodelog

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the rotating file sink. A zero File disables file
// logging entirely and logs to the terminal only.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      log.Lvl
}

// Setup installs the process-wide default logger per opts, mirroring
// main.go's glogger/Verbosity/SetDefault sequence, and returns a closer
// the caller should defer.
func Setup(opts Options) func() {
	var out io.Writer = os.Stderr
	closer := func() {}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closer = func() { _ = rotator.Close() }
	}

	glogger := log.NewGlogHandler(log.NewTerminalHandler(out, false))
	glogger.Verbosity(opts.levelOrDefault())
	log.SetDefault(log.NewLogger(glogger))

	return closer
}

func (o Options) levelOrDefault() log.Lvl {
	if o.Level == 0 {
		return log.LvlInfo
	}
	return o.Level
}
