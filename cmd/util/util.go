package util

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/hmaster20/winsync/pkg/errors"
)

// HandleFatalError prints a friendly representation of the error to stderr
// and exits with a non-zero status.
func HandleFatalError(err error) {
	fmt.Fprintln(os.Stderr, errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic recovers from panics in the calling goroutine and prints the
// stack trace before exiting. It should be installed with `defer` at the top
// of every goroutine that doesn't otherwise handle its own panics.
func HandlePanic() {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "winsync crashed: %v\n\n%s\n", r, debug.Stack())
		os.Exit(1)
	}
}

// SetupFileLogging redirects log output into a rotating file at `path`.
// Colors are disabled and full timestamps enabled since the output is meant
// to be read after the fact.
func SetupFileLogging(path string) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		DisableColors: true,
	})
	log.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	})
}
