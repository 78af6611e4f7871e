package lib

import (
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	LogTimeFormat = "2006-01-02T15:04:05.000"
)

func consoleWriter() zerolog.ConsoleWriter {
	if runtime.GOOS == "windows" {
		return zerolog.ConsoleWriter{Out: colorable.NewColorableStdout(), TimeFormat: LogTimeFormat}
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, NoColor: false, TimeFormat: LogTimeFormat}
}

func jsonLogger(out io.Writer) zerolog.Logger {
	return zerolog.New(out).With().Timestamp().Logger()
}

func openLogFile(filename string) (*os.File, error) {
	if !LocalFileExists(filename) {
		return os.Create(filename)
	}
	return os.OpenFile(filename, os.O_WRONLY|os.O_APPEND, 0666)
}

func ZeroConsoleLog() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(consoleWriter())
}

// ZeroJSONLog emits plain JSON lines, for log shippers.
func ZeroJSONLog() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = jsonLogger(os.Stdout)
}

// ZeroConsoleAndFileLog logs pretty to the console and JSON to a file.
// If the file cannot be opened, logging continues console-only.
func ZeroConsoleAndFileLog(filename string) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logFile, err := openLogFile(filename)
	if err != nil {
		ZeroConsoleLog()
		log.Error().Err(err).Str("file", filename).Msg("Could not open log file, logging to console only")
		return
	}

	mw := io.MultiWriter(logFile, consoleWriter())
	log.Logger = zerolog.New(mw).With().Timestamp().Logger()
}

// ZeroJSONAndFileLog logs JSON lines to both stdout and a file.
func ZeroJSONAndFileLog(filename string) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logFile, err := openLogFile(filename)
	if err != nil {
		ZeroJSONLog()
		log.Error().Err(err).Str("file", filename).Msg("Could not open log file, logging to stdout only")
		return
	}

	log.Logger = jsonLogger(io.MultiWriter(logFile, os.Stdout))
}
