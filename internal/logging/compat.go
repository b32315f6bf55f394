package logging

import (
	"fmt"
	"os"
)

// Helpers matching the standard 'log' package, for command-line entry points.
// Prefer the explicitly leveled API, e.g. log.Error().

func (log *Logger) Fatalf(format string, v ...interface{}) {
	log.Log(Error, 1, format, v...)
	os.Exit(1)
}

func (log *Logger) Printf(format string, v ...interface{}) {
	log.Log(Info, 1, format, v...)
}

func (log *Logger) Println(v ...interface{}) {
	log.Log(Info, 1, "%s", fmt.Sprint(v...))
}
