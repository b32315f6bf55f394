package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const envVar = "LOGLEVEL"

type tagLevel struct {
	tag   string
	level Level
}

var (
	levelsMu  sync.RWMutex
	tagLevels []tagLevel
)

func init() {
	if err := parseDirectives(os.Getenv(envVar)); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", envVar, err)
	}
}

// Parse comma-separated "tag=level" directives. A directive without "tag=" sets
// the default level. Invalid directives are skipped; the first error is
// returned.
func parseDirectives(s string) (firstErr error) {
	levelsMu.Lock()
	defer levelsMu.Unlock()

	for _, d := range strings.Split(s, ",") {
		if d == "" {
			continue
		}
		v := strings.SplitN(d, "=", 2)
		level, err := ParseLevel(v[len(v)-1])
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid directive '%s': %v", d, err)
			}
			continue
		}
		if len(v) == 1 {
			defaultLevel = level
		} else {
			tagLevels = append(tagLevels, tagLevel{v[0], level})
		}
	}
	return
}

// SetLevels applies "tag=level" directives, with the same syntax as the
// LOGLEVEL environment variable, on top of whatever the environment set.
func SetLevels(directives string) error {
	return parseDirectives(directives)
}

func determineLevel(tag string) Level {
	levelsMu.RLock()
	defer levelsMu.RUnlock()

	// Later directives win.
	for i := len(tagLevels) - 1; i >= 0; i-- {
		if tagLevels[i].tag == tag {
			return tagLevels[i].level
		}
	}
	return defaultLevel
}
