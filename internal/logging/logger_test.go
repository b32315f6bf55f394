package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]Level{
		"e": Error, "WARN": Warn, "info": Info, "D": Debug, "trace": MaxLevel, "3": Level(3),
	} {
		level, err := ParseLevel(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, level, s)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
	_, err = ParseLevel("12")
	assert.Error(t, err)
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var out bytes.Buffer
	log := New("demux", &out).WithLevel(Info)

	log.Debug("hidden %d", 1)
	assert.Zero(t, out.Len())

	log.Warn("stream %d stopped", 2)
	assert.Contains(t, out.String(), "W/demux[")
	assert.Contains(t, out.String(), "stream 2 stopped\n")
}

func TestTagDirectives(t *testing.T) {
	require.NoError(t, SetLevels("omx=debug"))
	assert.Equal(t, Debug, New("omx", nil).Level())
	assert.Equal(t, defaultLevel, New("render", nil).Level())

	assert.Error(t, SetLevels("omx=shouty"))
	assert.Equal(t, Debug, New("omx", nil).Level())
}
