package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Output: &buf}), &buf
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newTestLogger(WARN)

	log.Debugf("debug %d", 1)
	log.Infof("info %d", 2)
	log.Warnf("warn %d", 3)
	log.Errorf("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestNamedSharesSink(t *testing.T) {
	log, buf := newTestLogger(INFO)
	child := log.Named("consensus").Named("pop")

	child.Infof("dropped rank %d", 10)
	assert.Contains(t, buf.String(), "consensus.pop: dropped rank 10")

	log.SetLevel(ERROR)
	buf.Reset()
	child.Warnf("hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DEBUG, true},
		{" INFO ", INFO, true},
		{"warning", WARN, true},
		{"Error", ERROR, true},
		{"loud", INFO, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Errorf("nothing to see")
	assert.True(t, strings.HasPrefix(log.Level().String(), "UNKNOWN"))
}
