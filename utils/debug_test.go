package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/attnlab/attention/params"
)

func TestDebugfFirstCallPrints(t *testing.T) {
	oldDebug, oldEvery := params.Config.Debug, params.Config.DebugEvery
	oldOut, oldCalls := debugOut, debugCalls
	defer func() {
		params.Config.Debug, params.Config.DebugEvery = oldDebug, oldEvery
		debugOut, debugCalls = oldOut, oldCalls
	}()

	var buf bytes.Buffer
	debugOut = &buf
	debugCalls = 0
	params.Config.Debug = true
	params.Config.DebugEvery = 100

	// a short run makes only a handful of calls; the very first one
	// must still produce output
	Debugf("row-sum %.2f", 1.0)
	if !strings.Contains(buf.String(), "row-sum 1.00") {
		t.Fatalf("first Debugf call printed nothing, got %q", buf.String())
	}

	// calls 2..99 are rate limited
	buf.Reset()
	Debugf("second")
	if buf.Len() != 0 {
		t.Fatalf("second call should be rate limited, got %q", buf.String())
	}

	// call 101 fires again ((101-1)%100 == 0)
	debugCalls = 100
	Debugf("hundred-first")
	if !strings.Contains(buf.String(), "hundred-first") {
		t.Fatalf("call 101 should print, got %q", buf.String())
	}
}

func TestDebugfDisabledIsSilent(t *testing.T) {
	oldDebug := params.Config.Debug
	oldOut := debugOut
	defer func() {
		params.Config.Debug = oldDebug
		debugOut = oldOut
	}()

	var buf bytes.Buffer
	debugOut = &buf
	params.Config.Debug = false
	Debugf("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("Debugf printed with Debug off: %q", buf.String())
	}
}
