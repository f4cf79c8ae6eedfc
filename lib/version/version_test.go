// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty, savedTime := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = savedCommit, savedDirty, savedTime })

	GitCommit, GitDirty, BuildTime = "abc1234", "false", "2026-10-01T00:00:00Z"
	if got, want := Info(), Version+" (abc1234, 2026-10-01T00:00:00Z)"; got != want {
		t.Errorf("Info = %q, want %q", got, want)
	}

	GitDirty = "true"
	if got := Info(); !strings.Contains(got, "abc1234-dirty") {
		t.Errorf("Info = %q, want a -dirty marker", got)
	}
}

func TestPrint(t *testing.T) {
	var buffer bytes.Buffer
	Print(&buffer, "quark-netbridge")

	output := buffer.String()
	if !strings.HasPrefix(output, "quark-netbridge "+Version) {
		t.Errorf("Print output %q does not start with the binary name and version", output)
	}
	if !strings.Contains(output, runtime.Version()) {
		t.Errorf("Print output %q lacks the Go version", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Print output is not newline-terminated")
	}
}
