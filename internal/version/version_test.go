package version

import (
	"fmt"
	"testing"
)

func setBuild(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = version, commit, buildTime
}

func TestString(t *testing.T) {
	tests := []struct {
		name      string
		version   string
		commit    string
		buildTime string
		want      string
	}{
		{"defaults", "dev", "unknown", "unknown", "dev (unknown) built unknown"},
		{"release", "1.2.3", "abc1234", "2026-01-15T10:00:00Z", "1.2.3 (abc1234) built 2026-01-15T10:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuild(t, tt.version, tt.commit, tt.buildTime)
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogAttrs(t *testing.T) {
	setBuild(t, "1.2.3", "abc1234", "now")

	got := fmt.Sprint(LogAttrs())
	want := "[version 1.2.3 commit abc1234 build_time now]"
	if got != want {
		t.Errorf("LogAttrs() = %s, want %s", got, want)
	}
}

func TestDefaultValues(t *testing.T) {
	// ldflags may override these, but never with empty strings.
	if Version == "" || Commit == "" || BuildTime == "" {
		t.Errorf("empty build variable: %q %q %q", Version, Commit, BuildTime)
	}
}
