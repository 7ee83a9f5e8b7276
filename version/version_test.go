package version

import "testing"

func TestVersion_NotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestFull(t *testing.T) {
	origVersion := Version
	origCommit := GitCommit
	origBuildTime := BuildTime
	defer func() {
		Version = origVersion
		GitCommit = origCommit
		BuildTime = origBuildTime
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildTime string
		want      string
	}{
		{"version only", "1.0.0", "", "", "1.0.0"},
		{"with commit", "1.0.0", "abc1234", "", "1.0.0-abc1234"},
		{"with build time", "1.0.0", "", "2026-08-01T12:00:00Z", "1.0.0 (2026-08-01T12:00:00Z)"},
		{"complete", "1.0.0", "abc1234", "2026-08-01T12:00:00Z", "1.0.0-abc1234 (2026-08-01T12:00:00Z)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version = tt.version
			GitCommit = tt.commit
			BuildTime = tt.buildTime
			if got := Full(); got != tt.want {
				t.Errorf("Full() = %q, want %q", got, tt.want)
			}
		})
	}
}
