// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origUuid    string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origUuid = buildUuid
	if buildFlags != nil {
		origFlags = *buildFlags
	}

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	buildUuid = origUuid
	if buildFlags != nil {
		*buildFlags = origFlags
	}

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		buildUuid   string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2026-08-06", "abcdef123", "v1.0.0", "uuid-1", "BuildName is required"},
		{"Missing BuildTime", "beatpulse", "", "abcdef123", "v1.0.0", "uuid-1", "BuildTime is required"},
		{"Missing BuildCommit", "beatpulse", "2026-08-06", "", "v1.0.0", "uuid-1", "BuildCommit is required"},
		{"Missing BuildVersion", "beatpulse", "2026-08-06", "abcdef123", "", "uuid-1", "BuildVersion is required"},
		{"Missing BuildUuid", "beatpulse", "2026-08-06", "abcdef123", "v1.0.0", "", "BuildUuid is required"},
		{"Success Case", "beatpulse", "2026-08-06", "abcdef123", "v1.0.0", "uuid-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = &ldFlags{Name: "unknown", Time: "unknown", Commit: "unknown", Version: "unknown", Uuid: "unknown"}

			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer
			buildUuid = tt.buildUuid

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Fatalf("Initialize() error = %v, want %q", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if buildFlags.Name != tt.buildName || buildFlags.Uuid != tt.buildUuid {
				t.Errorf("buildFlags = %+v, want Name=%v Uuid=%v", buildFlags, tt.buildName, tt.buildUuid)
			}
		})
	}
}

func TestGetBuildFlags(t *testing.T) {
	expected := ldFlags{Name: "beatpulse", Time: "2026-08-06", Commit: "abcdef123", Version: "v1.0.0", Uuid: "uuid-1"}
	buildFlags = &expected

	flags := GetBuildFlags()
	if *flags != expected {
		t.Errorf("GetBuildFlags() = %+v, want %+v", flags, expected)
	}
}
