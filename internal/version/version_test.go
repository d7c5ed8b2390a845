package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldSHA, oldBuilt := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldBuilt })

	Version, GitSHA, BuildTime = "1.2.0", "abc1234", "2026-05-04T09:00:00Z"
	if got, want := String(), "crowd-drive 1.2.0 (abc1234, built 2026-05-04T09:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
