// Package version carries the build identity, set at link time via
// -ldflags "-X github.com/reelmatch/reelmatch/internal/version.Version=…".
package version

var Version = "dev"
