package version

// Version contains the application version information.
// Set via build-time ldflags:
// go build -ldflags "-X github.com/xhyrom-forks/BunnyPlugins/internal/version.Version=v1.2.0".
var Version = "dev"
