package version

// Version is the current version of pinch and pinch-server.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/Rogue-56/pinch/internal/version.Version=v1.0.0'"
var Version = "dev"
