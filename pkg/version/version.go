package version

// Set at link time with -ldflags "-X github.com/nais/sitedeploy/pkg/version.version=..."
var (
	version   = "unknown"
	buildTime = "unknown"
)

func Version() string {
	return version
}

func BuildTime() string {
	return buildTime
}
