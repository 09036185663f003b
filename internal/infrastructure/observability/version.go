package observability

// Binary versioning for logs, metrics and /api/version.
// Values are overwritten via -ldflags during build.
var (
	Name    = "api-tester"
	Version = "dev"  // release version
	Commit  = "none" // short commit
	Date    = ""     // ISO8601 UTC build time
)
