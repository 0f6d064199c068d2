package version

// Package metadata information, used for versioning and metadata generation.
// The release pipeline replaces these variables during the build.
var (
	Version      = "0.1.0"                    // Version of the reconciler
	Toolname     = "productid-reconciler-dev" // Name of the tool
	Organization = "unknown"                  // Organization that built the tool
	BuildDate    = "unknown"                  // Date when the tool was built
	CommitSHA    = "unknown"                  // Commit SHA of the tool
)
