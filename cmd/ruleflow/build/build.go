package build

// Version, Branch and Revision are set via -ldflags at build time, in the
// teacher's own cmd/tempo/build convention.
var (
	Version  string
	Branch   string
	Revision string
)
