// Package buildinfo carries build-time metadata injected through ldflags.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata the build did not set.
const UnknownValue = "unknown"

// Context holds build metadata. It is not part of user configuration.
type Context struct {
	Version   string // git tag
	BuildDate string
	Commit    string
}

// NewContext returns a Context for the given ldflags values.
func NewContext(version, buildDate, commit string) *Context {
	return &Context{Version: version, BuildDate: buildDate, Commit: commit}
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Version)
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.BuildDate)
}

// GetCommit returns the commit or UnknownValue.
func (c *Context) GetCommit() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Commit)
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", c.GetVersion(), c.GetCommit(), c.GetBuildDate())
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}
