package config

import (
	"github.com/google/uuid"
)

const (
	// DefaultPort is the well-known lobby port.
	DefaultPort = 22023

	// DefaultCreateTimeout is how long an empty freshly created room
	// survives, in seconds.
	DefaultCreateTimeout = 10
)

// DefaultVersions lists the client versions accepted out of the box.
var DefaultVersions = []string{"2022.8.24", "2022.10.25"}

// GenerateNodeID generates the cluster identity tag for this process. The
// server is a single node; the tag distinguishes its logs and listings when
// several processes share infrastructure.
func GenerateNodeID() string {
	return uuid.New().String()
}
