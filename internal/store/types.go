package store

import (
	"time"

	"github.com/blackwell-systems/datapkg/internal/pkgid"
)

// Action is what happened to a package.
type Action string

const (
	ActionBuild   Action = "build"
	ActionInstall Action = "install"
	ActionPush    Action = "push"
	ActionRemove  Action = "remove"
)

// PackageRecord is the index's last known state of a local package.
type PackageRecord struct {
	ID        pkgid.ID
	Hash      string
	SizeBytes int64
	Root      string
	UpdatedAt time.Time
}

// Event is one entry in a package's history.
type Event struct {
	ID        string
	Package   pkgid.ID
	Action    Action
	Hash      string
	SizeBytes int64
	Timestamp time.Time
}
