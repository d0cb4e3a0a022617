// Package output provides terminal output utilities for datapkg.
//
// This package includes:
//   - Tree rendering for installed packages and artifact contents
//   - Tables for package history and access lists
//   - Progress bars for transfers and spinners for registry round trips
//   - Human-readable formatting for sizes, dates, and hashes
//
// Renderers return strings and never write to the terminal themselves.
// Progress indicators are thread-safe.
package output

import (
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/datapkg/internal/build"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
	"github.com/blackwell-systems/datapkg/internal/store"
)

// ANSI color codes for history actions
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

const (
	branchMid  = "├── "
	branchLast = "└── "
	indentMid  = "│   "
	indentLast = "    "
)

// now is swapped out by tests that render relative times.
var now = time.Now

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// PackageRow is one installed package as shown by `datapkg ls`.
type PackageRow struct {
	ID        pkgid.ID
	Hash      string
	SizeBytes int64
	UpdatedAt time.Time
}

// RenderPackageTree renders the packages of one store root as a tree under
// the root's path.
//
//	/home/me/.local/share/datapkg/packages
//	├── acme/gadget   12 KB  9f86d081  2 days ago
//	└── acme/widget  1.2 GB  3f2a9c1b  just now
func RenderPackageTree(root string, rows []PackageRow) string {
	var sb strings.Builder
	sb.WriteString(root)
	sb.WriteString("\n")

	width := 0
	for _, r := range rows {
		width = max(width, len(r.ID.String()))
	}

	for i, r := range rows {
		prefix := branchMid
		if i == len(rows)-1 {
			prefix = branchLast
		}
		sb.WriteString(fmt.Sprintf("%s%-*s  %8s  %-8s  %s\n",
			prefix,
			width, r.ID.String(),
			FormatSize(r.SizeBytes),
			shortHash(r.Hash),
			formatRelativeTime(r.UpdatedAt)))
	}
	return sb.String()
}

// RenderAccessList renders the users allowed to read a package, one per
// line.
func RenderAccessList(users []string) string {
	if len(users) == 0 {
		return ""
	}
	return strings.Join(users, "\n") + "\n"
}

// RenderHistoryTable renders index events, newest first as given.
func RenderHistoryTable(events []*store.Event) string {
	if len(events) == 0 {
		return "No history recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-20s %-24s %-8s %-10s %8s\n",
		"Time", "Package", "Action", "Hash", "Size"))
	sb.WriteString(strings.Repeat("─", 74))
	sb.WriteString("\n")

	for _, ev := range events {
		action := fmt.Sprintf("%-8s", ev.Action)
		size := "—"
		if ev.SizeBytes > 0 {
			size = FormatSize(ev.SizeBytes)
		}
		sb.WriteString(fmt.Sprintf("%-20s %-24s %s %-10s %8s\n",
			ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
			truncate(ev.Package.String(), 24),
			colorize(actionColor(ev.Action), action),
			shortHash(ev.Hash),
			size))
	}
	return sb.String()
}

// RenderPackageRecord renders the index's last known state of a package
// above its history.
//
//	acme/widget: 3f2a9c1b  1.2 GB  2 days ago
//	  root: /home/me/.local/share/datapkg/packages
func RenderPackageRecord(rec *store.PackageRecord) string {
	return fmt.Sprintf("%s: %s  %s  %s\n  root: %s\n\n",
		rec.ID, shortHash(rec.Hash), FormatSize(rec.SizeBytes),
		formatRelativeTime(rec.UpdatedAt), rec.Root)
}

func actionColor(a store.Action) string {
	switch a {
	case store.ActionInstall:
		return colorGreen
	case store.ActionPush:
		return colorYellow
	case store.ActionRemove:
		return colorRed
	default:
		return colorGray
	}
}

// treeNode is a directory in an artifact listing.
type treeNode struct {
	name     string
	size     int64
	children []*treeNode
	isFile   bool
}

func (n *treeNode) child(name string) *treeNode {
	for _, c := range n.children {
		if c.name == name && !c.isFile {
			return c
		}
	}
	c := &treeNode{name: name}
	n.children = append(n.children, c)
	return c
}

// RenderContentsTree renders an artifact listing as a directory tree headed
// by the package name and, when present, its description.
func RenderContentsTree(id pkgid.ID, contents *build.Contents) string {
	root := &treeNode{}
	for _, e := range contents.Entries {
		dir, file := path.Split(e.Path)
		n := root
		for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
			if part != "" {
				n = n.child(part)
			}
		}
		n.children = append(n.children, &treeNode{name: file, size: e.Size, isFile: true})
	}

	var sb strings.Builder
	sb.WriteString(id.String())
	if contents.Metadata != nil && contents.Metadata.Description != "" {
		sb.WriteString(" - ")
		sb.WriteString(contents.Metadata.Description)
	}
	sb.WriteString("\n")
	writeChildren(&sb, root, "")
	return sb.String()
}

func writeChildren(sb *strings.Builder, n *treeNode, indent string) {
	// Directories first, then files, each alphabetically.
	slices.SortStableFunc(n.children, func(a, b *treeNode) int {
		if a.isFile != b.isFile {
			if a.isFile {
				return 1
			}
			return -1
		}
		return strings.Compare(a.name, b.name)
	})

	for i, c := range n.children {
		branch, next := branchMid, indentMid
		if i == len(n.children)-1 {
			branch, next = branchLast, indentLast
		}
		if c.isFile {
			sb.WriteString(fmt.Sprintf("%s%s%s (%s)\n", indent, branch, c.name, FormatSize(c.size)))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s%s%s/\n", indent, branch, c.name))
		writeChildren(sb, c, indent+next)
	}
}

// shortHash abbreviates a content hash for display.
func shortHash(h string) string {
	if h == "" {
		return "—"
	}
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// FormatSize converts bytes to human-readable size (GB, MB, KB).
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.0f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.0f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	diff := now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24/7), "week")
	case diff < 365*24*time.Hour:
		return plural(int(diff.Hours()/24/30), "month")
	default:
		return plural(int(diff.Hours()/24/365), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
