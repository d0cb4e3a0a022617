// Package pkgid parses and validates "owner/name" package identifiers.
package pkgid

import (
	"cmp"
	"regexp"
	"strings"

	"github.com/blackwell-systems/datapkg/internal/apperr"
)

// validName starts with a letter and continues with letters, digits or '_'.
var validName = regexp.MustCompile(`^[a-zA-Z]\w*$`)

const usage = "Specify package as owner/package_name."

// ID identifies a package by owner and name.
type ID struct {
	Owner string
	Name  string
}

// String returns the "owner/name" form.
func (id ID) String() string {
	return id.Owner + "/" + id.Name
}

// Parse splits s into owner and name. It fails with *apperr.ParseError when s
// does not contain exactly one '/', when either half is empty, or when a half
// is not a valid name.
func Parse(s string) (ID, error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return ID{}, &apperr.ParseError{Input: s, Message: usage}
	}

	id := ID{Owner: owner, Name: name}
	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Validate checks both halves against the name rules.
func (id ID) Validate() error {
	if !validName.MatchString(id.Owner) {
		return &apperr.ParseError{Input: id.String(), Message: "Invalid user name: " + quote(id.Owner)}
	}
	if !validName.MatchString(id.Name) {
		return &apperr.ParseError{Input: id.String(), Message: "Invalid package name: " + quote(id.Name)}
	}
	return nil
}

// Compare orders identifiers by owner, then name, for use with
// slices.SortFunc.
func Compare(a, b ID) int {
	if c := cmp.Compare(a.Owner, b.Owner); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

func quote(s string) string {
	return "'" + s + "'"
}
