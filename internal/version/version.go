// Package version negotiates the wire-protocol version shared by a client
// and server from their respective supported-version sets.
package version

import "errors"

// ErrNoCommonVersion is returned when client and server share no version.
var ErrNoCommonVersion = errors.New("no common protocol version")

// Triple is a semver-style (major, minor, patch) protocol version, ordered
// lexicographically.
type Triple struct {
	Major, Minor, Patch uint32
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater than o.
func (t Triple) Compare(o Triple) int {
	if t.Major != o.Major {
		return cmp(t.Major, o.Major)
	}
	if t.Minor != o.Minor {
		return cmp(t.Minor, o.Minor)
	}
	return cmp(t.Patch, o.Patch)
}

func cmp(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// SelectHighestCommon returns the highest version present in both sets, or
// false if the intersection is empty.
func SelectHighestCommon(client, server []Triple) (Triple, bool) {
	serverSet := make(map[Triple]bool, len(server))
	for _, v := range server {
		serverSet[v] = true
	}
	var best Triple
	found := false
	for _, v := range client {
		if !serverSet[v] {
			continue
		}
		if !found || v.Compare(best) > 0 {
			best = v
			found = true
		}
	}
	return best, found
}

// Negotiate returns the highest common version or ErrNoCommonVersion. An
// empty intersection — including an empty input on either side — is
// always an error.
func Negotiate(client, server []Triple) (Triple, error) {
	v, ok := SelectHighestCommon(client, server)
	if !ok {
		return Triple{}, ErrNoCommonVersion
	}
	return v, nil
}

// SupportedVersions lists the protocol versions this implementation speaks.
func SupportedVersions() []Triple {
	return []Triple{{Major: 1, Minor: 0, Patch: 0}}
}
