// Package feature implements version-gated capability negotiation.
//
// Grounded on original_source/syncplay/utils.go's meetsMinVersion and the
// version floors declared in original_source/syncplay/constants.go.
package feature

import (
	"strconv"
	"strings"
)

// Version floors for messages introduced after protocol 1.2.
const (
	ControlledRoomsMinVersion = "1.3.0"
	UserReadyMinVersion       = "1.3.0"
	SharedPlaylistMinVersion  = "1.4.0"
	ChatMinVersion            = "1.5.0"
	FeatureListMinVersion     = "1.5.0"
	RecentClientThreshold     = "1.6.5"
)

// ServerVersion is the protocol version this server reports in its own
// Hello's "realversion" field and records in stats snapshots.
const ServerVersion = "1.6.9"

// MeetsMinVersion reports whether version is >= minVersion, comparing
// dotted numeric components left to right. A version with fewer components
// than minVersion is padded with zeros; a malformed (non-numeric)
// component is treated as 0.
func MeetsMinVersion(version, minVersion string) bool {
	v := versionTuple(version)
	m := versionTuple(minVersion)
	n := len(v)
	if len(m) > n {
		n = len(m)
	}
	for i := 0; i < n; i++ {
		var vi, mi int
		if i < len(v) {
			vi = v[i]
		}
		if i < len(m) {
			mi = m[i]
		}
		if vi != mi {
			return vi > mi
		}
	}
	return true
}

func versionTuple(version string) []int {
	parts := strings.Split(version, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}

// IsRecentClient reports whether version meets RecentClientThreshold.
func IsRecentClient(version string) bool {
	return MeetsMinVersion(version, RecentClientThreshold)
}
