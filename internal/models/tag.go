package models

import (
	"fmt"
	"strconv"
	"strings"
)

// DepthUnknown is reported for position tags whose ladder depth cannot be
// reconstructed.
const DepthUnknown = -1

// FormatPositionTag encodes the cycle id and ladder depth into an order
// tag, "<cycleID>_<depth>". The depth is always the final
// underscore-delimited segment.
func FormatPositionTag(cycleID string, depth int) string {
	return fmt.Sprintf("%s_%d", cycleID, depth)
}

// ParseDepthFromTag reconstructs the ladder depth from an order tag.
// Malformed tags map to DepthUnknown rather than an error: provider
// metadata is advisory, not load-bearing.
func ParseDepthFromTag(tag string) int {
	idx := strings.LastIndex(tag, "_")
	if idx < 0 || idx == len(tag)-1 {
		return DepthUnknown
	}
	depth, err := strconv.Atoi(tag[idx+1:])
	if err != nil || depth < 0 {
		return DepthUnknown
	}
	return depth
}

// ParseCycleIDFromTag reconstructs the cycle id from an order tag, or ""
// when the tag does not carry a valid depth suffix.
func ParseCycleIDFromTag(tag string) string {
	if ParseDepthFromTag(tag) == DepthUnknown {
		return ""
	}
	return tag[:strings.LastIndex(tag, "_")]
}
