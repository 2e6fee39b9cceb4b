// Package tools owns tool-identifier qualification and the factory registry
// for locally-defined tools. Qualified identifiers are permanent: unlike the
// aggregate package's rekey-on-collision policy, a qualified ID never changes
// once minted, because approval and audit records correlate on it across a
// session.
package tools

import (
	"fmt"
	"strings"
)

// Marker identifies the category a tool identifier originates from.
type Marker string

const (
	// MarkerMCP marks tools advertised by external protocol servers.
	MarkerMCP Marker = "mcp"
	// MarkerLocal marks tools defined by local factories.
	MarkerLocal Marker = "local"
)

const markerSeparator = "__"

var knownMarkers = []Marker{MarkerMCP, MarkerLocal}

// QualifyID prefixes name with the given marker. Qualification is
// idempotent: a name already carrying any known marker is returned
// unchanged.
func QualifyID(marker Marker, name string) string {
	if IsQualified(name) {
		return name
	}
	return string(marker) + markerSeparator + name
}

// QualifyServerTool qualifies a tool advertised by an external server,
// embedding the server name so two servers can never expose the same
// callable identifier.
func QualifyServerTool(serverName, toolName string) string {
	if IsQualified(toolName) {
		return toolName
	}
	return fmt.Sprintf("%s%s%s%s%s", MarkerMCP, markerSeparator, serverName, markerSeparator, toolName)
}

// IsQualified reports whether name already carries a known marker prefix.
func IsQualified(name string) bool {
	for _, marker := range knownMarkers {
		if strings.HasPrefix(name, string(marker)+markerSeparator) {
			return true
		}
	}
	return false
}

// SplitQualifiedServerTool splits an mcp-qualified identifier back into its
// server and original tool name.
func SplitQualifiedServerTool(qualifiedID string) (serverName, toolName string, err error) {
	prefix := string(MarkerMCP) + markerSeparator
	if !strings.HasPrefix(qualifiedID, prefix) {
		return "", "", fmt.Errorf("not a server-qualified tool identifier: %s", qualifiedID)
	}
	rest := qualifiedID[len(prefix):]
	parts := strings.SplitN(rest, markerSeparator, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed qualified tool identifier: %s", qualifiedID)
	}
	return parts[0], parts[1], nil
}
