package obs

import "strings"

// CanonicalPath collapses path parameters so metric label cardinality stays
// bounded. Only routes carrying identifiers are rewritten.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	switch {
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "admin" && parts[2] == "impersonation" && parts[3] != "" && parts[3] != "start":
		return "/v1/admin/impersonation/:id"
	case len(parts) == 5 && parts[0] == "v1" && parts[1] == "admin" && parts[2] == "impersonation":
		return "/v1/admin/impersonation/:id/" + parts[4]
	}
	return path
}
