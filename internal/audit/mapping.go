package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for an HTTP method and echo route pattern
// (e.g. PATCH /v1/me -> update identity, POST /v1/sessions/refresh -> refresh session).
// Resource comes from the first segment after the version; a trailing literal segment names the
// action for POST and the resource otherwise.
func ParseRoute(method, route string) ActionResource {
	parts := strings.Split(strings.Trim(route, "/"), "/")
	if len(parts) > 0 && parts[0] == "v1" {
		parts = parts[1:]
	}
	if len(parts) == 0 || parts[0] == "" {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := routeToResource(parts[0])
	last := parts[len(parts)-1]
	nested := len(parts) > 1 && !strings.HasPrefix(last, ":")
	if nested {
		if method == http.MethodPost {
			return ActionResource{Action: strings.ToLower(last), Resource: resource}
		}
		resource = routeToResource(last)
	}
	single := strings.HasPrefix(last, ":") || (parts[0] == "me" && !nested)
	return ActionResource{Action: methodToAction(method, single), Resource: resource}
}

func routeToResource(segment string) string {
	switch segment {
	case "me":
		return ResourceIdentity
	case "contact":
		return ResourceContact
	}
	return strings.TrimSuffix(segment, "s")
}

func methodToAction(method string, single bool) string {
	switch method {
	case http.MethodGet:
		if single {
			return "get"
		}
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
