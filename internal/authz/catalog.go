package authz

import (
	"strings"

	"objectgate/internal/metadata"
)

// Permission names have the shape "app.action_type", e.g.
// "installs.view_location". They are derived from a resource type and an
// action, and parsed back into their three parts when a decision request
// comes in.

// PermName returns the permission name for a resource type and action.
func PermName(rt *metadata.ResourceType, action string) string {
	return rt.App + "." + action + "_" + rt.Name
}

// PermNameForLabel returns the permission name for an "app.name" resource
// type label and an action. Used when accumulating grants, which reference
// types by label.
func PermNameForLabel(label, action string) (string, error) {
	app, name, ok := strings.Cut(label, ".")
	if !ok || app == "" || name == "" {
		return "", InvalidPermissionNameError(label)
	}
	return app + "." + action + "_" + name, nil
}

// ResolvePermName parses a permission name into app label, action, and type
// name. A string that does not match the "app.action_type" shape is a caller
// bug and yields INVALID_PERMISSION_NAME.
func ResolvePermName(perm string) (app, action, typeName string, err error) {
	app, rest, ok := strings.Cut(perm, ".")
	if !ok || app == "" {
		return "", "", "", InvalidPermissionNameError(perm)
	}
	action, typeName, ok = strings.Cut(rest, "_")
	if !ok || action == "" || typeName == "" {
		return "", "", "", InvalidPermissionNameError(perm)
	}
	return app, action, typeName, nil
}

// ResourceTypeForPerm resolves the resource type a permission name refers
// to, along with the action. An unregistered type yields
// UNKNOWN_RESOURCE_TYPE.
func ResourceTypeForPerm(reg *metadata.Registry, perm string) (*metadata.ResourceType, string, error) {
	app, action, typeName, err := ResolvePermName(perm)
	if err != nil {
		return nil, "", err
	}
	rt := reg.Get(app, typeName)
	if rt == nil {
		return nil, "", UnknownResourceTypeError(perm)
	}
	return rt, action, nil
}
