package rbac

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type policyGrant struct {
	Resource string   `yaml:"resource"`
	Actions  []Action `yaml:"actions"`
}

type policyFile struct {
	Roles map[Role][]policyGrant `yaml:"roles"`
}

// policyTable is loaded once at init from the embedded table. The
// table is data, not code: changing what a role may do is a YAML
// edit, not a logic change.
var policyTable map[Role][]policyGrant

func init() {
	var f policyFile
	if err := yaml.Unmarshal(policyYAML, &f); err != nil {
		panic(fmt.Sprintf("rbac: invalid embedded policy table: %v", err))
	}
	for role := range f.Roles {
		if _, ok := knownRoles[role]; !ok {
			panic(fmt.Sprintf("rbac: policy table grants unknown role %q", role))
		}
	}
	policyTable = f.Roles
}

// Derive computes the permission set for a role list. Pure: the same
// roles always produce the same set, with no I/O. The admin action is
// expanded here so membership checks stay a single map lookup.
func Derive(roles []Role) PermissionSet {
	set := make(PermissionSet)
	for _, role := range roles {
		if role == RolePlatformOwner {
			// Super-role: grant admin on the wildcard so every
			// Allows call passes without special-casing callers.
			expand(set, "*", ActionAdmin)
			continue
		}
		for _, grant := range policyTable[role] {
			for _, action := range grant.Actions {
				expand(set, grant.Resource, action)
			}
		}
	}
	return set
}

func expand(set PermissionSet, resource string, action Action) {
	set[Permission{Resource: resource, Action: action}] = struct{}{}
	if action == ActionAdmin {
		set[Permission{Resource: resource, Action: ActionRead}] = struct{}{}
		set[Permission{Resource: resource, Action: ActionWrite}] = struct{}{}
		set[Permission{Resource: resource, Action: ActionDelete}] = struct{}{}
	}
}
