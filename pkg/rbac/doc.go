// Package rbac provides role-based access control for the authorization core.
//
// # Overview
//
// Roles form a closed enumeration assigned externally per tenant. A
// static policy table, embedded at compile time, maps each role to its
// resource/action grants; Derive merges a principal's roles into one
// permission set. Derivation is a pure function: no I/O, no hidden
// state, identical output for identical input.
//
// # Roles and Grants
//
//	platform_owner     - operator super-role, bypasses the table and all guards
//	tenant_owner       - admin on every resource within the tenant
//	agent_user         - read/write on agents, workflows, documents; read on evidence and llm-configs
//	auditor            - read on everything
//	compliance_officer - read/write on frameworks, controls, evidence, reports
//
// The wildcard resource "*" matches every resource type, and the admin
// action implies read, write and delete on the same resource.
//
// # Usage Example
//
//	perms := rbac.Derive(principal.Roles)
//	if !perms.Allows("agents", rbac.ActionWrite) {
//		// denied
//	}
//
// Guard evaluation with typed denials:
//
//	if err := rbac.CheckPermissions(subject, required...); err != nil {
//		var denial *rbac.DenialError
//		errors.As(err, &denial) // carries guard name and detail map
//	}
//
// # Ownership
//
// CheckOwnership applies a three-tier rule: super-role passes, tenant
// owners pass when the record belongs to their tenant, everyone else
// must own the record. Store lookups go through the OwnershipChecker
// interface; PostgresOwnershipStore backs it with a deny-by-default
// resource table registry.
//
// # Related Packages
//
//   - pkg/authn: supplies the role set on the principal
//   - pkg/middleware: exposes the guards over HTTP
package rbac
