// Package policy provides Open Policy Agent (OPA) integration for openrestyle.
//
// This package implements policy enforcement for replacement requests using
// the Rego policy language. It includes built-in policies for common
// governance requirements and supports custom policy loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Gate - Feeds catalog data into evaluation and implements the engine's policy port
//  3. Loader - Loads policies from files, directories, and bundles
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine and gate:
//
//	logger := zerolog.New(os.Stdout)
//	policyEngine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gate := policy.NewGate(policyEngine, store, logger)
//	controller.SetPolicyGate(gate)
//
// The gate loads the catalog entries for the source and target assignments
// and evaluates every enabled policy against the request. A denial settles
// the operation to error with kind permission.
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/openrestyle/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = policyEngine.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. locked-assignments - Blocks replacement of assignments marked locked
//  2. affected-count-cap - Blocks replacements above the affected-element cap
//  3. cross-kind - Blocks replacements that mix style and token assignments
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files:
//
//	package custom.policies.naming
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.target
//
//	    # Replacement targets must come from the current design system
//	    not startswith(input.target.id, "ds2/")
//
//	    violation := {
//	        "message": "Replacement targets must come from the ds2 catalog",
//	        "severity": "error",
//	    }
//	}
//
// # Policy Input
//
// Policies receive the replacement request, the catalog entries for the
// source and target assignments (id, kind, name, locked), the affected
// element count, and an evaluation context (operator, timestamp, optional
// affected-count override).
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block operations
//   - error: Issues that block operations
//   - critical: Severe issues requiring immediate attention
//
// Only error and critical violations deny a request.
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return policyEngine.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The engine
// uses OPA's PreparedEvalQuery for optimal performance. Caching is implemented
// at both the loader and engine levels.
package policy
