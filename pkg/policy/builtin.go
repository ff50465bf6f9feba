package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		lockedAssignmentsPolicy(),
		affectedCountCapPolicy(),
		crossKindPolicy(),
	}
}

// lockedAssignmentsPolicy blocks replacement of assignments marked locked in
// the catalog, in either direction.
func lockedAssignmentsPolicy() Policy {
	return Policy{
		Name:        "locked-assignments",
		Description: "Blocks replacement of assignments marked locked in the catalog",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"catalog", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openrestyle.policies.locked

import rego.v1

deny contains violation if {
	input.source
	input.source.locked
	violation := {
		"message": sprintf("Assignment %s is locked and cannot be replaced", [input.source.id]),
		"severity": "error",
	}
}

deny contains violation if {
	input.target
	input.target.locked
	violation := {
		"message": sprintf("Assignment %s is locked and cannot be used as a replacement target", [input.target.id]),
		"severity": "error",
	}
}`,
	}
}

// affectedCountCapPolicy blocks replacements whose affected-element list
// exceeds the cap. The default cap is 10000; the caller can lower it through
// the evaluation context.
func affectedCountCapPolicy() Policy {
	return Policy{
		Name:        "affected-count-cap",
		Description: "Blocks replacements affecting more elements than the configured cap",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"scale", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openrestyle.policies.scale

import rego.v1

default_cap := 10000

cap := input.context.max_affected if {
	input.context.max_affected > 0
} else := default_cap

deny contains violation if {
	input.affected_count > cap
	violation := {
		"message": sprintf("Replacement affects %d elements, above the cap of %d", [input.affected_count, cap]),
		"severity": "error",
	}
}`,
	}
}

// crossKindPolicy blocks replacements where the catalog kind of the source
// or target disagrees with the requested operation kind.
func crossKindPolicy() Policy {
	return Policy{
		Name:        "cross-kind",
		Description: "Blocks replacements that mix style and token assignments",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"catalog", "consistency"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openrestyle.policies.kinds

import rego.v1

deny contains violation if {
	input.source
	input.source.kind != input.request.kind
	violation := {
		"message": sprintf("Source assignment %s is a %s, not a %s", [input.source.id, input.source.kind, input.request.kind]),
		"severity": "error",
	}
}

deny contains violation if {
	input.target
	input.target.kind != input.request.kind
	violation := {
		"message": sprintf("Target assignment %s is a %s, not a %s", [input.target.id, input.target.kind, input.request.kind]),
		"severity": "error",
	}
}`,
	}
}
