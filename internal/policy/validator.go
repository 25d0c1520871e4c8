// Package policy gates generated Terraform on an embedded rego policy. The
// policy sees the resources a configuration declares, not a plan.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/savaki/gox/slicex"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/savaki/tf-provisioner/internal/tfconfig"
)

//go:embed terraform.rego
var policyContent string

const (
	moduleName = "terraform.rego"
	query      = "allowed = data.terraform.allow; violations = data.terraform.violations"
)

type Validator struct {
	query rego.PreparedEvalQuery
}

type ValidationResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

// NewValidator prepares the policy. Resources whose type appears in
// deniedTypes are rejected in addition to the built-in rules.
func NewValidator(ctx context.Context, deniedTypes []string) (*Validator, error) {
	if deniedTypes == nil {
		deniedTypes = []string{}
	}
	data := map[string]interface{}{
		"denied_resource_types": slicex.Map(deniedTypes, toValue[string]),
	}

	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(moduleName, policyContent),
		rego.Store(inmem.NewFromObject(data)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy: %w", err)
	}

	return &Validator{query: prepared}, nil
}

// ValidateSource evaluates the policy against the resources declared in
// source. Source that cannot be parsed is never evaluated; the error wraps
// ErrParse.
func (v *Validator) ValidateSource(ctx context.Context, source string) (*ValidationResult, error) {
	resources, err := tfconfig.Inventory(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tferrors.ErrParse, err)
	}
	return v.Validate(ctx, resources)
}

// Validate evaluates the policy against resources
func (v *Validator) Validate(ctx context.Context, resources []tfconfig.Resource) (*ValidationResult, error) {
	input := map[string]interface{}{
		"resources": slicex.Map(resources, toInput),
	}

	results, err := v.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 {
		return &ValidationResult{Violations: []string{"policy evaluation returned no results"}}, nil
	}

	bindings := results[0].Bindings
	allowed, ok := bindings["allowed"].(bool)
	if !ok {
		return &ValidationResult{Violations: []string{"policy evaluation returned non-boolean result"}}, nil
	}
	if allowed {
		return &ValidationResult{Allowed: true}, nil
	}

	violations := messages(bindings["violations"])
	if len(violations) == 0 {
		violations = []string{"policy denied the configuration without a reason"}
	}
	return &ValidationResult{Violations: violations}, nil
}

// messages flattens a rego set or array of strings into a sorted slice
func messages(value interface{}) []string {
	var items []interface{}
	switch v := value.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		for key := range v {
			items = append(items, key)
		}
	}

	var found []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			found = append(found, s)
		}
	}
	sort.Strings(found)
	return found
}

func toValue[T any](t T) interface{} {
	return t
}

func toInput(r tfconfig.Resource) interface{} {
	return map[string]interface{}{
		"mode":         r.Mode,
		"type":         r.Type,
		"name":         r.Name,
		"provisioners": slicex.Map(r.Provisioners, toValue[string]),
	}
}
