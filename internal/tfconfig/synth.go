// Package tfconfig synthesizes the files Terraform needs to run unattended
// next to generated source: a remote S3 backend, provider version pins and,
// when the source lacks one, a provider block with an explicit region.
package tfconfig

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

const (
	DefaultProvider        = "aws"
	DefaultProviderVersion = "~> 5.0"
	DefaultRequiredVersion = ">= 1.2.0"
	DefaultRegion          = "us-east-1"

	// RegionVariable is written to terraform.tfvars when the source declares it
	RegionVariable = "aws_region"
)

// File names written into the sandbox
const (
	MainFile     = "main.tf"
	BackendFile  = "backend.tf"
	VersionsFile = "versions.tf"
	TFVarsFile   = "terraform.tfvars"
)

// Options controls synthesis
type Options struct {
	Bucket          string // State bucket
	StateKey        string // Per-request state key
	Region          string // Region for backend and provider
	Provider        string // Provider local name, "aws" unless set
	ProviderVersion string
	RequiredVersion string
}

func (o Options) withDefaults() Options {
	if o.Region == "" {
		o.Region = DefaultRegion
	}
	if o.Provider == "" {
		o.Provider = DefaultProvider
	}
	if o.ProviderVersion == "" {
		o.ProviderVersion = DefaultProviderVersion
	}
	if o.RequiredVersion == "" {
		o.RequiredVersion = DefaultRequiredVersion
	}
	return o
}

// Files is the synthesized sandbox content. TFVars is empty when not needed.
type Files struct {
	Main     string
	Backend  string
	Versions string
	TFVars   string

	// ProviderDeclared reports whether Main declares the provider itself
	ProviderDeclared bool
	// Structural is false when Main could not be parsed and the text heuristic was used
	Structural bool
}

// Map returns the non-empty files keyed by file name
func (f Files) Map() map[string]string {
	m := map[string]string{
		MainFile:     f.Main,
		BackendFile:  f.Backend,
		VersionsFile: f.Versions,
	}
	if f.TFVars != "" {
		m[TFVarsFile] = f.TFVars
	}
	return m
}

// Synthesize produces the sandbox files for source.
//
// If source already declares the default provider, no second provider block
// is emitted; a declared provider lacking a region gets one injected in place.
// A required_providers block in source gains the provider requirement instead
// of a second block being written to versions.tf.
// A backend block inside source is removed so the per-request remote state
// always wins, and version pins already present in source are not repeated.
func Synthesize(source string, opts Options) (Files, error) {
	opts = opts.withDefaults()
	if opts.Bucket == "" || opts.StateKey == "" {
		return Files{}, fmt.Errorf("backend bucket and state key are required")
	}

	file, diags := hclwrite.ParseConfig([]byte(source), MainFile, hcl.InitialPos)
	if diags.HasErrors() {
		return synthesizeText(source, opts), nil
	}

	var (
		modified          bool
		providerDeclared  bool
		pinnedProvider    bool
		pinnedVersion     bool
		regionVarDeclared bool
	)

	for _, block := range file.Body().Blocks() {
		switch block.Type() {
		case "provider":
			if !hasLabels(block, opts.Provider) {
				continue
			}
			// an aliased block is not the default provider configuration
			if block.Body().GetAttribute("alias") == nil {
				providerDeclared = true
			}
			if block.Body().GetAttribute("region") == nil {
				block.Body().SetAttributeValue("region", cty.StringVal(opts.Region))
				modified = true
			}

		case "terraform":
			tf := block.Body()
			if tf.GetAttribute("required_version") != nil {
				pinnedVersion = true
			}
			for _, nested := range tf.Blocks() {
				switch nested.Type() {
				case "backend", "cloud":
					tf.RemoveBlock(nested)
					modified = true
				case "required_providers":
					// terraform allows one required_providers block per module
					if nested.Body().GetAttribute(opts.Provider) == nil {
						nested.Body().SetAttributeValue(opts.Provider, providerRequirement(opts))
						modified = true
					}
					pinnedProvider = true
				}
			}

		case "variable":
			if hasLabels(block, RegionVariable) {
				regionVarDeclared = true
			}
		}
	}

	main := source
	if modified {
		main = string(hclwrite.Format(file.Bytes()))
	}

	files := Files{
		Main:             main,
		Backend:          renderBackend(opts),
		Versions:         renderVersions(opts, !pinnedProvider, !pinnedVersion, !providerDeclared),
		ProviderDeclared: providerDeclared,
		Structural:       true,
	}
	if regionVarDeclared {
		files.TFVars = renderTFVars(opts)
	}
	return files, nil
}

// synthesizeText is the fallback for source hclwrite cannot parse. The
// provider block is located by text search and its extent is everything up to
// the first closing brace after the declaration.
func synthesizeText(source string, opts Options) Files {
	marker := fmt.Sprintf("provider %q", opts.Provider)

	main := source
	declared := false
	if idx := strings.Index(source, marker); idx >= 0 {
		declared = true

		start := idx + len(marker)
		rest := source[start:]
		block := rest
		if end := strings.Index(rest, "}"); end >= 0 {
			block = rest[:end]
		}

		if !strings.Contains(block, "region") {
			injected := strings.TrimRight(block, " \t\r\n") + fmt.Sprintf("\n  region = %q\n", opts.Region)
			main = source[:start] + injected + rest[len(block):]
		}
	}

	files := Files{
		Main:             main,
		Backend:          renderBackend(opts),
		Versions:         renderVersions(opts, true, true, !declared),
		ProviderDeclared: declared,
	}
	if strings.Contains(source, fmt.Sprintf("variable %q", RegionVariable)) {
		files.TFVars = renderTFVars(opts)
	}
	return files
}

func renderBackend(opts Options) string {
	file := hclwrite.NewEmptyFile()
	tf := file.Body().AppendNewBlock("terraform", nil)
	backend := tf.Body().AppendNewBlock("backend", []string{"s3"})
	backend.Body().SetAttributeValue("bucket", cty.StringVal(opts.Bucket))
	backend.Body().SetAttributeValue("key", cty.StringVal(opts.StateKey))
	backend.Body().SetAttributeValue("region", cty.StringVal(opts.Region))
	return string(hclwrite.Format(file.Bytes()))
}

func renderVersions(opts Options, pinProvider, pinVersion, withProvider bool) string {
	file := hclwrite.NewEmptyFile()
	body := file.Body()

	if pinProvider || pinVersion {
		tf := body.AppendNewBlock("terraform", nil)
		if pinProvider {
			required := tf.Body().AppendNewBlock("required_providers", nil)
			required.Body().SetAttributeValue(opts.Provider, providerRequirement(opts))
		}
		if pinVersion {
			tf.Body().SetAttributeValue("required_version", cty.StringVal(opts.RequiredVersion))
		}
	}

	if withProvider {
		if len(body.Blocks()) > 0 {
			body.AppendNewline()
		}
		provider := body.AppendNewBlock("provider", []string{opts.Provider})
		provider.Body().SetAttributeValue("region", cty.StringVal(opts.Region))
	}

	return string(hclwrite.Format(file.Bytes()))
}

func providerRequirement(opts Options) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"source":  cty.StringVal("hashicorp/" + opts.Provider),
		"version": cty.StringVal(opts.ProviderVersion),
	})
}

func renderTFVars(opts Options) string {
	file := hclwrite.NewEmptyFile()
	file.Body().SetAttributeValue(RegionVariable, cty.StringVal(opts.Region))
	return string(hclwrite.Format(file.Bytes()))
}

func hasLabels(block *hclwrite.Block, labels ...string) bool {
	got := block.Labels()
	if len(got) != len(labels) {
		return false
	}
	for i := range labels {
		if got[i] != labels[i] {
			return false
		}
	}
	return true
}
