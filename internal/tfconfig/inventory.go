package tfconfig

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

const (
	ModeManaged = "managed"
	ModeData    = "data"
)

// Resource is one resource or data block declared by a configuration
type Resource struct {
	Mode         string   `json:"mode"`
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	Provisioners []string `json:"provisioners,omitempty"`
}

// Address returns the resource address as terraform prints it
func (r Resource) Address() string {
	if r.Mode == ModeData {
		return "data." + r.Type + "." + r.Name
	}
	return r.Type + "." + r.Name
}

// Inventory lists the resource and data blocks in source, in declaration order
func Inventory(source string) ([]Resource, error) {
	file, diags := hclwrite.ParseConfig([]byte(source), MainFile, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("unable to parse terraform source: %s", diags.Error())
	}

	var resources []Resource
	for _, block := range file.Body().Blocks() {
		labels := block.Labels()
		if len(labels) != 2 {
			continue
		}

		var mode string
		switch block.Type() {
		case "resource":
			mode = ModeManaged
		case "data":
			mode = ModeData
		default:
			continue
		}

		resource := Resource{Mode: mode, Type: labels[0], Name: labels[1]}
		for _, nested := range block.Body().Blocks() {
			if nested.Type() == "provisioner" && len(nested.Labels()) > 0 {
				resource.Provisioners = append(resource.Provisioners, nested.Labels()[0])
			}
		}
		resources = append(resources, resource)
	}
	return resources, nil
}
