package artifacts

import "fmt"

// Key layout, all scoped by request id.
const (
	SourceFile     = "main.tf"
	PlanFile       = "tfplan"
	ApplyLogFile   = "apply_output.txt"
	OutputsFile    = "outputs.json"
	ValidationFile = "validation_result.json"
	StateFile      = "terraform.tfstate"
)

// SourceKey is where Convert stores the generated Terraform source
func SourceKey(requestID string) string {
	return fmt.Sprintf("terraform_code/%s/%s", requestID, SourceFile)
}

// ValidationKey is where Validate stores its result document
func ValidationKey(requestID string) string {
	return fmt.Sprintf("terraform_validation/%s/%s", requestID, ValidationFile)
}

// PlanKey is where Apply uploads the saved plan
func PlanKey(requestID string) string {
	return fmt.Sprintf("terraform_plans/%s/%s", requestID, PlanFile)
}

// ApplyLogKey is where Apply stores the captured apply output
func ApplyLogKey(requestID string) string {
	return fmt.Sprintf("terraform_output/%s/%s", requestID, ApplyLogFile)
}

// OutputsKey is where Apply stores `terraform output -json`
func OutputsKey(requestID string) string {
	return fmt.Sprintf("terraform_output/%s/%s", requestID, OutputsFile)
}

// StateKey is the remote backend state location for a request
func StateKey(requestID string) string {
	return fmt.Sprintf("terraform_state/%s/%s", requestID, StateFile)
}

// URI renders bucket and key as an s3:// location for logs and notifications
func URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
