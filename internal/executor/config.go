// Package executor runs the Terraform CLI inside a per-request sandbox with a
// deterministic environment and a hard wall-clock ceiling per command.
package executor

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	BinaryName         = "terraform"
	DefaultBinaryPath  = "/opt/bin/" + BinaryName
	DefaultSearchRoot  = "/opt"
	DefaultSearchDepth = 4
	DefaultRegion      = "us-east-1"
	DefaultTimeout     = 13 * time.Minute
)

// passthrough lists the variables copied from BaseEnv. Everything else in
// BaseEnv is dropped.
var passthrough = map[string]struct{}{
	"AWS_ACCESS_KEY_ID":                      {},
	"AWS_SECRET_ACCESS_KEY":                  {},
	"AWS_SESSION_TOKEN":                      {},
	"AWS_CONTAINER_CREDENTIALS_FULL_URI":     {},
	"AWS_CONTAINER_CREDENTIALS_RELATIVE_URI": {},
	"AWS_CONTAINER_AUTHORIZATION_TOKEN":      {},
	"AWS_WEB_IDENTITY_TOKEN_FILE":            {},
	"AWS_ROLE_ARN":                           {},
	"AWS_ROLE_SESSION_NAME":                  {},
	"HOME":                                   {},
	"TMPDIR":                                 {},
	"HTTP_PROXY":                             {},
	"HTTPS_PROXY":                            {},
	"NO_PROXY":                               {},
	"http_proxy":                             {},
	"https_proxy":                            {},
	"no_proxy":                               {},
	"SSL_CERT_FILE":                          {},
	"SSL_CERT_DIR":                           {},
	"TF_LOG":                                 {},
	"TF_PLUGIN_CACHE_DIR":                    {},
}

// Config is immutable once built; every command started through it sees the
// same environment.
type Config struct {
	BinaryPath  string        // Known install location of the terraform binary
	SearchRoot  string        // Root searched when BinaryPath does not exist
	SearchDepth int           // Maximum directory depth below SearchRoot
	Region      string        // Forced through AWS_REGION and AWS_DEFAULT_REGION
	Timeout     time.Duration // Ceiling per command
	BaseEnv     []string      // Usually os.Environ(); filtered through an allowlist
}

// WithDefaults fills unset fields
func (c Config) WithDefaults() Config {
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultBinaryPath
	}
	if c.SearchRoot == "" {
		c.SearchRoot = DefaultSearchRoot
	}
	if c.SearchDepth <= 0 {
		c.SearchDepth = DefaultSearchDepth
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Environ returns the sorted KEY=VALUE environment for commands run with
// scratch as the staged binary directory and workdir as the sandbox root.
func (c Config) Environ(scratch, workdir string) []string {
	env := map[string]string{}
	for _, kv := range c.BaseEnv {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, allowed := passthrough[key]; allowed || strings.HasPrefix(key, "TF_VAR_") {
			env[key] = value
		}
	}

	path := scratch
	if base := lookup(c.BaseEnv, "PATH"); base != "" {
		path = scratch + string(filepath.ListSeparator) + base
	}

	if _, ok := env["HOME"]; !ok {
		env["HOME"] = workdir
	}
	env["PATH"] = path
	env["TF_IN_AUTOMATION"] = "true"
	env["TF_INPUT"] = "0"
	env["AWS_REGION"] = c.Region
	env["AWS_DEFAULT_REGION"] = c.Region
	env["AWS_CONFIG_FILE"] = filepath.Join(workdir, AWSConfigFile)

	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	environ := make([]string, 0, len(keys))
	for _, key := range keys {
		environ = append(environ, key+"="+env[key])
	}
	return environ
}

func lookup(environ []string, key string) string {
	var found string
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			found = v
		}
	}
	return found
}
