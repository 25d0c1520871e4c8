package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/artifacts"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/savaki/tf-provisioner/internal/executor"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

// memStore is an in-memory ArtifactStore
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string
	putErr  map[string]error
	onPut   func(key string)
}

func newMemStore() *memStore {
	return &memStore{
		objects: map[string][]byte{},
		putErr:  map[string]error{},
	}
}

func (m *memStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.putErr[key]; err != nil {
		return err
	}
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	m.puts = append(m.puts, key)
	if m.onPut != nil {
		m.onPut(key)
	}
	return nil
}

func (m *memStore) PutFile(ctx context.Context, bucket, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.Put(ctx, bucket, key, data)
}

func (m *memStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tferrors.ErrArtifactNotFound, artifacts.URI(bucket, key))
	}
	return data, nil
}

func (m *memStore) object(bucket, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	return string(data), ok
}

type fakeGenerator struct {
	text     string
	err      error
	requests []string
}

func (f *fakeGenerator) Generate(ctx context.Context, request string) (string, error) {
	f.requests = append(f.requests, request)
	return f.text, f.err
}

type notification struct {
	subject string
	message string
}

type recordingNotifier struct {
	sent []notification
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, subject, message string) error {
	r.sent = append(r.sent, notification{subject: subject, message: message})
	return r.err
}

type recordingRecorder struct {
	states []string
	err    error
}

func (r *recordingRecorder) Record(ctx context.Context, requestID, state, message string) error {
	r.states = append(r.states, state)
	return r.err
}

// fakeTerraform is a shell script standing in for the terraform binary. Each
// invocation appends its subcommand to calls and init copies the sandbox *.tf
// files into captured.
type fakeTerraform struct {
	path     string
	calls    string
	captured string
}

const fakeTerraformScript = `#!/bin/sh
echo "$1" >> %[1]q
case "$1" in
  init)
    cp ./*.tf %[2]q/ 2>/dev/null
    [ -f terraform.tfvars ] && cp terraform.tfvars %[2]q/
    echo "Terraform has been successfully initialized!"
    %[3]s
    ;;
  plan)
    echo "plan-bytes" > tfplan
    echo "Plan: 1 to add, 0 to change, 0 to destroy."
    %[4]s
    ;;
  apply)
    %[5]s
    echo "Apply complete! Resources: 1 added, 0 changed, 0 destroyed."
    ;;
  output)
    %[6]s
    echo '{"bucket_name":{"sensitive":false,"type":"string","value":"demo"}}'
    ;;
esac
`

// scriptHooks are shell snippets spliced into each subcommand
type scriptHooks struct {
	init   string
	plan   string
	apply  string
	output string
}

func newFakeTerraform(t *testing.T, hooks scriptHooks) *fakeTerraform {
	t.Helper()

	dir := t.TempDir()
	fake := &fakeTerraform{
		path:     filepath.Join(dir, "bin", executor.BinaryName),
		calls:    filepath.Join(dir, "calls.log"),
		captured: filepath.Join(dir, "captured"),
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(fake.path), 0o755))
	require.NoError(t, os.MkdirAll(fake.captured, 0o755))

	script := fmt.Sprintf(fakeTerraformScript, fake.calls, fake.captured, hooks.init, hooks.plan, hooks.apply, hooks.output)
	require.NoError(t, os.WriteFile(fake.path, []byte(script), 0o755))
	return fake
}

// record appends a marker line to the calls log so uploads can be ordered
// against subcommands
func (f *fakeTerraform) record(line string) {
	file, err := os.OpenFile(f.calls, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line + "\n")
}

func (f *fakeTerraform) invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.calls)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func (f *fakeTerraform) file(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.captured, name))
	require.NoError(t, err)
	return string(data)
}

type fixture struct {
	store      *memStore
	generator  *fakeGenerator
	notifier   *recordingNotifier
	recorder   *recordingRecorder
	terraform  *fakeTerraform
	sandboxDir string
	pipeline   *Pipeline
}

const testBucket = "state-bucket"

const wellFormedSource = "```hcl\n" + `provider "aws" {
  profile = "default"
}

resource "aws_s3_bucket" "demo" {
  bucket = "demo"
}

output "bucket_name" {
  value = aws_s3_bucket.demo.bucket
}
` + "```"

func newFixture(t *testing.T, hooks scriptHooks, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		store:      newMemStore(),
		generator:  &fakeGenerator{text: wellFormedSource},
		notifier:   &recordingNotifier{},
		recorder:   &recordingRecorder{},
		terraform:  newFakeTerraform(t, hooks),
		sandboxDir: t.TempDir(),
	}
	f.store.onPut = func(key string) {
		f.terraform.record("put:" + key)
	}

	opts = append([]Option{
		WithRecorder(f.recorder),
		WithIDGenerator(func() string { return "2HFj3kLmNoPqRsTuVwXy" }),
	}, opts...)

	f.pipeline = New(f.store, f.generator, f.notifier, Config{
		Bucket:      testBucket,
		Region:      "us-east-1",
		SandboxRoot: f.sandboxDir,
		Executor: executor.Config{
			BinaryPath: f.terraform.path,
			SearchRoot: t.TempDir(),
			BaseEnv:    os.Environ(),
		},
	}, opts...)
	return f
}

// sandboxes lists whatever remains under the sandbox root
func (f *fixture) sandboxes(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.sandboxDir)
	require.NoError(t, err)
	return entries
}
