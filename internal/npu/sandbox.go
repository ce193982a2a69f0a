package npu

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
)

// Sandbox executes one node's code against its inputs and returns its
// outputs plus any log lines produced. Process isolation, temp-file
// handling, and child-process timeouts are this interface's business, not
// the worker's (spec.md §3 Non-goals) -- the worker only needs something
// that satisfies this contract.
type Sandbox interface {
	Execute(ctx context.Context, code string, inputs map[string]interface{}) (flowtypes.Outputs, []string, error)
}

// LocalSandbox is the default Sandbox: it base64-decodes the node's code to
// a shell script, runs it in a subprocess with inputs passed as a JSON
// environment variable, and expects the script's final stdout line to be a
// JSON-encoded Outputs. Every other stdout/stderr line becomes a log entry.
type LocalSandbox struct{}

// NewLocalSandbox builds the default Sandbox.
func NewLocalSandbox() *LocalSandbox {
	return &LocalSandbox{}
}

// Execute runs code as a shell script.
func (s *LocalSandbox) Execute(ctx context.Context, code string, inputs map[string]interface{}) (flowtypes.Outputs, []string, error) {
	script, err := base64.StdEncoding.DecodeString(code)
	if err != nil {
		return flowtypes.Outputs{}, nil, err
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return flowtypes.Outputs{}, nil, err
	}

	tmp, err := os.CreateTemp("", "flowkit-node-*.sh")
	if err != nil {
		return flowtypes.Outputs{}, nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(script); err != nil {
		tmp.Close()
		return flowtypes.Outputs{}, nil, err
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, "sh", tmp.Name())
	cmd.Env = append(os.Environ(), "FLOWKIT_INPUTS="+string(inputsJSON))
	out, runErr := cmd.CombinedOutput()

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return flowtypes.Outputs{}, nil, runErr
	}

	last := lines[len(lines)-1]
	logs := lines[:len(lines)-1]

	var outputs flowtypes.Outputs
	if jsonErr := json.Unmarshal([]byte(last), &outputs); jsonErr != nil {
		logs = append(logs, last)
		return flowtypes.Outputs{}, logs, runErr
	}
	return outputs, logs, runErr
}
