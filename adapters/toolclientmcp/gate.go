package toolclientmcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"agentruntime/agent"
	"agentruntime/policy/shellapproval"
	"agentruntime/ports"
)

// ShellCommandPolicy decides whether a shell command may run without an
// explicit human approval.
type ShellCommandPolicy interface {
	Validate(command string) error
}

// ShellToolName is the client-delegated tool name this gate inspects;
// requests for any other tool pass through untouched.
const ShellToolName = "shell_exec"

// Gated wraps a ports.ToolClientPort and requires approval for ShellToolName
// calls that policy denies, suspending the run with a PendingRequirement
// instead of forwarding the call. A resumed run carries an
// agent.ApprovedToolCallReplayOverride matching the same fingerprint, which
// lets the retried call through without re-suspending.
type Gated struct {
	inner  ports.ToolClientPort
	policy ShellCommandPolicy
}

var _ ports.ToolClientPort = (*Gated)(nil)

// NewGated builds a Gated client-delegated tool port around inner.
func NewGated(inner ports.ToolClientPort, policy ShellCommandPolicy) *Gated {
	return &Gated{inner: inner, policy: policy}
}

// Request forwards to inner unless toolName is ShellToolName and the
// command fails policy, in which case it returns a *agent.SuspendRequestError
// carrying the PendingRequirement that must be resolved before the command
// can run.
func (g *Gated) Request(ctx context.Context, toolName string, input map[string]any, runCtx agent.RunContext) (agent.ToolOutput, error) {
	if toolName != ShellToolName {
		return g.inner.Request(ctx, toolName, input, runCtx)
	}

	command, _ := input["command"].(string)
	if err := g.policy.Validate(command); errors.Is(err, shellapproval.ErrCommandDenied) {
		fingerprint := shellApprovalFingerprint(runCtx.RunID, command)
		if !shellReplayApproved(ctx, fingerprint) {
			return nil, &agent.SuspendRequestError{
				Requirement: &agent.PendingRequirement{
					ID:          fmt.Sprintf("req-shell-policy-%s", fingerprint[:12]),
					Kind:        agent.RequirementKindApproval,
					Origin:      agent.RequirementOriginTool,
					Fingerprint: fingerprint,
					Prompt:      fmt.Sprintf("approve shell command %q denied by policy", strings.TrimSpace(command)),
				},
				Err: err,
			}
		}
	}

	return g.inner.Request(ctx, toolName, input, runCtx)
}

func shellApprovalFingerprint(runID agent.RunID, command string) string {
	sum := sha256.Sum256([]byte(string(runID) + "\n" + strings.TrimSpace(command)))
	return hex.EncodeToString(sum[:])
}

func shellReplayApproved(ctx context.Context, fingerprint string) bool {
	override, ok := agent.ApprovedToolCallReplayOverrideFromContext(ctx)
	if !ok {
		return false
	}
	return override.Fingerprint == fingerprint
}
