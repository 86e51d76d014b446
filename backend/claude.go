// claude_code backend - subprocess invocation of the claude-code binary.
//
// Information Hiding:
// - Scratch-file naming and cleanup internal
// - Output bounding and timeout handling internal
// - Cost-marker parsing internal
package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
)

const (
	claudeTimeout   = 10 * time.Minute
	claudeOutputCap = 10 * 1024 * 1024
)

var costMarker = regexp.MustCompile(`Cost: \$(\d+\.\d+)`)

func (d *Dispatcher) executeClaudeCode(ctx context.Context, op model.Operation, agent model.Agent, contextText string) (model.OperationResult, error) {
	start := time.Now()

	prompt := fmt.Sprintf("%s\n\nContext:\n%s\n\nTask: %s", agent.BasePrompt, contextText, op.Task)

	scratch := filepath.Join(os.TempDir(), fmt.Sprintf("claude-%s-%s.txt", op.ID, uuid.NewString()))
	if err := os.WriteFile(scratch, []byte(prompt), 0600); err != nil {
		return model.OperationResult{}, fault.Backend(fmt.Errorf("write prompt file: %w", err))
	}
	// The scratch file must go away on every exit path.
	defer os.Remove(scratch)

	ctx, cancel := context.WithTimeout(ctx, claudeTimeout)
	defer cancel()

	projectPath := filepath.Join(d.cfg.ProjectsPath, op.ProjectID)
	cmd := exec.CommandContext(ctx, d.cfg.ClaudeCodePath, "--file", scratch, "--project", projectPath)

	stdout := newBoundedBuffer(claudeOutputCap)
	stderr := newBoundedBuffer(64 * 1024)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	d.events.AgentOutput(op.AgentID, op.ID, fmt.Sprintf("Executing: %s\n", cmd.String()), false)

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return model.OperationResult{}, fault.Backendf("claude_code timed out after %s", claudeTimeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return model.OperationResult{}, fault.Backendf("claude_code exited with code %d: %s",
				exitErr.ExitCode(), stderr.String())
		}
		return model.OperationResult{}, fault.Backend(fmt.Errorf("run claude_code: %w", err))
	}

	output := stdout.String()
	d.events.AgentOutput(op.AgentID, op.ID, output, true)

	cost := parseClaudeCost(output)
	if cost == 0 {
		cost = op.CostEstimate
	}

	return model.OperationResult{
		Output:   output,
		Cost:     cost,
		Duration: durationSince(op, start),
	}, nil
}

// parseClaudeCost extracts the optional cost marker from subprocess output.
// Returns zero when no marker is present.
func parseClaudeCost(output string) model.Cents {
	match := costMarker.FindStringSubmatch(output)
	if match == nil {
		return 0
	}
	dollars, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	return model.Cents(dollars*100 + 0.5)
}

// boundedBuffer retains the first cap bytes written and silently discards
// the rest, bounding subprocess output without failing the write.
type boundedBuffer struct {
	cap int
	buf []byte
}

func newBoundedBuffer(capBytes int) *boundedBuffer {
	return &boundedBuffer{cap: capBytes}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if remaining := b.cap - len(b.buf); remaining > 0 {
		if len(p) > remaining {
			b.buf = append(b.buf, p[:remaining]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	return string(b.buf)
}
