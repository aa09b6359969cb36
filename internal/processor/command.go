package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

const (
	stderrTail = 500
	// waitDelay bounds how long a killed tool's children may hold its pipes.
	waitDelay = 5 * time.Second
)

// runCommand runs name to completion. A cancelled context kills the process.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	line := commandLine(name, args)
	tool := filepath.Base(name)

	if err := ctx.Err(); err != nil {
		return "", &joberror.Error{Kind: models.KindToolExecutionFailed, Op: tool, Command: line, Detail: "not started", Err: err}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return "", &joberror.Error{
			Kind:    models.KindToolMissing,
			Op:      tool,
			Command: line,
			Detail:  fmt.Sprintf("%s not found", name),
			Err:     err,
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		detail := "cancelled"
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			detail = "operation timed out"
		}
		return "", &joberror.Error{Kind: models.KindToolExecutionFailed, Op: tool, Command: line, Detail: detail, Err: ctxErr}
	}

	errOutput := strings.TrimSpace(stderr.String())
	if errOutput == "" {
		errOutput = strings.TrimSpace(stdout.String())
	}
	if len(errOutput) > stderrTail {
		errOutput = "..." + errOutput[len(errOutput)-stderrTail:]
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}

	detail := fmt.Sprintf("`%s` exited with code %d", line, code)
	if errOutput != "" {
		detail += ": " + errOutput
	}
	return "", &joberror.Error{
		Kind:    models.KindToolExecutionFailed,
		Op:      tool,
		Command: line,
		Detail:  detail,
	}
}

func commandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(name))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\"'") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
