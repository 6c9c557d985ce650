package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// runExternal archives the staged files with the system tar or zip binary.
// The run is bounded by the assembler timeout; expiry is a construction error.
func (a *Assembler) runExternal(ctx context.Context, spec Spec, stageDir, out string) error {
	names := make([]string, 0, len(spec.Entries))
	for _, e := range spec.Entries {
		names = append(names, e.Name)
	}

	var bin string
	var args []string
	switch spec.Format {
	case FormatZip:
		bin = a.zipPath
		args = append([]string{"-q", "-X", out}, names...)
	case FormatTarGz:
		bin = a.tarPath
		args = append([]string{"-czf", out}, names...)
	default:
		return fmt.Errorf("unsupported archive format %q", spec.Format)
	}

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Dir = stageDir
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s: %w", bin, a.timeout, context.DeadlineExceeded)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %w: %s", bin, err, msg)
		}
		return fmt.Errorf("%s failed: %w", bin, err)
	}
	return nil
}
