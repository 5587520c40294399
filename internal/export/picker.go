package export

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ErrNoDirectory means the user declined the directory prompt.
var ErrNoDirectory = errors.New("no directory selected")

// DirectoryPicker prompts the user for an output directory. An empty
// path with a nil error means the user declined.
type DirectoryPicker interface {
	Pick(ctx context.Context) (string, error)
}

// dialogTool is one desktop dialog binary and its directory-picker
// arguments.
type dialogTool struct {
	bin  string
	args []string
}

var dialogTools = []dialogTool{
	{bin: "zenity", args: []string{"--file-selection", "--directory", "--title=Choose export directory"}},
	{bin: "kdialog", args: []string{"--getexistingdirectory", "."}},
}

// DialogPicker shells out to the first available desktop dialog tool.
type DialogPicker struct {
	log *zap.Logger
}

func NewDialogPicker(log *zap.Logger) *DialogPicker {
	return &DialogPicker{log: log}
}

func (p *DialogPicker) Pick(ctx context.Context) (string, error) {
	for _, tool := range dialogTools {
		path, err := exec.LookPath(tool.bin)
		if err != nil {
			continue
		}

		out, err := exec.CommandContext(ctx, path, tool.args...).Output()
		if err != nil {
			// Dialog tools exit nonzero when the user cancels.
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				p.log.Debug("directory dialog cancelled", zap.String("tool", tool.bin))
				return "", nil
			}
			return "", fmt.Errorf("run %s: %w", tool.bin, err)
		}
		return strings.TrimSpace(string(out)), nil
	}
	return "", errors.New("no directory dialog tool available")
}
