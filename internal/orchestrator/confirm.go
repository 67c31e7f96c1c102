package orchestrator

import (
	"errors"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNonInteractive reports that a destructive change needed confirmation
// but no terminal is attached and --yes was not passed.
var ErrNonInteractive = errors.New("confirmation required but not running interactively (use --yes to approve)")

// Confirmer answers a destructive-change confirmation prompt.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// AutoApprove confirms everything. Used for --yes and for unattended
// schedulers that accept the declared state as authoritative.
type AutoApprove struct{}

// Confirm implements Confirmer.
func (AutoApprove) Confirm(string) (bool, error) {
	return true, nil
}

// Interactive prompts on the terminal and refuses to guess when there is
// no terminal to ask.
type Interactive struct{}

// Confirm implements Confirmer.
func (Interactive) Confirm(prompt string) (bool, error) {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false, ErrNonInteractive
	}

	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Apply").
			Negative("Cancel").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
