package toolexec

import (
	"context"
	"io"
)

// Recorder is a Runner that records commands instead of running them.
// Handler, when set, decides each command's outcome.
type Recorder struct {
	Commands []Command
	Handler  func(cmd Command) error
}

func (r *Recorder) Run(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Commands = append(r.Commands, cmd)
	if r.Handler == nil {
		return nil
	}
	return r.Handler(cmd)
}

// Names returns the executable of every recorded command.
func (r *Recorder) Names() []string {
	var names []string
	for _, c := range r.Commands {
		names = append(names, c.Name)
	}
	return names
}

// Reply writes s to the command's stdout, for faking --version probes.
func Reply(cmd Command, s string) error {
	if cmd.Stdout == nil {
		return nil
	}
	_, err := io.WriteString(cmd.Stdout, s)
	return err
}
