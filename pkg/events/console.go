package events

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// ConsoleObserver renders events as colored terminal lines.
type ConsoleObserver struct {
	out     io.Writer
	verbose bool

	stage   *color.Color
	success *color.Color
	failure *color.Color
	info    *color.Color
}

// NewConsoleObserver writes colored event lines to out. When verbose is
// false, per-post events are suppressed.
func NewConsoleObserver(out io.Writer, verbose bool) *ConsoleObserver {
	return &ConsoleObserver{
		out:     out,
		verbose: verbose,
		stage:   color.New(color.FgCyan, color.Bold),
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed, color.Bold),
		info:    color.New(color.FgWhite),
	}
}

// Attach subscribes the observer to all bus events.
func (c *ConsoleObserver) Attach(bus *Bus) func() {
	return bus.Subscribe("*", c.OnEvent)
}

// OnEvent renders one envelope.
func (c *ConsoleObserver) OnEvent(env Envelope) {
	switch p := env.Payload.(type) {
	case StageStarted:
		c.stage.Fprintf(c.out, "==> %s\n", p.Name)
	case StageCompleted:
		c.success.Fprintf(c.out, "    %s done in %s (%d processed, %d failed)\n",
			p.Name, p.Duration.Round(time.Millisecond), p.Processed, p.Failed)
	case StageFailed:
		c.failure.Fprintf(c.out, "    %s FAILED after %s: %s\n",
			p.Name, p.Duration.Round(time.Millisecond), p.Error)
	case PostDiscovered:
		c.info.Fprintf(c.out, "    %s: %d posts\n", p.Target, p.Count)
		if c.verbose {
			for _, title := range p.Preview {
				fmt.Fprintf(c.out, "      - %s\n", title)
			}
		}
	case PostProcessed:
		if c.verbose {
			mark := c.success
			if !p.Success {
				mark = c.failure
			}
			mark.Fprintf(c.out, "    [%s] %s (%d files)\n", p.Handler, p.PostID, p.Files)
		}
	case ErrorOccurred:
		if p.Recoverable && !c.verbose {
			return
		}
		c.failure.Fprintf(c.out, "    error (%s): %s\n", p.Kind, p.Message)
	}
}
