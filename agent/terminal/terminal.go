package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/agent"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/pipeline"
	"github.com/charmbracelet/lipgloss"
)

// Verbosity controls how much of the tool traffic is displayed.
type Verbosity string

const (
	VerbosityNone Verbosity = "none"
	VerbosityInfo Verbosity = "info"
	VerbosityAll  Verbosity = "all"
)

// ParseVerbosity maps a config or flag value to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch v := Verbosity(strings.ToLower(strings.TrimSpace(s))); v {
	case VerbosityNone, VerbosityInfo, VerbosityAll:
		return v, nil
	case "":
		return VerbosityNone, nil
	}
	return "", errors.Categorize(errors.CategoryConfig, nil, "invalid tool verbosity %q, must be none, info or all", s)
}

const assistantLabel = "Keystone"

type line struct {
	text string
	err  error
}

type styles struct {
	assistant lipgloss.Style
	info      lipgloss.Style
	err       lipgloss.Style
	tool      lipgloss.Style
	muted     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		assistant: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		info:      r.NewStyle().Foreground(lipgloss.Color("8")),
		err:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		tool:      r.NewStyle().Foreground(lipgloss.Color("11")),
		muted:     r.NewStyle().Faint(true),
	}
}

// Terminal is the interactive operator console. It implements agent.UI and
// tools.Confirmer.
type Terminal struct {
	in         io.Reader
	out        io.Writer
	verbosity  Verbosity
	style      styles
	lines      chan line
	interrupts chan struct{}
	start      sync.Once
	mu         sync.Mutex
}

// New returns a console reading from in and writing to out. Styling is
// enabled only when out is a terminal.
func New(in io.Reader, out io.Writer, verbosity Verbosity) *Terminal {
	return &Terminal{
		in:         in,
		out:        out,
		verbosity:  verbosity,
		style:      newStyles(lipgloss.NewRenderer(out)),
		lines:      make(chan line),
		interrupts: make(chan struct{}, 1),
	}
}

// Interrupt makes a pending read return agent.ErrInterrupted. An interrupt
// with no read pending is dropped when the next read starts. It is safe to
// call from a signal handler goroutine.
func (t *Terminal) Interrupt() {
	select {
	case t.interrupts <- struct{}{}:
	default:
	}
}

// readLoop forwards input lines until the reader is exhausted.
func (t *Terminal) readLoop() {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		t.lines <- line{text: scanner.Text()}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	t.lines <- line{err: err}
	close(t.lines)
}

func (t *Terminal) read(ctx context.Context) (string, error) {
	t.start.Do(func() { go t.readLoop() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.interrupts:
		t.println("")
		return "", agent.ErrInterrupted
	case l, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	}
}

// drainInterrupts discards an interrupt that arrived while nothing was being
// read, such as a Ctrl-C during a model call.
func (t *Terminal) drainInterrupts() {
	select {
	case <-t.interrupts:
	default:
	}
}

// ReadLine shows prompt and waits for the next line.
func (t *Terminal) ReadLine(ctx context.Context, prompt string) (string, error) {
	t.drainInterrupts()
	t.print(prompt)
	return t.read(ctx)
}

// Confirm asks the operator whether req may run. Anything but y or yes
// declines, as does an interrupt or the end of input.
func (t *Terminal) Confirm(ctx context.Context, req pipeline.Request) (bool, error) {
	t.drainInterrupts()
	t.println(t.style.tool.Render(fmt.Sprintf("%s wants to call tool `%s`", assistantLabel, req.ToolName)))
	t.println(t.style.muted.Render("  Arguments: " + formatArgs(req.Parameters)))
	t.println(t.style.muted.Render("  Justification: " + req.Justification))
	t.print("Do you want to allow this? (y/n): ")

	answer, err := t.read(ctx)
	switch {
	case err == nil:
	case errors.Is(err, agent.ErrInterrupted), errors.Is(err, io.EOF):
		return false, nil
	default:
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (t *Terminal) AssistantMessage(text string) {
	t.println(t.style.assistant.Render(assistantLabel+":") + " " + text)
}

func (t *Terminal) Info(text string) {
	t.println(t.style.info.Render(text))
}

func (t *Terminal) Error(category errors.Category, message string) {
	t.println(t.style.err.Render(string(category)+":") + " " + message)
}

func (t *Terminal) ToolCall(req pipeline.Request) {
	switch t.verbosity {
	case VerbosityInfo:
		t.println(t.style.tool.Render(fmt.Sprintf("Calling tool `%s`", req.ToolName)))
	case VerbosityAll:
		t.println(t.style.tool.Render(fmt.Sprintf("Calling tool `%s` with args: %s", req.ToolName, formatArgs(req.Parameters))))
		t.println(t.style.muted.Render("  Justification: " + req.Justification))
	}
}

func (t *Terminal) ToolResult(res pipeline.Result) {
	switch t.verbosity {
	case VerbosityInfo:
		t.println(t.style.tool.Render(fmt.Sprintf("Tool `%s` finished: %s", res.ToolName, res.Status)))
	case VerbosityAll:
		content, _ := pipeline.FormatAsEntry(res)
		t.println(t.style.tool.Render(fmt.Sprintf("Tool `%s` (%s) output:", res.ToolName, res.Status)))
		t.println(content)
	}
}

func (t *Terminal) print(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, s)
}

func (t *Terminal) println(s string) {
	t.print(s + "\n")
}

func formatArgs(args map[string]any) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(encoded)
}
