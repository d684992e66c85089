package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
)

// Ensure Console implements the reporter port.
var _ driven.Reporter = (*Console)(nil)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

// Console prints one prefixed line per call. Lines from concurrent workers
// never interleave.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	styled bool
}

// NewConsole creates a console writing to out. Prefixes are coloured only
// when out is a terminal.
func NewConsole(out io.Writer) *Console {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &Console{out: out, styled: styled}
}

// Success prints a [+] line.
func (c *Console) Success(format string, args ...any) {
	c.print(successStyle, "[+]", format, args...)
}

// Warn prints a [-] line.
func (c *Console) Warn(format string, args ...any) {
	c.print(warnStyle, "[-]", format, args...)
}

// Info prints a [~] line.
func (c *Console) Info(format string, args ...any) {
	c.print(infoStyle, "[~]", format, args...)
}

func (c *Console) print(style lipgloss.Style, prefix, format string, args ...any) {
	if c.styled {
		prefix = style.Render(prefix)
	}
	line := prefix + " " + fmt.Sprintf(format, args...) + "\n"

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, line)
}
