package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/mmcdole/teensyrom/internal/domain"
)

// Color palette
var (
	C64Blue   = lipgloss.Color("#7869C4")
	LightBlue = lipgloss.Color("#A7A0FF")
	DimGray   = lipgloss.Color("#6B7280")
	LightGray = lipgloss.Color("#9CA3AF")
	White     = lipgloss.Color("#F9FAFB")
	Green     = lipgloss.Color("#10B981")
	Red       = lipgloss.Color("#EF4444")
	Yellow    = lipgloss.Color("#F59E0B")
)

// Text styles
var (
	TitleStyle     = lipgloss.NewStyle().Foreground(White).Bold(true)
	DimStyle       = lipgloss.NewStyle().Foreground(DimGray)
	AccentStyle    = lipgloss.NewStyle().Foreground(LightBlue)
	ErrorStyle     = lipgloss.NewStyle().Foreground(Red)
	SuccessStyle   = lipgloss.NewStyle().Foreground(Green)
	WarnStyle      = lipgloss.NewStyle().Foreground(Yellow)
	DirectoryStyle = lipgloss.NewStyle().Foreground(C64Blue).Bold(true)
	MatchStyle     = lipgloss.NewStyle().Foreground(LightBlue).Underline(true)
	SpinnerStyle   = lipgloss.NewStyle().Foreground(C64Blue)
)

// Per-kind file styles
var kindStyles = map[domain.FileKind]lipgloss.Style{
	domain.KindSid: lipgloss.NewStyle().Foreground(Green),
	domain.KindPrg: lipgloss.NewStyle().Foreground(LightBlue),
	domain.KindCrt: lipgloss.NewStyle().Foreground(Yellow),
	domain.KindHex: lipgloss.NewStyle().Foreground(Red),
}

// SpinnerFrames for progress animation
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// clearLine clears the spinner line from the terminal
const clearLine = "\r\033[K"

// printer renders command output, styled only when writing to a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, styled: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) Println(a ...any) { fmt.Fprintln(p.w, a...) }

func (p *printer) Printf(format string, a ...any) { fmt.Fprintf(p.w, format, a...) }

func (p *printer) Success(format string, a ...any) {
	p.Println(p.render(SuccessStyle, "✓ "+fmt.Sprintf(format, a...)))
}

func (p *printer) Warn(format string, a ...any) {
	p.Println(p.render(WarnStyle, "! "+fmt.Sprintf(format, a...)))
}

// Listing prints a cached directory: folders first, then files with sizes.
func (p *printer) Listing(node domain.CacheNode) {
	p.Println(p.render(TitleStyle, "/"+node.Path))
	for _, d := range node.Directories {
		p.Println("  " + p.render(DirectoryStyle, d.Name+"/"))
	}
	for _, f := range node.Files {
		p.Println("  " + p.fileName(f) + "  " + p.render(DimStyle, humanize.Bytes(uint64(f.Size))))
	}
	if len(node.Directories) == 0 && len(node.Files) == 0 {
		p.Println(p.render(DimStyle, "  (empty)"))
	}
}

func (p *printer) fileName(f domain.FileEntry) string {
	style, ok := kindStyles[f.Kind]
	if !ok {
		return f.Name
	}
	return p.render(style, f.Name)
}

// Highlight renders name with the bytes at positions emphasised.
func (p *printer) Highlight(name string, positions []int) string {
	if !p.styled || len(positions) == 0 {
		return name
	}
	hit := make(map[int]bool, len(positions))
	for _, i := range positions {
		hit[i] = true
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if hit[i] {
			b.WriteString(MatchStyle.Render(string(name[i])))
		} else {
			b.WriteByte(name[i])
		}
	}
	return b.String()
}

// spinner animates a status line on a terminal. On anything else it stays
// silent and only the final output is printed.
type spinner struct {
	w       io.Writer
	enabled bool

	mu    sync.Mutex
	label string

	stop chan struct{}
	done chan struct{}
}

func startSpinner(w io.Writer, label string) *spinner {
	s := &spinner{w: w, enabled: isTerminal(w), label: label, stop: make(chan struct{}), done: make(chan struct{})}
	if !s.enabled {
		close(s.done)
		return s
	}
	go s.loop()
	return s
}

func (s *spinner) loop() {
	defer close(s.done)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	frame := 0
	for {
		s.mu.Lock()
		label := s.label
		s.mu.Unlock()
		fmt.Fprintf(s.w, "%s%s %s", clearLine, SpinnerStyle.Render(SpinnerFrames[frame%len(SpinnerFrames)]), label)

		select {
		case <-s.stop:
			fmt.Fprint(s.w, clearLine)
			return
		case <-ticker.C:
			frame++
		}
	}
}

func (s *spinner) Update(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

func (s *spinner) Stop() {
	if s.enabled {
		select {
		case <-s.stop:
		default:
			close(s.stop)
		}
	}
	<-s.done
}
