package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Falls back to false for
// plain io.Writer values such as *bytes.Buffer.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// ProgressBar displays transfer progress in bytes.
// Example: [=========>          ]  45% 12 MB/27 MB Downloading acme/widget
//
// It is an io.Writer: every byte written counts as transferred, so it can
// sit on one side of an io.MultiWriter or io.TeeReader.
type ProgressBar struct {
	total       int64
	current     int64
	description string
	width       int
	mu          sync.Mutex
	writer      io.Writer
	lastDraw    time.Time
}

// NewProgress creates a progress bar for a transfer of total bytes. A total
// of zero or less means the size is unknown and only the byte count is shown.
func NewProgress(total int64, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		description: description,
		width:       30,
		writer:      os.Stderr,
	}
}

// SetWidth sets the width of the bar in characters.
func (p *ProgressBar) SetWidth(width int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width = width
}

// SetWriter sets the output writer (useful for testing).
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// Write records len(b) transferred bytes and redraws the bar.
func (p *ProgressBar) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current += int64(len(b))
	if p.total > 0 && p.current > p.total {
		p.current = p.total
	}

	// Redrawing on every chunk floods slow terminals.
	if time.Since(p.lastDraw) >= 100*time.Millisecond {
		p.lastDraw = time.Now()
		p.render(false)
	}
	return len(b), nil
}

// Finish draws the final state and moves to a new line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.render(true)
	if writerIsTTY(p.writer) {
		fmt.Fprintln(p.writer)
	}
}

// render draws the bar (must be called with lock held). Off a TTY only the
// final state is written, on its own line.
func (p *ProgressBar) render(final bool) {
	tty := writerIsTTY(p.writer)
	if !tty && !final {
		return
	}

	var line string
	if p.total > 0 {
		percentage := (p.current * 100) / p.total
		filled := int((p.current * int64(p.width)) / p.total)

		bar := strings.Builder{}
		bar.WriteString("[")
		for i := 0; i < p.width; i++ {
			switch {
			case i < filled-1:
				bar.WriteString("=")
			case i == filled-1:
				bar.WriteString(">")
			default:
				bar.WriteString(" ")
			}
		}
		bar.WriteString("]")

		line = fmt.Sprintf("%s %3d%% %s/%s %s", bar.String(), percentage,
			FormatSize(p.current), FormatSize(p.total), p.description)
	} else {
		line = fmt.Sprintf("%s %s", FormatSize(p.current), p.description)
	}

	if tty {
		fmt.Fprintf(p.writer, "\r%s", line)
	} else {
		fmt.Fprintln(p.writer, line)
	}
}

// Spinner displays an animated spinner with a message while waiting on the
// registry.
// Example: |  Resolving acme/widget (3s elapsed)
type Spinner struct {
	message   string
	running   bool
	chars     []string
	mu        sync.Mutex
	writer    io.Writer
	ticker    *time.Ticker
	done      chan struct{}
	startTime time.Time
}

// NewSpinner creates a spinner writing to stderr.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		chars:   []string{"|", "/", "-", "\\"},
		writer:  os.Stderr,
		done:    make(chan struct{}),
	}
}

// SetWriter sets the output writer (useful for testing).
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation. Off a TTY the message is printed once and no
// goroutine is started.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.startTime = time.Now()

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	s.ticker = time.NewTicker(100 * time.Millisecond)
	go func() {
		idx := 0
		for {
			select {
			case <-s.ticker.C:
				s.mu.Lock()
				if !s.running {
					s.mu.Unlock()
					return
				}
				elapsed := int(time.Since(s.startTime).Seconds())
				fmt.Fprintf(s.writer, "\r%s  %s (%ds elapsed)", s.chars[idx], s.message, elapsed)
				idx = (idx + 1) % len(s.chars)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)

	if writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.message)+24))
	}
}

// UpdateMessage updates the message while the spinner runs.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}
