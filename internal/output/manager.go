package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/pullq/internal/types"
	"github.com/tanq16/pullq/internal/utils"
	"golang.org/x/term"
)

type itemOutput struct {
	URL         string
	Status      string
	Message     string
	Bytes       int64
	StartTime   time.Time
	LastUpdated time.Time
	Index       int
}

type ErrorReport struct {
	URL   string
	Error error
	Time  time.Time
}

// Manager is the terminal progress surface. It implements types.Observer
// and types.CancelSource.
type Manager struct {
	out         io.Writer
	mutex       sync.RWMutex
	items       map[string]*itemOutput
	lines       []string
	itemCount   int
	percent     int
	pass        int
	passStart   time.Time
	runStart    time.Time
	numLines    int
	maxLines    int
	errors      []ErrorReport
	displayTick time.Duration
	doneCh      chan struct{}
	cancelCh    chan struct{}
	cancelOnce  sync.Once
	displayWg   sync.WaitGroup
	redraw      bool
}

var (
	_ types.Observer     = (*Manager)(nil)
	_ types.CancelSource = (*Manager)(nil)
)

// NewManager renders to out. Lines are redrawn in place only when out is a
// terminal.
func NewManager(out io.Writer) *Manager {
	redraw := false
	if f, ok := out.(*os.File); ok {
		redraw = term.IsTerminal(int(f.Fd()))
	}
	return &Manager{
		out:         out,
		items:       make(map[string]*itemOutput),
		maxLines:    8,
		displayTick: 300 * time.Millisecond,
		doneCh:      make(chan struct{}),
		cancelCh:    make(chan struct{}),
		runStart:    time.Now(),
		redraw:      redraw,
	}
}

func (m *Manager) Started() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.pass++
	m.percent = 0
	m.passStart = time.Now()
}

func (m *Manager) Progress(percent int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.percent = percent
}

func (m *Manager) Finished(outcome types.Outcome) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := time.Now()
	info, exists := m.items[outcome.URL]
	if !exists {
		m.itemCount++
		info = &itemOutput{URL: outcome.URL, StartTime: m.passStart, Index: m.itemCount}
		m.items[outcome.URL] = info
	}
	info.Bytes = outcome.Bytes
	info.LastUpdated = now
	if outcome.Success() {
		info.Status = "success"
		info.Message = fmt.Sprintf("Completed %s %s %s", outcome.OutputPath, StyleSymbols["dot"], utils.FormatBytes(uint64(outcome.Bytes)))
	} else {
		info.Status = "error"
		info.Message = fmt.Sprintf("Unable to download %s", outcome.URL)
		m.errors = append(m.errors, ErrorReport{URL: outcome.URL, Error: outcome.Err, Time: now})
	}
	m.rebuild()
}

// rebuild regenerates the finished-item lines from the item map.
func (m *Manager) rebuild() {
	all := make([]*itemOutput, 0, len(m.items))
	for _, info := range m.items {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastUpdated.Before(all[j].LastUpdated) ||
			(all[i].LastUpdated.Equal(all[j].LastUpdated) && all[i].Index < all[j].Index)
	})
	lines := make([]string, 0, m.maxLines+1)
	if len(all) > m.maxLines {
		lines = append(lines, infoStyle.Render(fmt.Sprintf("%s%d links finished earlier ...", strings.Repeat(" ", 2), len(all)-m.maxLines)))
		all = all[len(all)-m.maxLines:]
	}
	for _, info := range all {
		elapsed := info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		lines = append(lines, fmt.Sprintf("%s%s %s %s", strings.Repeat(" ", 2), statusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message)))
	}
	m.lines = lines
}

func (m *Manager) CancelRequested() <-chan struct{} {
	return m.cancelCh
}

// RequestCancel asks the running orchestrator to stop. Safe to call more
// than once.
func (m *Manager) RequestCancel() {
	m.cancelOnce.Do(func() { close(m.cancelCh) })
}

// Percent is the last aggregate percentage reported.
func (m *Manager) Percent() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.percent
}

func (m *Manager) Counts() (success, failures int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.items {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	return success, failures
}

func statusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) updateDisplay() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	availableLines := m.terminalHeight() - 3
	if m.redraw && m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}

	lineCount := 0
	if m.pass > 0 {
		elapsed := time.Since(m.runStart).Round(time.Second)
		fmt.Fprintf(m.out, "%s%s %s %s%s\n", strings.Repeat(" ", 2), statusIndicator("pending"),
			debugStyle.Render(elapsed.String()), pendingStyle.Render(fmt.Sprintf("Pass %d ", m.pass)),
			PrintProgressBar(int64(m.percent), 100, 30))
		lineCount++
	}
	for _, line := range m.lines {
		if lineCount >= availableLines {
			break
		}
		fmt.Fprintln(m.out, line)
		lineCount++
	}
	m.numLines = lineCount
}

func (m *Manager) terminalHeight() int {
	if f, ok := m.out.(*os.File); ok {
		if _, height, err := term.GetSize(int(f.Fd())); err == nil && height > 0 {
			return height
		}
	}
	return 24
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.redraw {
					m.updateDisplay()
				}
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("URL: %s", err.URL)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	success, failures := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	total := len(m.items)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, total)))
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, total)))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
