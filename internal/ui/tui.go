package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jsbattig/code-indexer-sub029/internal/slots"
)

// TUIRenderer provides rich terminal UI using bubbletea. One progress
// row is rendered per occupied file slot, polled from the slot tracker
// on every tick.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexingModel
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
// Returns an error if TUI initialization fails (e.g., non-TTY output).
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	model := newIndexingModel(cfg.Slots, cfg.ProjectDir)

	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithAltScreen())

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	if r.program != nil {
		r.program.Quit()

		// Wait with timeout to avoid hanging on an unresponsive TUI
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}

	return nil
}

// Message types for bubbletea
type progressUpdateMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

// indexingModel is the bubbletea model for indexing progress.
type indexingModel struct {
	slots      *slots.Tracker
	width      int
	height     int
	quitting   bool
	complete   bool
	stats      CompletionStats
	spinner    spinner.Model
	progress   progress.Model
	styles     Styles
	projectDir string

	stage       Stage
	current     int
	total       int
	message     string
	stageStart  time.Time
	warnCount   int
	errorCount  int
	lastETA     time.Duration
	recentFails []string
}

// newIndexingModel creates a new indexing model.
func newIndexingModel(tracker *slots.Tracker, projectDir string) *indexingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyan))

	p := progress.New(
		progress.WithSolidFill(ColorCyan),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &indexingModel{
		slots:      tracker,
		spinner:    s,
		progress:   p,
		styles:     DefaultStyles(),
		width:      80,
		height:     24,
		projectDir: projectDir,
		stageStart: time.Now(),
	}
}

// Init implements tea.Model.
func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(),
	)
}

// tickCmd returns a command that ticks every 100ms. The tick drives
// slot panel refresh even when no progress events arrive.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}

	case progressUpdateMsg:
		if msg.Stage != m.stage {
			m.stage = msg.Stage
			m.stageStart = time.Now()
			m.lastETA = 0
		}
		m.current = msg.Current
		m.total = msg.Total
		m.message = msg.Message
		return m, nil

	case errorMsg:
		if msg.IsWarn {
			m.warnCount++
		} else {
			m.errorCount++
			m.recentFails = append(m.recentFails, msg.File)
			if len(m.recentFails) > 3 {
				m.recentFails = m.recentFails[len(m.recentFails)-3:]
			}
		}
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *indexingModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}

	if m.complete {
		return m.renderComplete()
	}

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderStages())
	sections = append(sections, m.renderDivider(contentWidth))
	sections = append(sections, m.renderProgress())

	// Per-file slot rows while the pipeline is running
	if m.slots != nil && m.stage == StageIndexing {
		sections = append(sections, m.renderDivider(contentWidth))
		sections = append(sections, m.renderSlots(contentWidth))
	}

	if len(m.recentFails) > 0 {
		sections = append(sections, m.renderDivider(contentWidth))
		sections = append(sections, m.renderRecentFails(contentWidth))
	}

	content := strings.Join(sections, "\n")

	title := "cidx"
	if m.projectDir != "" {
		title = fmt.Sprintf("cidx %s %s", m.styles.Dim.Render("·"), m.projectDir)
	}
	panel := m.wrapInPanel(title, content, contentWidth)

	statusBar := m.renderStatusBar(contentWidth)

	return panel + "\n" + statusBar
}

// renderStages renders the pipeline stage indicators.
func (m *indexingModel) renderStages() string {
	stages := []struct {
		stage Stage
		name  string
	}{
		{StageScanning, "Scan"},
		{StageFiltering, "Filter"},
		{StageIndexing, "Index"},
	}

	var parts []string
	for _, s := range stages {
		var icon string
		var style lipgloss.Style

		switch {
		case s.stage < m.stage:
			icon = "●"
			style = m.styles.Success
		case s.stage == m.stage:
			icon = m.spinner.View()
			style = m.styles.Active
		default:
			icon = "○"
			style = m.styles.Dim
		}

		parts = append(parts, style.Render(icon+" "+s.name))
	}

	arrow := m.styles.Dim.Render(" > ")
	return strings.Join(parts, arrow)
}

// renderProgress renders the overall progress bar with file counts.
func (m *indexingModel) renderProgress() string {
	if m.total == 0 {
		msg := m.message
		if msg == "" {
			msg = "Preparing..."
		}
		return fmt.Sprintf("%s %s...\n%s",
			m.spinner.View(),
			m.stage.String(),
			m.styles.Dim.Render(msg))
	}

	percent := float64(m.current) / float64(m.total)
	if percent > 1.0 {
		percent = 1.0
	}
	bar := m.progress.ViewAs(percent)
	pctStr := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", percent*100))

	countLine := m.styles.Label.Render(fmt.Sprintf("%d / %d files", m.current, m.total))
	if eta := m.calculateETA(percent); eta > 0 {
		countLine += m.styles.Dim.Render("  ·  ETA " + formatDuration(eta))
	}

	return fmt.Sprintf("%s  %s\n%s", bar, pctStr, countLine)
}

// renderSlots renders one row per slot from a tracker snapshot.
// Free slots render as a dim idle row so the panel height is stable.
func (m *indexingModel) renderSlots(width int) string {
	display := m.slots.GetDisplayFiles()
	bySlot := make(map[int]slots.SlotData, len(display))
	for _, d := range display {
		bySlot[d.SlotID] = d
	}

	fileWidth := width - 30
	if fileWidth < 16 {
		fileWidth = 16
	}

	lines := make([]string, 0, m.slots.Capacity())
	for i := 0; i < m.slots.Capacity(); i++ {
		d, ok := bySlot[i]
		if !ok {
			lines = append(lines, m.styles.SlotEmpty.Render(fmt.Sprintf("  %2d  idle", i+1)))
			continue
		}

		elapsed := time.Since(d.StartTime).Round(time.Second)
		name := truncateFilePath(d.Filename, fileWidth)
		line := fmt.Sprintf("%s %2d  %-*s %-12s %s",
			m.spinner.View(), i+1, fileWidth, m.styles.SlotFile.Render(name),
			m.styles.SlotStatus.Render(d.Status.String()),
			m.styles.Dim.Render(elapsed.String()))
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// renderRecentFails lists the last few failed files.
func (m *indexingModel) renderRecentFails(width int) string {
	var lines []string
	for _, f := range m.recentFails {
		lines = append(lines, m.styles.Error.Render("✗ ")+m.styles.Dim.Render(truncateFilePath(f, width-4)))
	}
	return strings.Join(lines, "\n")
}

// renderDivider renders a horizontal divider line.
func (m *indexingModel) renderDivider(width int) string {
	line := strings.Repeat("─", width)
	return m.styles.Border.Render(line)
}

// wrapInPanel wraps content in a box border with title.
func (m *indexingModel) wrapInPanel(title, content string, width int) string {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	titleStyled := m.styles.Header.Render(title)

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyled,
		panel.Render(content),
	)
}

// renderStatusBar renders the bottom status bar with warnings/errors.
func (m *indexingModel) renderStatusBar(width int) string {
	var parts []string

	if m.warnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.warnCount)))
	}
	if m.errorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", m.errorCount)))
	}

	if len(parts) == 0 {
		return m.styles.Dim.Render("q to quit")
	}

	separator := m.styles.Dim.Render("  │  ")
	status := strings.Join(parts, separator)
	hint := m.styles.Dim.Render("  │  q to quit")

	return status + hint
}

// etaSmoothingFactor controls how much weight new ETA values carry.
const etaSmoothingFactor = 0.3

// calculateETA estimates remaining time with exponential smoothing.
func (m *indexingModel) calculateETA(percent float64) time.Duration {
	if percent <= 0 || percent >= 1.0 {
		return 0
	}

	elapsed := time.Since(m.stageStart)
	totalEstimate := time.Duration(float64(elapsed) / percent)
	rawRemaining := totalEstimate - elapsed
	if rawRemaining < 0 {
		return 0
	}

	if m.lastETA == 0 {
		m.lastETA = rawRemaining
		return rawRemaining
	}

	smoothed := time.Duration(
		etaSmoothingFactor*float64(rawRemaining) +
			(1-etaSmoothingFactor)*float64(m.lastETA),
	)
	m.lastETA = smoothed

	return smoothed
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// renderComplete renders the completion summary.
func (m *indexingModel) renderComplete() string {
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var lines []string

	lines = append(lines, m.styles.Success.Render("✓ Indexing Complete"))
	lines = append(lines, "")

	filesLabel := m.styles.Label.Render("Files:")
	chunksLabel := m.styles.Label.Render("Chunks:")
	durationLabel := m.styles.Label.Render("Duration:")

	lines = append(lines, fmt.Sprintf("%s    %s", filesLabel, m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Files))))
	lines = append(lines, fmt.Sprintf("%s   %s", chunksLabel, m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Chunks))))
	lines = append(lines, fmt.Sprintf("%s %s", durationLabel, m.styles.Active.Render(formatDuration(m.stats.Duration))))

	if m.stats.Skipped > 0 {
		skipLabel := m.styles.Label.Render("Skipped:")
		lines = append(lines, fmt.Sprintf("%s  %s %s", skipLabel,
			m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Skipped)),
			m.styles.Dim.Render("(unchanged)")))
	}

	if m.stats.Pool.Threads > 0 {
		poolLabel := m.styles.Label.Render("Threads:")
		lines = append(lines, fmt.Sprintf("%s  %s %s", poolLabel,
			m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Pool.Threads)),
			m.styles.Dim.Render("("+m.stats.Pool.Source+")")))
	}

	if m.stats.Failed > 0 || m.stats.Warnings > 0 {
		lines = append(lines, "")
		if m.stats.Failed > 0 {
			lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d files failed", m.stats.Failed)))
		}
		if m.stats.Warnings > 0 {
			lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.stats.Warnings)))
		}
	}

	content := strings.Join(lines, "\n")

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorCyan)).
		Padding(1, 2).
		Width(contentWidth)

	return panel.Render(content) + "\n"
}

// truncateFilePath truncates a file path to fit within maxLen,
// keeping the filename visible.
func truncateFilePath(path string, maxLen int) string {
	if path == "" || len(path) <= maxLen {
		return path
	}

	parts := strings.Split(path, "/")
	if len(parts) == 1 {
		if maxLen < 4 {
			return "..."
		}
		return "..." + path[len(path)-maxLen+3:]
	}

	filename := parts[len(parts)-1]
	if len(filename)+4 > maxLen {
		return "..." + filename[len(filename)-maxLen+3:]
	}

	remaining := maxLen - len(filename) - 4
	if remaining <= 0 {
		return ".../" + filename
	}

	prefix := strings.Join(parts[:len(parts)-1], "/")
	if len(prefix) <= remaining {
		return path
	}

	return "..." + prefix[len(prefix)-remaining:] + "/" + filename
}

// Ensure TUIRenderer implements Renderer
var _ Renderer = (*TUIRenderer)(nil)
