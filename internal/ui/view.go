package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Dicklesworthstone/sysdiag/internal/alert"
	"github.com/Dicklesworthstone/sysdiag/internal/model"
)

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	alertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")).Padding(0, 1)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

const (
	gaugeWidth     = 24
	sparklineWidth = 30
	tableHeight    = 12
)

const sparklineBlocks = "▁▂▃▄▅▆▇█"

func newProcessTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "PID", Width: 8},
			{Title: "Name", Width: 24},
			{Title: "CPU%", Width: 7},
			{Title: "MEM%", Width: 7},
		}),
		table.WithFocused(true),
		table.WithHeight(tableHeight),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("60")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func processRows(procs []model.Process) []table.Row {
	rows := make([]table.Row, 0, len(procs))
	for _, p := range procs {
		rows = append(rows, table.Row{
			strconv.Itoa(int(p.PID)),
			truncate(displayName(p), 24),
			fmt.Sprintf("%.1f", p.CPUPercent),
			fmt.Sprintf("%.1f", p.MemoryPercent),
		})
	}
	return rows
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.hasTick {
		return titleStyle.Render("sysdiag") + "  " + subtleStyle.Render("sampling...")
	}

	s := m.last.Snapshot
	hist := m.last.History

	header := titleStyle.Render("sysdiag") + "  " +
		subtleStyle.Render(s.Timestamp.Format("Mon Jan 2 15:04:05 MST 2006"))
	if m.paused {
		header += "  " + recStyle.Render("PAUSED")
	} else {
		header += "  " + subtleStyle.Render("every "+m.interval().String())
	}
	if m.sess.Logging() {
		rec := fmt.Sprintf("● REC %d", m.sess.LogLen())
		if last, ok := m.sess.LastLogged(); ok {
			rec += " " + last.Timestamp.Format("15:04:05")
		}
		header += "  " + recStyle.Render(rec)
	}

	cpuCard := card("CPU",
		gaugeBar(s.CPUPercent, gaugeWidth)+"\n"+sparkline(hist.CPU, sparklineWidth))

	memCard := card("Memory",
		fmt.Sprintf("%s\n%s / %s\n%s",
			gaugeBar(s.Memory.Percent, gaugeWidth),
			humanize.IBytes(s.Memory.Used),
			humanize.IBytes(s.Memory.Total),
			sparkline(hist.Memory, sparklineWidth)))

	diskCard := card("Disk "+s.Disk.Mount,
		fmt.Sprintf("%s\n%s free of %s\n%s",
			gaugeBar(s.Disk.Percent, gaugeWidth),
			humanize.IBytes(s.Disk.Free),
			humanize.IBytes(s.Disk.Total),
			sparkline(hist.Disk, sparklineWidth)))

	netCard := card("Network",
		fmt.Sprintf("↑ %s\n↓ %s",
			humanize.Bytes(s.Network.BytesSentDelta),
			humanize.Bytes(s.Network.BytesRecvDelta)))

	columns := []string{cpuCard, memCard, diskCard, netCard}
	if s.Battery != nil {
		state := "discharging"
		if s.Battery.Charging {
			state = "charging"
		}
		columns = append(columns, card("Battery", fmt.Sprintf("%.0f%%\n%s", s.Battery.Percent, state)))
	}

	sections := []string{header}
	if banner := m.alertBanner(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections,
		lipgloss.JoinHorizontal(lipgloss.Top, columns...),
		card("Top processes by "+string(m.sess.SortKey()), m.table.View()),
	)
	if m.status != "" {
		if m.isErr {
			sections = append(sections, errStyle.Render(m.status))
		} else {
			sections = append(sections, subtleStyle.Render(m.status))
		}
	}
	sections = append(sections, m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// alertBanner lists every metric in the alerting state.
func (m *Model) alertBanner() string {
	s := m.last.Snapshot
	values := map[alert.Metric]float64{
		alert.CPU:    s.CPUPercent,
		alert.Memory: s.Memory.Percent,
		alert.Disk:   s.Disk.Percent,
	}
	var parts []string
	for _, metric := range alert.Metrics {
		if !m.sess.Alerting(metric) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %.1f%% (limit %.0f%%)",
			strings.ToUpper(string(metric)), values[metric], m.sess.Threshold(metric)))
	}
	if len(parts) == 0 {
		return ""
	}
	return alertStyle.Render("ALERT  " + strings.Join(parts, "  ·  "))
}

// Helpers
func gaugeBar(pct float64, width int) string {
	pct = model.ClampPercent(pct)
	filled := int((pct / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled),
		strings.Repeat(gaugeEmpty, width-filled),
		pct)
}

// sparkline renders the most recent width values on a fixed 0-100 scale.
func sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}
	blocks := []rune(sparklineBlocks)
	var b strings.Builder
	for _, v := range values {
		level := int(model.ClampPercent(v) / 100 * float64(len(blocks)-1))
		b.WriteRune(blocks[level])
	}
	return subtleStyle.Render(b.String())
}

func card(title, body string) string {
	return cardStyle.Render(labelStyle.Render(title) + "\n" + body)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
