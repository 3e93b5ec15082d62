package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

// RenderOptions controls how digests are worded. Nothing is looked up
// globally; callers pass the labels and icons they want.
type RenderOptions struct {
	Title      string
	YieldUnit  string
	DateLayout string
	Location   *time.Location
	Labels     map[models.PerformanceCategory]string
	Icons      map[models.PerformanceCategory]string
}

// DefaultRenderOptions returns English labels with emoji icons.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Title:      "Weekly production digest",
		YieldUnit:  "kg",
		DateLayout: "2006-01-02",
		Location:   time.UTC,
		Labels: map[models.PerformanceCategory]string{
			models.PerformanceExceptional: "Exceptional",
			models.PerformanceExceeding:   "Exceeding",
			models.PerformanceExcellent:   "Excellent",
			models.PerformanceGood:        "Good",
			models.PerformanceAcceptable:  "Acceptable",
			models.PerformancePoor:        "Poor",
		},
		Icons: map[models.PerformanceCategory]string{
			models.PerformanceExceptional: "🏆",
			models.PerformanceExceeding:   "🚀",
			models.PerformanceExcellent:   "🟢",
			models.PerformanceGood:        "🟡",
			models.PerformanceAcceptable:  "🟠",
			models.PerformancePoor:        "🔴",
		},
	}
}

// FormatGlobalDigest renders the platform summary followed by one short
// section per site.
func FormatGlobalDigest(global models.GlobalMetrics, sites []models.SiteMetrics, opts RenderOptions) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 *%s*\n", opts.Title)
	fmt.Fprintf(&b, "Period: %s\n", formatWindow(global.Window, opts))
	fmt.Fprintf(&b, "Sites: %d | Units: %d\n", global.SiteCount, global.UnitCount)
	fmt.Fprintf(&b, "Total yield: %s (current cycle %s, closed cycles %s)\n",
		formatYield(global.TotalYield, opts), formatYield(global.CurrentCycleYield, opts), formatYield(global.LedgerYield, opts))
	b.WriteString(efficiencyLine(global.WeightedEfficiencyPercent, global.PerformanceCategory, global.QualifyingUnits, opts))
	fmt.Fprintf(&b, "States: %s\n", formatStates(global.StateCounts))
	fmt.Fprintf(&b, "Alerts: %s\n", formatAlerts(global.ActiveAlerts))
	if len(global.Warnings) > 0 {
		fmt.Fprintf(&b, "⚠️ %d data warning(s)\n", len(global.Warnings))
	}

	for _, site := range sites {
		b.WriteString("\n")
		b.WriteString(FormatSiteDigest(site, opts))
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatSiteDigest renders one site's figures.
func FormatSiteDigest(site models.SiteMetrics, opts RenderOptions) string {
	var b strings.Builder

	name := site.SiteCode
	if name == "" {
		name = site.SiteID
	}
	fmt.Fprintf(&b, "🏡 *%s* (%d units)\n", name, site.UnitCount)
	fmt.Fprintf(&b, "Yield: %s of %s predicted\n", formatYield(site.TotalYield, opts), formatYield(site.PredictedYield, opts))
	b.WriteString(efficiencyLine(site.WeightedEfficiencyPercent, site.PerformanceCategory, site.QualifyingUnits, opts))
	fmt.Fprintf(&b, "States: %s\n", formatStates(site.StateCounts))
	if alerts := formatAlerts(site.ActiveAlerts); alerts != "none" {
		fmt.Fprintf(&b, "Alerts: %s\n", alerts)
	}
	return b.String()
}

func efficiencyLine(efficiency float64, category models.PerformanceCategory, qualifying int, opts RenderOptions) string {
	if qualifying == 0 {
		return "Efficiency: no harvested units yet\n"
	}
	label := opts.Labels[category]
	if label == "" {
		label = string(category)
	}
	icon := opts.Icons[category]
	if icon != "" {
		icon += " "
	}
	return fmt.Sprintf("Efficiency: %.2f%% %s%s over %d unit(s)\n", efficiency, icon, label, qualifying)
}

func formatYield(v float64, opts RenderOptions) string {
	if opts.YieldUnit == "" {
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.2f %s", v, opts.YieldUnit)
}

func formatWindow(w models.Window, opts RenderOptions) string {
	layout := opts.DateLayout
	if layout == "" {
		layout = "2006-01-02"
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	start := "beginning"
	if !w.Start.IsZero() {
		start = w.Start.In(loc).Format(layout)
	}
	return fmt.Sprintf("%s → %s", start, w.End.In(loc).Format(layout))
}

// formatStates lists non-zero states in lifecycle order, unknown last.
func formatStates(counts map[models.State]int) string {
	var parts []string
	for _, state := range append(append([]models.State{}, models.States...), models.StateUnknown) {
		if n := counts[state]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", state, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func formatAlerts(counts map[models.Severity]int) string {
	severities := make([]models.Severity, 0, len(counts))
	for severity, n := range counts {
		if n > 0 {
			severities = append(severities, severity)
		}
	}
	if len(severities) == 0 {
		return "none"
	}
	sort.Slice(severities, func(i, j int) bool { return severityRank(severities[i]) > severityRank(severities[j]) })

	parts := make([]string, 0, len(severities))
	for _, severity := range severities {
		parts = append(parts, fmt.Sprintf("%s %d", severity, counts[severity]))
	}
	return strings.Join(parts, ", ")
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 4
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	default:
		return 0
	}
}
