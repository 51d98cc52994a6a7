package digest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/meridian/internal/model"
)

var metalOrder = []string{"gold", "silver", "copper"}

var regimeLabels = []struct{ key, label string }{
	{"volatility", "Vol"},
	{"dollar", "USD"},
	{"curve", "Curve"},
	{"credit", "Credit"},
}

var levelFormats = []struct{ key, format string }{
	{"vix", "VIX %.1f"},
	{"dxy", "DXY %.1f"},
	{"us10y", "10Y %.2f%%"},
	{"gold", "Gold $%.0f"},
	{"oil", "Oil $%.1f"},
}

type renderInput struct {
	market   *model.MarketSnapshot
	calendar []model.CalendarEntry
	theses   []model.ThesisSummary
}

// render produces the plain-text briefing.
func render(snap *model.DigestSnapshot, in renderInput, loc *time.Location) string {
	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("MERIDIAN DAILY BRIEFING")
	line("%s (%s)", snap.WindowStart.Format("Monday, Jan 02, 2006"), snap.Timezone)
	line("")

	line("MARKET CONTEXT")
	renderMarket(line, snap.Market, in.market)
	line("")

	line("PRIORITY EVENTS (%d)", len(snap.PriorityEvents))
	if len(snap.PriorityEvents) == 0 {
		line("- None")
	}
	for _, e := range snap.PriorityEvents {
		suffix := ""
		if e.AnalysisReady {
			suffix = " [analysis ready]"
		}
		line("- %s (%d/100)%s", e.Headline, e.Score, suffix)
	}
	line("")

	line("METALS SNAPSHOT")
	renderMetals(line, snap.Market, in.market)
	line("")

	line("TODAY'S CALENDAR")
	switch {
	case !snap.Calendar.Available:
		line("- Unavailable (%s)", snap.Calendar.Note)
	case len(in.calendar) == 0:
		line("- None")
	}
	for _, c := range in.calendar {
		region := ""
		if c.Region != "" && !strings.Contains(strings.ToUpper(c.Name), strings.ToUpper(c.Region)) {
			region = c.Region + " "
		}
		impact := "N/A"
		if c.Impact != "" {
			impact = strings.ToUpper(c.Impact)
		}
		line("- %s %s%s (%s)", c.At.In(loc).Format("15:04"), region, c.Name, impact)
	}
	line("")

	line("THESIS UPDATES")
	switch {
	case !snap.Theses.Available:
		line("- Unavailable (%s)", snap.Theses.Note)
	case len(in.theses) == 0:
		line("- None")
	}
	for _, t := range in.theses {
		title := t.Title
		if title == "" {
			title = "untitled thesis"
		}
		status := t.Status
		if status == "" {
			status = "unknown"
		}
		var suffix []string
		if t.Asset != "" {
			suffix = append(suffix, t.Asset)
		}
		if t.ChangePercent != nil {
			suffix = append(suffix, formatPercent(t.ChangePercent))
		}
		tail := ""
		if len(suffix) > 0 {
			tail = " " + strings.Join(suffix, " ")
		}
		line("- %s (%s)%s", title, status, tail)
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderMarket(line func(string, ...interface{}), sec model.Section, m *model.MarketSnapshot) {
	if !sec.Available || m == nil {
		line("- No market context available (%s)", sec.Note)
		return
	}

	var regimes []string
	known := map[string]bool{}
	for _, r := range regimeLabels {
		known[r.key] = true
		if v := m.Regimes[r.key]; v != "" {
			regimes = append(regimes, r.label+": "+strings.ToUpper(v))
		}
	}
	var extra []string
	for k := range m.Regimes {
		if !known[k] && m.Regimes[k] != "" {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		regimes = append(regimes, k+": "+strings.ToUpper(m.Regimes[k]))
	}
	if len(regimes) > 0 {
		line("Regimes: %s", strings.Join(regimes, " | "))
	}

	var levels []string
	for _, l := range levelFormats {
		if q, ok := m.Prices[l.key]; ok {
			levels = append(levels, fmt.Sprintf(l.format, q.Price))
		}
	}
	if len(levels) > 0 {
		line("Levels: %s", strings.Join(levels, " | "))
	}
	if len(regimes) == 0 && len(levels) == 0 {
		line("- No market context available")
	}
}

func renderMetals(line func(string, ...interface{}), sec model.Section, m *model.MarketSnapshot) {
	if !sec.Available || m == nil {
		line("- No price data")
		return
	}
	n := 0
	for _, metal := range metalOrder {
		q, ok := m.Prices[metal]
		if !ok {
			continue
		}
		line("%s: $%.2f (%s)", strings.ToUpper(metal[:1])+metal[1:], q.Price, formatPercent(q.ChangePercent))
		n++
	}
	if r, ok := m.Ratios["gold_silver"]; ok {
		line("G/S Ratio: %.2f", r)
		n++
	}
	if n == 0 {
		line("- No price data")
	}
}

func formatPercent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	sign := ""
	if *v > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, *v)
}
