package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"marketsim/internal/competitor"
	"marketsim/internal/market"
	"marketsim/internal/pressure"
	"marketsim/internal/sim"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func renderCompanies(companies []market.Company) {
	if len(companies) == 0 {
		printInfo("No companies listed.")
		return
	}
	fmt.Printf("%-8s %-24s %-16s %14s %9s %7s %6s\n", "TICKER", "NAME", "SECTOR", "PRICE", "CHANGE", "INST%", "VI")
	for _, c := range companies {
		vi := ""
		if c.VI.Active() {
			vi = warn.Sprint("HALT")
		}
		fmt.Printf("%-8s %-24s %-16s %14s %9s %6.1f%% %6s\n",
			c.Ticker,
			truncate(c.Name, 24),
			c.Sector,
			formatWon(c.Price),
			colorizePercent(c.Change()*100),
			c.InstitutionFlow.InstitutionalOwnership*100,
			vi,
		)
	}
}

func renderMarket(clock sim.Clock, index float64, breaker market.BreakerState, sentiment market.SentimentState, companies []market.Company) {
	accent.Printf("\n== MARKET Y%d M%d D%d H%d (tick %d) ==\n", clock.Year, clock.Month, clock.Day, clock.Hour, clock.Tick)
	fmt.Printf("Index:       %.2f\n", index)
	fmt.Printf("Fear/Greed:  %d\n", sentiment.FearGreedIndex)
	if breaker.Halted() {
		danger.Printf("Circuit breaker level %d active\n", breaker.Level)
	}
	fmt.Println()
	renderCompanies(companies)
	fmt.Println()
}

func renderRankings(rows []competitor.Standing) {
	fmt.Printf("%-5s %-24s %18s %9s\n", "RANK", "NAME", "ASSETS", "ROI")
	for _, r := range rows {
		name := truncate(r.Name, 24)
		if r.IsPlayer {
			name = accent.Sprint(name)
		}
		fmt.Printf("%-5d %-24s %18s %9s\n", r.Rank, name, formatWon(r.TotalAssetValue), colorizePercent(r.ROI*100))
	}
}

func renderSettlement(st *sim.Settlement, index float64) {
	accent.Printf("\n== Y%d M%d SETTLED ==\n", st.Year, st.Month)
	fmt.Printf("Index:     %.2f\n", index)
	fmt.Printf("Return:    %s\n", colorizePercent(st.ReturnRate*100))
	fmt.Printf("Tax paid:  %s\n", formatWon(st.TaxPaid))
	tier := string(st.Tier)
	if st.TierChanged {
		tier = fmt.Sprintf("%s (was %s)", st.Tier, st.PreviousTier)
	}
	fmt.Printf("Tier:      %s\n", tier)
	if st.ReliefEligible {
		printSuccess("Tax relief next month")
	}
	if st.NegativeEventMultiplier > 1 {
		printWarn(fmt.Sprintf("Adverse events x%.2f", st.NegativeEventMultiplier))
	}
	renderRankings(st.Rankings)
}

func renderTiers(current pressure.Tier) {
	fmt.Printf("%-12s %-22s %18s %9s %9s %7s\n", "TIER", "LABEL", "MIN ASSETS", "TAX/MO", "MAX POS", "SLOTS")
	for _, t := range pressure.Tiers {
		name := string(t.Tier)
		if t.Tier == current {
			name = accent.Sprint(name)
		}
		fmt.Printf("%-12s %-22s %18s %8.2f%% %8.0f%% %7d\n",
			name,
			t.Label,
			formatWon(float64(t.MinAssets)),
			t.MonthlyTaxRate*100,
			t.MaxPositionPercent*100,
			t.MaxTotalPositions,
		)
	}
}

func renderOrderResult(out sim.OrderResult) {
	accent.Printf("\n== ORDER %s ==\n", strings.ToUpper(string(out.Side)))
	fmt.Printf("Symbol:   %s\n", out.Symbol)
	fmt.Printf("Shares:   %d of %d\n", out.Filled, out.Requested)
	fmt.Printf("Price:    %s\n", formatWon(out.Price))
	fmt.Printf("Notional: %s\n", formatWon(out.Notional))
	fmt.Printf("Cash:     %s\n", formatWon(out.Cash))
	if out.Truncated {
		printWarn("Order was truncated to the position limit.")
	}
	fmt.Println()
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

// formatWon renders a KRW amount with thousands separators and no fraction.
func formatWon(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + comma(int64(math.Round(v))) + " KRW"
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
