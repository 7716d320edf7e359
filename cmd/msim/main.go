package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cl "marketsim/internal/cli"
	"marketsim/internal/competitor"
	"marketsim/internal/config"
	"marketsim/internal/market"
	"marketsim/internal/pressure"
	"marketsim/internal/sim"
	"marketsim/internal/syncq"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "msim",
		Short:        "Virtual stock market simulator",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "marketsim API base URL")

	root.AddCommand(
		newRunCmd(),
		newLastCmd(),
		newPriceCmd(),
		newTiersCmd(),
		newMarketCmd(&apiBase),
		newOrderCmd(&apiBase),
		newEventCmd(&apiBase),
		newWatchCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newRunCmd() *cobra.Command {
	var (
		months      int
		seed        int64
		competitors int
		volatility  string
		save        bool
		quiet       bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate the market offline and print monthly settlements",
		RunE: func(cmd *cobra.Command, args []string) error {
			if months <= 0 {
				return fmt.Errorf("months must be > 0")
			}
			if !cmd.Flags().Changed("seed") {
				seed = time.Now().UnixNano()
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			session := sim.NewSession(sim.Options{
				Seed:        seed,
				Competitors: competitors,
				Volatility:  volatility,
				Logger:      logger,
			})
			defer session.Close()

			report := cl.RunReport{SessionID: session.ID, Seed: seed}
			ticks := months * market.TicksPerMonth
			for i := 0; i < ticks; i++ {
				sum, err := session.Step(cmd.Context())
				if err != nil {
					return err
				}
				report.Ticks++
				report.TaxPaid += sum.TaxPaid
				report.Index = sum.Index
				if sum.Settlement == nil {
					continue
				}
				report.Settlements++
				report.Tier = sum.Settlement.Tier
				report.Rankings = sum.Settlement.Rankings
				if !quiet {
					renderSettlement(sum.Settlement, sum.Index)
				}
			}

			renderMarket(session.Clock(), session.Index(), session.Breaker(), session.Sentiment(), session.Companies())
			accent.Println("Final standings")
			renderRankings(session.Rankings())
			fmt.Println()

			if save {
				report.FinishedAt = time.Now().UTC()
				if err := cl.SaveReport(report); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Run saved (seed %d).", seed))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&months, "months", 12, "in-game months to simulate")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed; defaults to the clock")
	cmd.Flags().IntVar(&competitors, "competitors", sim.DefaultCompetitors, "number of AI competitors")
	cmd.Flags().StringVar(&volatility, "volatility", "mor", "calm, mor or wild")
	cmd.Flags().BoolVar(&save, "save", true, "save the final report for `msim last`")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the final standings")
	return cmd
}

func newLastCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "last",
		Short: "Show the last saved offline run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset {
				if err := cl.ClearReport(); err != nil {
					return err
				}
				printSuccess("Saved run cleared.")
				return nil
			}
			r, err := cl.LoadReport()
			if err != nil {
				return fmt.Errorf("no saved run: %w", err)
			}
			accent.Printf("\n== LAST RUN %s ==\n", r.SessionID)
			fmt.Printf("Seed:        %d\n", r.Seed)
			fmt.Printf("Ticks:       %d (%d months)\n", r.Ticks, r.Settlements)
			fmt.Printf("Finished:    %s\n", r.FinishedAt.Local().Format("2006-01-02 15:04"))
			fmt.Printf("Index:       %.2f\n", r.Index)
			fmt.Printf("Tier:        %s\n", r.Tier)
			fmt.Printf("Tax paid:    %s\n", formatWon(r.TaxPaid))
			fmt.Println()
			renderRankings(r.Rankings)
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "clear", false, "delete the saved run")
	return cmd
}

func newPriceCmd() *cobra.Command {
	var (
		price  float64
		sigma  float64
		drift  float64
		ticks  int
		seed   int64
		sector string
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Print one company's simulated price path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if price <= 0 || ticks <= 0 {
				return fmt.Errorf("price and ticks must be > 0")
			}
			if !market.ValidSector(sector) {
				return fmt.Errorf("%w: %q", market.ErrUnknownSector, sector)
			}
			rng := rand.New(rand.NewSource(seed))
			snap := market.CompanySnapshot{
				ID:               "path",
				Sector:           sector,
				Price:            market.Quantize(price),
				Drift:            drift,
				Volatility:       sigma,
				BasePrice:        market.Quantize(price),
				SessionOpenPrice: market.Quantize(price),
			}
			drivers := market.Drivers{Dt: market.DefaultDt, Impact: market.DefaultImpactConfig()}
			fmt.Printf("%-6s %14s %9s %-6s\n", "TICK", "PRICE", "CHANGE", "LIMIT")
			for i := 1; i <= ticks; i++ {
				prev := snap.Price
				snap.Price = market.NextPrice(snap, drivers, rng)
				limit := market.LimitHit(snap.Price, snap.SessionOpenPrice)
				fmt.Printf("%-6d %14s %9s %-6s\n", i, formatWon(snap.Price), colorizePercent((snap.Price-prev)/prev*100), limit)
				if i%market.TicksPerDay == 0 {
					snap.SessionOpenPrice = snap.Price
				}
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&price, "start", 50_000, "starting price in KRW")
	cmd.Flags().Float64Var(&sigma, "sigma", 0.03, "annualised volatility")
	cmd.Flags().Float64Var(&drift, "drift", 0, "base drift")
	cmd.Flags().IntVar(&ticks, "ticks", 30, "number of ticks")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&sector, "sector", "tech", "sector of the company")
	return cmd
}

func newTiersCmd() *cobra.Command {
	var assets float64
	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "Show wealth tiers with their tax and position limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			current := pressure.Tier("")
			if cmd.Flags().Changed("assets") {
				current = pressure.TierForAssets(assets)
			}
			accent.Println("\n== WEALTH TIERS ==")
			renderTiers(current)
			if current != "" {
				st := pressure.NewState()
				st.Tier = current
				tax, _ := pressure.MonthlyTax(st, assets)
				fmt.Printf("\nAt %s you are %s and pay %s a month.\n", formatWon(assets), current, formatWon(tax))
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().Float64Var(&assets, "assets", 0, "highlight the tier for these total assets")
	return cmd
}

func newMarketCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "market [ID|TICKER]",
		Short: "Show the live market or one company",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			if len(args) == 0 {
				out, err := client.Market(ctx)
				if err != nil {
					return err
				}
				renderMarket(out.Clock, out.Index, out.Breaker, out.Sentiment, out.Companies)
				return nil
			}
			out, err := client.Company(ctx, strings.ToLower(strings.TrimSpace(args[0])), limit)
			if err != nil {
				return err
			}
			c := out.Company
			accent.Printf("\n== %s (%s) ==\n", c.Ticker, c.Name)
			fmt.Printf("Sector:      %s\n", c.Sector)
			fmt.Printf("Price:       %s %s\n", formatWon(c.Price), colorizePercent(c.Change()*100))
			fmt.Printf("Open:        %s\n", formatWon(c.SessionOpenPrice))
			fmt.Printf("Market cap:  %s\n", formatWon(c.MarketCap))
			fmt.Printf("Inst. own:   %.2f%%\n", c.InstitutionFlow.InstitutionalOwnership*100)
			if len(out.Journal) > 0 {
				fmt.Println()
				accent.Println("Recent ticks")
				fmt.Printf("%-8s %14s\n", "TICK", "PRICE")
				for _, p := range out.Journal {
					fmt.Printf("%-8d %14s\n", p.Tick, formatWon(p.Price))
				}
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "journal points to show")
	return cmd
}

func newOrderCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "order buy|sell ID SHARES",
		Short: "Place a player order against the live session",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			side := strings.ToLower(strings.TrimSpace(args[0]))
			if side != string(competitor.Buy) && side != string(competitor.Sell) {
				return fmt.Errorf("side must be buy or sell")
			}
			shares, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil || shares <= 0 {
				return fmt.Errorf("shares must be a positive whole number")
			}
			companyID := strings.ToLower(strings.TrimSpace(args[1]))
			idem := uuid.NewString()
			body := map[string]any{
				"company_id": companyID,
				"side":       side,
				"shares":     shares,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).PlaceOrder(ctx, companyID, side, idem, shares)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         "POST",
					Path:           "/v1/orders",
					Body:           body,
					IdempotencyKey: idem,
				})
			}
			renderOrderResult(out)
			return nil
		},
	}
}

func newEventCmd(apiBase *string) *cobra.Command {
	var (
		ev       market.EventModifier
		severity string
		sectors  []string
	)
	cmd := &cobra.Command{
		Use:   "event TITLE",
		Short: "Inject a market event into the live session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev.Title = args[0]
			ev.Severity = market.Severity(strings.ToLower(severity))
			ev.AffectedSectors = sectors
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).InjectEvent(ctx, ev)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Event %s active for %d ticks.", out.ID, out.Duration))
			return nil
		},
	}
	cmd.Flags().Float64Var(&ev.DriftModifier, "drift", -0.02, "drift modifier")
	cmd.Flags().Float64Var(&ev.VolatilityModifier, "vol", 0.5, "volatility modifier")
	cmd.Flags().IntVar(&ev.Duration, "duration", 50, "duration in ticks")
	cmd.Flags().StringVar(&severity, "severity", string(market.SeverityMedium), "low, medium, high or critical")
	cmd.Flags().StringSliceVar(&sectors, "sector", nil, "affected sector; repeat for more, omit for all")
	return cmd
}

func newWatchCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live ticks until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(apiBase).Stream(cmd.Context(), func(sum sim.TickSummary) error {
				c := sum.Clock
				line := fmt.Sprintf("Y%d M%02d D%02d H%d  index %.2f  trades %d", c.Year, c.Month, c.Day, c.Hour, sum.Index, len(sum.Actions))
				switch {
				case sum.Breaker.Halted():
					danger.Println(line + "  BREAKER")
				case len(sum.Halts) > 0:
					warn.Println(line + "  VI " + strings.Join(sum.Halts, ","))
				default:
					fmt.Println(line)
				}
				for _, ev := range sum.NewEvents {
					warn.Printf("  event: %s (%s)\n", ev.Title, ev.Severity)
				}
				if sum.Settlement != nil {
					renderSettlement(sum.Settlement, sum.Index)
				}
				return nil
			})
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay orders queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			delivered, failures, err := syncq.Replay(func(q syncq.Command) error {
				_, err := client.Do(ctx, q.Method, q.Path, q.Body, q.IdempotencyKey)
				if err != nil && strings.Contains(err.Error(), "duplicate idempotency key") {
					// landed before the connection dropped
					return nil
				}
				if err != nil {
					printError(fmt.Sprintf("Sync failed for %s %s: %v", q.Method, q.Path, err))
				}
				return err
			})
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", delivered, len(failures)))
			return nil
		},
	}
}

func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil || cl.IsAPIError(err) {
		return err
	}
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %w", err)
	}
	printWarn("API unreachable. Order queued; run `msim sync` to replay it.")
	return nil
}
