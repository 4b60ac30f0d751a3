package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"emailmanager/internal"
	"emailmanager/internal/billing"
	"emailmanager/internal/export"
	"emailmanager/internal/listener"
	"emailmanager/internal/util"
)

var (
	watch       bool
	interval    int
	rebuildDays int
	rebuildMax  int
	runsLimit   int
	exportOut   string
	exportSince int
	billingItem string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process unread mail once, or keep polling with --watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		proc, notifier, err := a.Pipeline(ctx)
		if err != nil {
			return err
		}
		if watch {
			every := time.Duration(interval) * time.Second
			if interval <= 0 {
				every = time.Duration(cfg.CheckIntervalSec) * time.Second
			}
			return listener.NewService(proc, notifier, every, log).Run(ctx)
		}

		stats, err := proc.CheckAndProcess(ctx)
		if err != nil {
			return err
		}
		printRun(stats)
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Reprocess recent mail, read or not, without marking it read",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		proc, _, err := a.Pipeline(ctx)
		if err != nil {
			return err
		}
		stats, err := proc.RebuildRecent(ctx, rebuildDays, rebuildMax)
		if err != nil {
			return err
		}
		printRun(stats)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show processed-mail, billing and run statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ms, err := a.Store.MarkerStats()
		if err != nil {
			return err
		}
		fmt.Printf("processed: %d\n", ms.Total)
		printCounts("stage1", ms.ByStage1)
		printCounts("category", ms.ByCategory)

		bs, err := a.Store.BillingSummary()
		if err != nil {
			return err
		}
		fmt.Printf("\nbilling items: %d, pending records: %d\n", bs.TotalItems, bs.PendingRecords)
		byType := make(map[string]int, len(bs.ByType))
		for t, n := range bs.ByType {
			byType[billing.TypeName(t)] = n
		}
		printCounts("type", byType)

		runs, err := a.Store.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			fmt.Println("\nrecent runs:")
		}
		for _, r := range runs {
			fmt.Printf("  %s  %-7s  new=%d synced=%d total=%.1fs\n",
				r.CreatedAt, r.Mode, r.Counts["new"], r.Counts["synced"], r.Timings["total"])
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup DAYS",
	Short: "Delete processed markers older than DAYS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := strconv.Atoi(args[0])
		if err != nil || days <= 0 {
			return fmt.Errorf("DAYS must be a positive integer, got %q", args[0])
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Store.CleanupOld(days)
		if err != nil {
			return err
		}
		fmt.Printf("cleanup removed %d markers older than %d days\n", n, days)
		return nil
	},
}

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "List pending billing records, or one item's history with --item",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if billingItem != "" {
			item, err := a.Store.GetBillingItemByName(billingItem)
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("no billing item named %q", billingItem)
			}
			records, err := a.Store.BillingRecordsForItem(item.ID, 0)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s, %s)\n", item.Name, billing.TypeName(item.Type), item.Status)
			printRecords(records)
			return nil
		}

		records, err := a.Store.PendingBillingRecords()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no pending bills")
			return nil
		}
		printRecords(records)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show MESSAGE_ID",
	Short: "Show the processed marker for one message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.Store.GetMarker(args[0])
		if err != nil {
			return err
		}
		if m == nil {
			fmt.Printf("%s has not been processed\n", args[0])
			return nil
		}
		fmt.Printf("message:   %s\n", m.MessageID)
		fmt.Printf("account:   %s\n", m.Account)
		fmt.Printf("subject:   %s\n", m.Subject)
		fmt.Printf("processed: %s\n", m.ProcessedAt.Local().Format(time.DateTime))
		fmt.Printf("stage1:    %s\n", m.Stage1Result)
		fmt.Printf("category:  %s\n", util.FirstNonEmpty(m.Stage2Category, "-"))
		fmt.Printf("synced:    %t\n", m.Synced)
		fmt.Printf("read:      %t\n", m.MarkedRead)
		return nil
	},
}

var billingPaidCmd = &cobra.Command{
	Use:   "paid RECORD_ID",
	Short: "Mark a billing record as paid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad record id %q", args[0])
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store.MarkBillingRecordPaid(id); err != nil {
			return err
		}
		fmt.Printf("record %d marked paid\n", id)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export processed markers and billing records to xlsx",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dir := exportOut
		if dir == "" {
			dir = cfg.ExportDir
		}
		var since time.Time
		if exportSince > 0 {
			since = time.Now().AddDate(0, 0, -exportSince)
		}
		markers, err := a.Store.ListMarkers(since)
		if err != nil {
			return err
		}
		markersPath := filepath.Join(dir, "processed.xlsx")
		if err := export.WriteMarkers(markers, markersPath); err != nil {
			return err
		}

		items, err := a.Store.ActiveBillingItems()
		if err != nil {
			return err
		}
		var records []internal.BillingRecordRow
		for _, item := range items {
			rs, err := a.Store.BillingRecordsForItem(item.ID, 0)
			if err != nil {
				return err
			}
			records = append(records, rs...)
		}
		billingPath := filepath.Join(dir, "billing.xlsx")
		if err := export.WriteBilling(items, records, billingPath); err != nil {
			return err
		}
		fmt.Printf("exported %d markers to %s\n", len(markers), markersPath)
		fmt.Printf("exported %d items, %d records to %s\n", len(items), len(records), billingPath)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&watch, "watch", false, "keep polling until interrupted")
	runCmd.Flags().IntVar(&interval, "interval", 0, "poll interval in seconds (default CHECK_INTERVAL)")

	rebuildCmd.Flags().IntVar(&rebuildDays, "days", 7, "look back this many days")
	rebuildCmd.Flags().IntVar(&rebuildMax, "limit", 200, "max messages")

	statsCmd.Flags().IntVar(&runsLimit, "runs", 5, "recent runs to show")

	exportCmd.Flags().StringVar(&exportOut, "out", "", "output directory (default EXPORT_DIR)")
	exportCmd.Flags().IntVar(&exportSince, "days", 0, "only markers from the last N days, 0 for all")

	billingCmd.Flags().StringVar(&billingItem, "item", "", "show the history of one billing item")
	billingCmd.AddCommand(billingPaidCmd)
}

func printRecords(records []internal.BillingRecordRow) {
	for _, r := range records {
		amount := "-"
		if r.Amount != nil {
			amount = strconv.FormatFloat(*r.Amount, 'f', 2, 64)
		}
		fmt.Printf("#%d  %s  %s  %s  %s  %s  due %s\n", r.ID, billing.TypeName(r.ItemType), r.ItemName,
			r.Period, amount, r.Status, util.FirstNonEmpty(util.DerefString(r.DueDate), "-"))
	}
}

func printRun(s internal.RunStats) {
	fmt.Printf("run %s: total=%d new=%d synced=%d marked_read=%d\n", s.RunID, s.Total, s.New, s.Synced, s.MarkedRead)
	if s.New == 0 {
		return
	}
	fmt.Printf("  papers=%d reviews=%d billing=%d notified=%t\n", s.Papers, s.Reviews, s.Billing, s.Notified)
	counts := make(map[string]int, len(s.ByCategory))
	for c, n := range s.ByCategory {
		counts[string(c)] = n
	}
	printCounts("category", counts)
}

func printCounts(label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s %-12s %d\n", label, k, counts[k])
	}
}
