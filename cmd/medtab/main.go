package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/medtab/medtab/internal/app"
	"github.com/medtab/medtab/internal/config"
	"github.com/medtab/medtab/internal/schedule"
	"github.com/medtab/medtab/internal/store"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	// Handle subcommands before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			os.Args = append(os.Args[:1], os.Args[2:]...)
			flag.Parse()
			runServer()
			return
		case "schedule":
			handleScheduleCommand(os.Args[2:])
			return
		case "cleanup":
			handleCleanupCommand(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "version", "--version", "-v":
			fmt.Printf("medtab version %s\n", version)
			return
		}
	}

	flag.Parse()

	// Server mode (default)
	runServer()
}

func runServer() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting medtab", zap.String("version", version))

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	app.New(cfg, st, logger, version).RunServer()
}

// handleScheduleCommand prints the due list for a date (default today).
func handleScheduleCommand(args []string) {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file")
	data := fs.String("data", "", "Path to data directory")
	fs.Parse(args)

	logger := zap.NewNop()
	cfg, err := config.Load(*cfgPath, *data)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	st, err := store.New(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	date := st.Today()
	if fs.NArg() > 0 {
		date = fs.Arg(0)
	}

	items, err := schedule.NewBuilder(st, logger).BuildDay(date)
	if err != nil {
		log.Fatalf("Failed to build schedule: %v", err)
	}

	if len(items) == 0 {
		fmt.Printf("Nothing due on %s\n", date)
		return
	}
	fmt.Printf("Schedule for %s:\n", date)
	for _, item := range items {
		clock := item.ClockTime
		if item.PRN {
			clock = "as needed"
		}
		fmt.Printf("  %-10s %s  %g %s  [%s]\n", clock, item.MedicationName, item.Dose, item.DoseUnit, item.Status)
	}
	sum := schedule.Summarize(items)
	fmt.Printf("%d total, %d taken, %d unchecked, %d canceled\n", sum.Total, sum.Taken, sum.Unchecked, sum.Canceled)
}

// handleCleanupCommand runs retention cleanup once and reports counts.
func handleCleanupCommand(args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file")
	data := fs.String("data", "", "Path to data directory")
	days := fs.Int("days", 0, "Retention window in days (default from config)")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath, *data)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	st, err := store.New(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	retention := cfg.Retention.Days
	if *days > 0 {
		retention = *days
	}

	result, err := st.CleanupOldData(retention)
	if err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}
	fmt.Printf("Removed %d intakes, %d notes, %d configs, %d medications\n",
		result.Intakes, result.Notes, result.Configs, result.Medications)
}

func printHelp() {
	fmt.Println(`medtab - medication reminder scheduler

Usage:
  medtab [serve] [flags]       Start the API server (default)
  medtab schedule [date]       Print the due list for a date (default today)
  medtab cleanup [-days N]     Purge history older than the retention window
  medtab version               Print version

Flags:
  -config string   Path to config file
  -data string     Path to data directory`)
}
