package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsSync/internal/collect"
	"github.com/TobiSchelling/NewsSync/internal/config"
	"github.com/TobiSchelling/NewsSync/internal/logger"
	"github.com/TobiSchelling/NewsSync/internal/pipeline"
	"github.com/TobiSchelling/NewsSync/internal/schedule"
	"github.com/TobiSchelling/NewsSync/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	envFile    string
	cfg        *config.Config
	log        logger.Logger = logger.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "newssync",
	Short:        "Scheduled news ingestion and enrichment",
	Long:         "newssync collects articles from RSS/Atom feeds and NewsAPI, summarizes and tags them with an LLM, and keeps the article store in sync with the sources.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := loadEnv(cmd); err != nil {
			return err
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(logger.Config{Level: level, Format: cfg.Logging.Format})
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load environment variables from this file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadEnv reads the env file. A missing default file is ignored.
func loadEnv(cmd *cobra.Command) error {
	err := godotenv.Load(envFile)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
		return nil
	}
	return fmt.Errorf("loading env file: %w", err)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newssync", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newssync/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, the vocabulary and the LLM provider.")
		return nil
	},
}

// --- sync command ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync: fetch -> dedupe -> enrich -> persist -> reconcile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		result, err := app.pipeline.Run(ctx)
		if err != nil {
			return err
		}
		pipeline.RenderSummary(os.Stdout, result)
		return nil
	},
}

// --- collect command ---

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch all sources and show what a sync would see, without writing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		collector := collect.NewCollector(collect.SourcesFromConfig(cfg, log), log)
		result, err := collector.Collect(ctx)
		if err != nil {
			return err
		}
		unique := collect.Dedupe(result.Articles)

		bySource := make(map[string]int)
		for _, a := range unique {
			bySource[a.SourceID]++
		}
		ids := make([]string, 0, len(bySource))
		for id := range bySource {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Source", "Articles"})
		for _, id := range ids {
			t.AppendRow(table.Row{id, bySource[id]})
		}
		t.AppendFooter(table.Row{"Unique", len(unique)})
		t.Render()
		fmt.Printf("%d fetched, %d duplicates dropped\n", result.Fetched, result.Fetched-len(unique))
		return nil
	},
}

// --- schedule command ---

var runNow bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run sync on the configured schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		sched, err := schedule.New(cfg.Schedule.Cron, func(ctx context.Context) error {
			result, err := app.pipeline.Run(ctx)
			if err != nil {
				if pipeline.IsLockHeld(err) {
					log.Warn("Skipping run: another sync is in progress")
					return nil
				}
				return err
			}
			pipeline.RenderSummary(os.Stdout, result)
			return nil
		}, log)
		if err != nil {
			return err
		}

		if runNow {
			sched.RunNow()
		}
		sched.Start()
		fmt.Printf("Scheduled %q, next run %s. Press Ctrl+C to stop.\n",
			cfg.Schedule.Cron, sched.Next(time.Now()).Format(time.RFC1123))

		<-ctx.Done()
		sched.Stop()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&runNow, "now", false, "Run once immediately before waiting for the schedule")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored article counts and the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.SetTitle("Stored articles")
		t.AppendHeader(table.Row{"Category", "Articles"})
		for _, c := range stats.ByCategory {
			t.AppendRow(table.Row{c.Category, c.Count})
		}
		t.AppendFooter(table.Row{"Total", stats.Total})
		t.Render()

		last, err := db.LastRunReport(ctx)
		if err != nil {
			return err
		}
		if last == nil {
			fmt.Println("\nNo sync run recorded yet. Run 'newssync sync'.")
			return nil
		}
		fmt.Printf("\nLast run %s (%s)\n", last.RunID, last.State)
		fmt.Printf("  Finished: %s (%s)\n", last.FinishedAt.Local().Format(time.RFC1123),
			last.FinishedAt.Sub(last.StartedAt).Round(time.Millisecond))
		fmt.Printf("  Fetched %d, unique %d, saved %d, removed %d, errors %d\n",
			last.Fetched, last.UniqueArticles, last.Persisted, last.Removed, last.Errors)
		return nil
	},
}

// --- check command ---

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity to the store, LLM provider and sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		results := runChecks(ctx, cfg, log)
		renderChecks(os.Stdout, results)

		if failed := countFailed(results); failed > 0 {
			return fmt.Errorf("%d of %d checks failed", failed, len(results))
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		vocab, err := vocabulary(cfg)
		if err != nil {
			return err
		}
		srv, err := server.New(db, vocab, log)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.Serve(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}
