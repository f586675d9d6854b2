package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signal-backtest/internal/pricestore"
	"github.com/wonny/signal-backtest/internal/scheduler"
	"github.com/wonny/signal-backtest/internal/scheduler/jobs"
	"github.com/wonny/signal-backtest/pkg/config"
	"github.com/wonny/signal-backtest/pkg/logger"
	"github.com/wonny/signal-backtest/pkg/redis"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduled back-test presets",
	Long: `Runs the back-test presets from PRESETS_FILE on their cron schedule.

Subcommands:
  start   - start the scheduler daemon
  list    - list registered jobs
  run     - run one job now and wait for it

Example:
  go run ./cmd/sigbt scheduler start
  go run ./cmd/sigbt scheduler list
  go run ./cmd/sigbt scheduler run backtest_presets`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler and registers:
- backtest_presets: every preset of PRESETS_FILE (default weekdays 18:00)
- stats_refresh: every 5 minutes (drops the cached table summary)

Stop with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// schedulerRuntime is a scheduler plus the resources its jobs hold
type schedulerRuntime struct {
	sched   *scheduler.Scheduler
	presets *jobs.PresetJob
	close   func()
}

func runScheduler(cmd *cobra.Command, args []string) error {
	rt, err := initScheduler(cmd.Context())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.close()

	rt.sched.Start()

	PrintSuccess("Scheduler started")
	fmt.Println("\nRegistered jobs:")
	PrintList(rt.sched.GetAllJobs())
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	rt.sched.Stop()
	printStats(rt.sched.GetJobStats())
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	rt, err := initScheduler(cmd.Context())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.close()

	stats := rt.sched.GetJobStats()
	fmt.Println("Registered jobs:")
	for _, name := range rt.sched.GetAllJobs() {
		fmt.Printf("  - %-18s %s\n", name, stats[name].Schedule)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	rt, err := initScheduler(cmd.Context())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.close()

	fmt.Printf("Running job: %s\n", jobName)

	result, err := rt.sched.RunJobNow(cmd.Context(), jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if jobName == rt.presets.Name() {
		printOutcomes(rt.presets.Outcomes())
	}

	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %s: %s", jobName, result.Duration.Round(time.Millisecond), result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}

func printOutcomes(outcomes map[string]jobs.PresetOutcome) {
	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	PrintSeparator()
	for _, name := range names {
		o := outcomes[name]
		switch {
		case o.Result != nil:
			PrintKeyValue(name, fmt.Sprintf("return %s, %d observations",
				o.Result.TotalReturn.StringFixed(2), o.Result.NumObservations), 20)
		case o.Skipped:
			PrintKeyValue(name, "rejected: "+o.Error, 20)
		default:
			PrintKeyValue(name, "failed: "+o.Error, 20)
		}
	}
	PrintSeparator()
}

func printStats(stats map[string]scheduler.JobStats) {
	for jobName, stat := range stats {
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format(time.DateTime))
		}
		fmt.Println()
	}
}

func initScheduler(ctx context.Context) (*schedulerRuntime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	presetFile, err := jobs.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return nil, err
	}

	store, err := pricestore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open price store: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	closeAll := func() {
		redisClient.Close()
		store.Close()
	}

	engine, err := newEngine(cfg, store, log)
	if err != nil {
		closeAll()
		return nil, err
	}

	sched := scheduler.New(log)
	presets := jobs.NewPresetJob(presetFile, engine, log)
	for _, job := range []scheduler.Job{
		presets,
		jobs.NewStatsRefreshJob(store, redis.NewCache(redisClient, keyPrefix), log),
	} {
		if err := sched.AddJob(job); err != nil {
			closeAll()
			return nil, err
		}
	}

	logStartup(log, cfg, len(presetFile.Presets))
	return &schedulerRuntime{sched: sched, presets: presets, close: closeAll}, nil
}

func logStartup(log *logger.Logger, cfg *config.Config, presets int) {
	log.WithFields(map[string]interface{}{
		"presets_file": cfg.PresetsFile,
		"presets":      presets,
		"store":        cfg.StoreDriver,
	}).Info("Scheduler initialized")
}
