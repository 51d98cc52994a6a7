package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/scheduler"
	"github.com/rcliao/meridian/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on its cron schedules",
		Long: "Run intake, scoring, analysis and digest assembly as independent cron jobs " +
			"(schedule.* in the config) until interrupted.",
		Run: runServe,
	}

	cmd.Flags().Bool("run-now", false, "Run every job once before waiting for the schedule")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	runNow, _ := cmd.Flags().GetBool("run-now")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(ctx)
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context, *store.SQLiteStore) (model.RunReport, error)
	}{
		{"intake", cfg.Schedule.Intake, intakeOnce},
		{"score", cfg.Schedule.Score, scoreOnce},
		{"analyze", cfg.Schedule.Analyze, analyzeOnce},
		{"digest", cfg.Schedule.Digest, digestToday},
	}
	for _, j := range jobs {
		run := j.run
		err := sched.Register(j.name, j.schedule, func(ctx context.Context) (model.RunReport, error) {
			return run(ctx, s)
		})
		if err != nil {
			exitErr("serve", err)
		}
	}

	if runNow {
		for _, j := range jobs {
			if j.schedule != "" {
				sched.RunNow(j.name)
			}
		}
	}

	sched.Start()
	logger.Log.Info("serving; press Ctrl-C to stop")
	<-ctx.Done()
	sched.Stop()
	printJSON(sched.Statuses())
}
