package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"sysmonitor/internal/app"
	"sysmonitor/internal/config"
	"sysmonitor/internal/settings"
	"sysmonitor/internal/storage"
	logx "sysmonitor/pkg/logx"
)

func newCLI(out io.Writer) *cli.App {
	a := cli.NewApp()
	a.Name = "sysmonitor"
	a.Usage = "runs the usage collector on a fixed post-completion interval"
	a.Version = version
	a.Writer = out
	a.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "path to config (json or yaml)",
			Value:  "./config.json",
			EnvVar: "SYSMONITOR_CONFIG",
		},
	}
	a.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the scheduler until interrupted",
			Action: runDaemon,
		},
		{
			Name:  "settings",
			Usage: "show or edit the schedule settings",
			Subcommands: []cli.Command{
				{
					Name:   "show",
					Usage:  "print the saved settings",
					Action: settingsShow,
				},
				{
					Name:   "set",
					Usage:  "change and save settings (unset flags keep their value)",
					Action: settingsSet,
					Flags: []cli.Flag{
						cli.IntFlag{Name: "hours", Usage: "interval hours (0-999)"},
						cli.IntFlag{Name: "minutes", Usage: "interval minutes (0-59)"},
						cli.IntFlag{Name: "seconds", Usage: "interval seconds (0-59)"},
						cli.StringFlag{Name: "dir, d", Usage: "target directory handed to the collector"},
						cli.IntFlag{Name: "threshold, t", Usage: "usage threshold percent (0-100)"},
						cli.BoolFlag{Name: "log-usage", Usage: "pass the usage threshold to the collector"},
						cli.BoolFlag{Name: "no-log-usage", Usage: "stop passing the usage threshold"},
					},
				},
				{
					Name:   "reset",
					Usage:  "restore the default interval and clear the directory",
					Action: settingsReset,
				},
			},
		},
		{
			Name:   "history",
			Usage:  "list recent collector runs",
			Action: history,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "limit, n", Value: 20, Usage: "number of runs to show (0 for all)"},
			},
		},
	}
	return a
}

// loadConfig reads the global --config file, falling back to defaults when it is missing.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, _, err := config.NewConfigManager(c.GlobalString("config")).Load()
	return cfg, err
}

func cliLogger() logx.Logger {
	return logx.NewConsole("warn").With(logx.String("comp", "cli"))
}

func runDaemon(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(c.GlobalString("config"))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	reason := app.StopSIGTERM
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func openSettings(c *cli.Context) (*settings.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return app.SettingsStore(cfg, cliLogger())
}

func settingsShow(c *cli.Context) error {
	st, err := openSettings(c)
	if err != nil {
		return err
	}
	v, err := st.Load()
	if err != nil {
		return err
	}
	printSettings(c.App.Writer, st, v)
	return nil
}

func settingsSet(c *cli.Context) error {
	st, err := openSettings(c)
	if err != nil {
		return err
	}
	v, err := st.Load()
	if err != nil {
		return err
	}
	if c.IsSet("hours") {
		v.Hours = c.Int("hours")
	}
	if c.IsSet("minutes") {
		v.Minutes = c.Int("minutes")
	}
	if c.IsSet("seconds") {
		v.Seconds = c.Int("seconds")
	}
	if c.IsSet("dir") {
		v.TargetDirectory = c.String("dir")
	}
	if c.IsSet("threshold") {
		v.UsageThreshold = c.Int("threshold")
	}
	if c.Bool("log-usage") && c.Bool("no-log-usage") {
		return errors.New("--log-usage and --no-log-usage are mutually exclusive")
	}
	if c.Bool("log-usage") {
		v.LogUsageChecked = true
	}
	if c.Bool("no-log-usage") {
		v.LogUsageChecked = false
	}
	if err := st.Save(v); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "settings saved")
	printSettings(c.App.Writer, st, v)
	return nil
}

func settingsReset(c *cli.Context) error {
	st, err := openSettings(c)
	if err != nil {
		return err
	}
	v, err := st.Reset()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "settings reset")
	printSettings(c.App.Writer, st, v)
	return nil
}

func printSettings(w io.Writer, st *settings.Store, v settings.Values) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "path\t%s\n", st.Path())
	fmt.Fprintf(tw, "interval\t%02d:%02d:%02d (%s)\n", v.Hours, v.Minutes, v.Seconds, v.Interval())
	dir := v.TargetDirectory
	if dir == "" {
		dir = "(collector default)"
	}
	fmt.Fprintf(tw, "target directory\t%s\n", dir)
	threshold := "off"
	if v.LogUsageChecked {
		threshold = fmt.Sprintf("%d%%", v.UsageThreshold)
	}
	fmt.Fprintf(tw, "usage threshold\t%s\n", threshold)
	_ = tw.Flush()
}

func history(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sc, enabled, err := app.StorageConfig(cfg)
	if err != nil {
		return err
	}
	if !enabled {
		return errors.New("run history is disabled (storage.driver is empty or none)")
	}
	st, err := storage.Open(sc, cliLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runs, err := st.RecentRuns(ctx, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.App.Writer, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tCYCLE\tSTATUS\tEXIT\tTOOK\tPID\tERROR")
	for _, r := range runs {
		errText := r.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%d\t%s\n",
			r.FinishedAt.Local().Format(time.DateTime), r.Cycle, r.Status, r.ExitCode,
			(time.Duration(r.TookMS) * time.Millisecond).String(), r.PID, strings.TrimSpace(errText))
	}
	return tw.Flush()
}
