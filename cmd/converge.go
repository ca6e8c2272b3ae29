package cmd

import (
	"context"
	"fmt"
	"os"

	"grimm.is/converge/internal/clock"
	"grimm.is/converge/internal/converge"
	"grimm.is/converge/internal/dashboard"
	"grimm.is/converge/internal/logging"
	"grimm.is/converge/internal/metrics"
)

// RunConverge loads the attributes, declares the dashboard resources and
// converges the host. With DryRun it only reports what would change.
func RunConverge(ctx context.Context, o *Options) error {
	logger, err := setupLogging(o)
	if err != nil {
		return err
	}
	_, err = convergeOnce(ctx, o, logger)
	return err
}

func convergeOnce(ctx context.Context, o *Options, logger *logging.Logger) (*converge.Report, error) {
	tree, err := loadTree(o, logger)
	if err != nil {
		return nil, err
	}
	coll, s, err := dashboard.Compile(tree, dashboard.Options{Clock: clock.Real, Logger: logger.WithComponent("dashboard")})
	if err != nil {
		return nil, fmt.Errorf("invalid attributes: %w", err)
	}

	h, err := o.hostFor(s.Family)
	if err != nil {
		return nil, err
	}

	reg := metrics.New()
	runner := converge.New(h,
		converge.WithLogger(logger.WithComponent("runner")),
		converge.WithClock(clock.Real),
		converge.WithMetrics(reg),
		converge.WithDryRun(o.DryRun),
	)
	report, runErr := runner.Run(ctx, coll)
	if report == nil {
		return nil, runErr
	}

	if err := report.WriteText(o.out()); err != nil {
		return report, err
	}
	if o.ReportFile != "" {
		if err := writeReport(o.ReportFile, report); err != nil {
			logger.Error("Failed to write report", "path", o.ReportFile, "error", err)
		}
	}
	if o.MetricsFile != "" {
		if err := reg.WriteTextfile(o.MetricsFile); err != nil {
			logger.Error("Failed to write metrics", "path", o.MetricsFile, "error", err)
		}
	}
	return report, runErr
}

func writeReport(path string, report *converge.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
