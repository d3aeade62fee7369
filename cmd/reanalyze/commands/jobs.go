package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
)

// CreateAction queues a manual job
func CreateAction(ctx context.Context, cmd *cli.Command) error {
	from, err := parseTime(cmd.String("from"))
	if err != nil {
		return err
	}
	to, err := parseTime(cmd.String("to"))
	if err != nil {
		return err
	}

	req := &models.CreateJobRequest{
		DateFrom:    from,
		DateTo:      to,
		ToolIDs:     cmd.StringSlice("tool"),
		TriggerType: models.TriggerManual,
		TriggeredBy: cmd.String("actor"),
		Reason:      cmd.String("reason"),
	}
	if cmd.IsSet("batch-size") {
		size := int(cmd.Int("batch-size"))
		req.BatchSize = &size
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	res, err := appCtx.JobService.CreateJob(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, map[string]any{
		"job_id":          res.Job.ID,
		"status":          res.Job.Status,
		"estimated_total": res.EstimatedTotal,
	})
}

// ListAction prints a page of jobs
func ListAction(ctx context.Context, cmd *cli.Command) error {
	filter := models.ListJobsFilter{
		Limit:  int(cmd.Int("limit")),
		Offset: int(cmd.Int("offset")),
	}
	if raw := cmd.String("status"); raw != "" {
		status, ok := models.ParseJobStatus(raw)
		if !ok {
			return fmt.Errorf("unknown status %q", raw)
		}
		filter.Status = &status
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	jobs, err := appCtx.JobService.ListJobs(ctx, filter)
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	return printJSON(cmd.Root().Writer, jobs)
}

// StatusAction prints one job
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	id, err := jobIDArg(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	job, err := appCtx.JobService.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, job)
}

// CancelAction flags a job for cancellation
func CancelAction(ctx context.Context, cmd *cli.Command) error {
	id, err := jobIDArg(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	job, err := appCtx.JobService.CancelJob(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, job)
}

func jobIDArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", errors.New("expected exactly one job id")
	}
	return cmd.Args().First(), nil
}
