package commands

import (
	"github.com/urfave/cli/v3"
)

// New builds the reanalyze command tree
func New() *cli.Command {
	return &cli.Command{
		Name:  "reanalyze",
		Usage: "administer reanalysis jobs over stored posts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to config file"},
			&cli.StringFlag{Name: "env", Usage: "path to .env file", Value: ".env"},
		},
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "queue a manual reanalysis job",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "actor", Usage: "who is triggering the job", Required: true},
					&cli.StringSliceFlag{Name: "tool", Usage: "restrict the rewrite to this tool id (repeatable)"},
					&cli.StringFlag{Name: "from", Usage: "earliest publish time (RFC 3339 or YYYY-MM-DD)"},
					&cli.StringFlag{Name: "to", Usage: "latest publish time (RFC 3339 or YYYY-MM-DD)"},
					&cli.IntFlag{Name: "batch-size", Usage: "documents per batch (default from config)"},
					&cli.StringFlag{Name: "reason", Usage: "free-form note stored on the job"},
				},
				Action: CreateAction,
			},
			{
				Name:  "list",
				Usage: "list jobs, oldest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "queued, running, completed, failed or cancelled"},
					&cli.IntFlag{Name: "limit", Usage: "maximum number of jobs"},
					&cli.IntFlag{Name: "offset", Usage: "jobs to skip"},
				},
				Action: ListAction,
			},
			{
				Name:      "status",
				Usage:     "show a job's persisted snapshot",
				ArgsUsage: "<job-id>",
				Action:    StatusAction,
			},
			{
				Name:      "cancel",
				Usage:     "request cancellation of a queued or running job",
				ArgsUsage: "<job-id>",
				Action:    CancelAction,
			},
			{
				Name:  "seed",
				Usage: "insert sample posts into the SQLite content store",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Usage: "number of posts", Value: 500},
					&cli.IntFlag{Name: "days", Usage: "spread publish times over this many days", Value: 30},
					&cli.Uint64Flag{Name: "seed", Usage: "random seed", Value: 1},
				},
				Action: SeedAction,
			},
		},
	}
}
