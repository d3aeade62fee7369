package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/detector"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
)

var fillers = []string{
	"Spent the afternoon refactoring a legacy service.",
	"Anyone else fighting flaky CI today?",
	"Code review went better than expected.",
	"Pair programming session was surprisingly productive.",
	"Still no idea why the build cache keeps missing.",
}

// SeedAction inserts sample posts mentioning the configured tools
func SeedAction(ctx context.Context, cmd *cli.Command) error {
	count := int(cmd.Int("count"))
	days := int(cmd.Int("days"))
	if count <= 0 || days <= 0 {
		return errors.New("count and days must be positive")
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	store, ok := appCtx.Stores.SQLiteContent()
	if !ok {
		return errors.New("seed only supports the sqlite content driver")
	}

	rng := rand.New(rand.NewPCG(cmd.Uint64("seed"), 0))
	now := time.Now().UTC()
	span := time.Duration(days) * 24 * time.Hour

	for i := 0; i < count; i++ {
		doc := &models.Document{
			PublishedAt:     now.Add(-time.Duration(rng.Int64N(int64(span)))),
			Content:         samplePost(rng, appCtx.Config.Detector.Tools),
			DetectedToolIDs: []string{},
		}
		if err := store.InsertDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to insert post %d: %w", i, err)
		}
	}

	appCtx.Logger.Info("seeded posts", "count", count, "days", days)
	return printJSON(cmd.Root().Writer, map[string]any{"inserted": count})
}

// samplePost returns filler text, mentioning one configured tool about half the time
func samplePost(rng *rand.Rand, tools []detector.Tool) string {
	text := fillers[rng.IntN(len(fillers))]
	if len(tools) == 0 || rng.IntN(2) == 0 {
		return text
	}
	tool := tools[rng.IntN(len(tools))]
	if len(tool.Keywords) == 0 {
		return text
	}
	return fmt.Sprintf("%s Tried %s for it.", text, tool.Keywords[rng.IntN(len(tool.Keywords))])
}
