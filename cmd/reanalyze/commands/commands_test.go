package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/detector"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("REANALYZE_CONFIG", "")

	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
log:
  level: error
database:
  path: %s
content:
  sqlite_path: %s
detector:
  tools:
    - id: cursor
      keywords: ["cursor"]
`, filepath.Join(dir, "jobs.db"), filepath.Join(dir, "posts.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := New()
	cmd.Writer = &out
	cmd.ErrWriter = &out
	err := cmd.Run(context.Background(), append([]string{"reanalyze"}, args...))
	return out.String(), err
}

func TestCLI_JobLifecycle(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, "--config", cfg, "seed", "--count", "12")
	require.NoError(t, err, out)
	assert.JSONEq(t, `{"inserted":12}`, out)

	out, err = runCLI(t, "--config", cfg, "create", "--actor", "admin", "--tool", "cursor", "--batch-size", "5")
	require.NoError(t, err, out)
	var created struct {
		JobID          string           `json:"job_id"`
		Status         models.JobStatus `json:"status"`
		EstimatedTotal int64            `json:"estimated_total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, models.StatusQueued, created.Status)
	assert.Equal(t, int64(12), created.EstimatedTotal)

	out, err = runCLI(t, "--config", cfg, "status", created.JobID)
	require.NoError(t, err, out)
	var job models.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, created.JobID, job.ID)
	assert.Equal(t, 5, job.Parameters.BatchSize)
	assert.Equal(t, []string{"cursor"}, job.Parameters.ToolIDs)

	out, err = runCLI(t, "--config", cfg, "list", "--status", "queued")
	require.NoError(t, err, out)
	var jobs []models.Job
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	assert.Len(t, jobs, 1)

	out, err = runCLI(t, "--config", cfg, "cancel", created.JobID)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.True(t, job.CancelRequested)
}

func TestCLI_Errors(t *testing.T) {
	cfg := writeConfig(t)

	_, err := runCLI(t, "--config", cfg, "status")
	assert.Error(t, err)

	_, err = runCLI(t, "--config", cfg, "status", "missing")
	assert.Error(t, err)

	_, err = runCLI(t, "--config", cfg, "list", "--status", "pending")
	assert.Error(t, err)

	_, err = runCLI(t, "--config", cfg, "create", "--actor", "admin", "--from", "yesterday")
	assert.Error(t, err)

	_, err = runCLI(t, "--config", cfg, "seed", "--count", "0")
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTime("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseTime("2025-03-01T12:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), *got)

	_, err = parseTime("03/01/2025")
	assert.Error(t, err)
}

func TestSamplePost(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 0))
	tools := []detector.Tool{{ID: "cursor", Keywords: []string{"cursor"}}}

	mentioned := 0
	for i := 0; i < 200; i++ {
		if strings.Contains(samplePost(rng, tools), "cursor") {
			mentioned++
		}
	}
	assert.Greater(t, mentioned, 0)
	assert.Less(t, mentioned, 200)

	assert.NotContains(t, samplePost(rng, nil), "Tried")
}
