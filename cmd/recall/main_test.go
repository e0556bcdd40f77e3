package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/recall/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runQueryApp(t *testing.T, args ...string) (search.Request, error) {
	t.Helper()

	var captured search.Request
	app := &cli.App{
		Name: "recall",
		Commands: []*cli.Command{
			{
				Name:  "search",
				Flags: queryFlags(),
				Action: func(c *cli.Context) error {
					var err error
					captured, err = buildRequest(c)
					return err
				},
			},
		},
	}
	err := app.Run(append([]string{"recall"}, args...))
	return captured, err
}

func TestBuildRequest(t *testing.T) {
	t.Run("parses callers and filters", func(t *testing.T) {
		req, err := runQueryApp(t, "search",
			"--caller", "slack:U123",
			"--caller", "gdrive:alice@example.com",
			"--source", "slack",
			"--path-prefix", "/eng",
			"--limit", "5",
			"how", "do", "deploys", "work")
		require.NoError(t, err)

		assert.Equal(t, "how do deploys work", req.Query)
		assert.Equal(t, 5, req.Limit)
		assert.Equal(t, []string{"slack"}, req.Filters.Sources)
		assert.Equal(t, "/eng", req.Filters.PathPrefix)
		require.Len(t, req.Callers, 2)
		assert.Equal(t, "slack", req.Callers[0].Provider)
		assert.Equal(t, "alice@example.com", req.Callers[1].ExternalID)
	})

	t.Run("rejects malformed caller", func(t *testing.T) {
		_, err := runQueryApp(t, "search", "--caller", "no-separator", "query")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "provider:external_id")
	})

	t.Run("anonymous request has no callers", func(t *testing.T) {
		req, err := runQueryApp(t, "search", "public", "question")
		require.NoError(t, err)
		assert.Empty(t, req.Callers)
	})
}

func TestReadEvents(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.json")
		payload := `[{"source":"slack","external_id":"C1/m1","content":"hello","event_time":"2026-08-01T10:00:00Z","acl":{"public":true}}]`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

		events, err := readEvents(path)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "slack", events[0].Source)
		assert.Equal(t, "C1/m1", events[0].ExternalID)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readEvents(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		_, err := readEvents(path)
		assert.Error(t, err)
	})

	t.Run("empty array", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.json")
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
		_, err := readEvents(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no events")
	})
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one line", firstLine("one line"))
	assert.Equal(t, "first", firstLine("first\nsecond"))

	long := strings.Repeat("x", 200)
	assert.Len(t, []rune(firstLine(long)), 161)
}

func TestSetupRejectsInvalidLogLevel(t *testing.T) {
	app := &cli.App{
		Name: "recall",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Before: setup,
		Action: func(c *cli.Context) error { return nil },
	}

	err := app.Run([]string{"recall", "--log-level", "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
