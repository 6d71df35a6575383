package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/netlog/cli/render"
	"github.com/pithecene-io/netlog/writer"
)

// ShapeReport describes the structure of a log file without requiring an
// Observer to be running.
type ShapeReport struct {
	Path          string   `json:"path"`
	InProgress    bool     `json:"in_progress"`
	Keys          []string `json:"keys,omitempty"`
	EventCount    int      `json:"event_count"`
	HasPolledData bool     `json:"has_polled_data"`
}

// InspectCommand returns the inspect command.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Report the shape of a finished (or in-progress placeholder) log file",
		ArgsUsage: "<file>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("file path required", 1)
	}
	path := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := inspectFile(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	return r.Render(report)
}

func inspectFile(path string) (*ShapeReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if string(data) == writer.PlaceholderText {
		return &ShapeReport{Path: path, InProgress: true}, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := &ShapeReport{
		Path:          path,
		Keys:          keys,
		HasPolledData: doc["polledData"] != nil,
	}

	if rawEvents, ok := doc["events"]; ok {
		var events []json.RawMessage
		if err := json.Unmarshal(rawEvents, &events); err != nil {
			return nil, fmt.Errorf("parse %s: events field is not an array: %w", path, err)
		}
		report.EventCount = len(events)
	}

	return report, nil
}
