package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/netlog/eventbus"
	"github.com/pithecene-io/netlog/jsonenc"
	"github.com/pithecene-io/netlog/log"
	"github.com/pithecene-io/netlog/observer"
	"github.com/pithecene-io/netlog/types"
)

// TailCommand returns the tail command. It drives an in-process Observer
// against a synthetic or file-replayed event source, demonstrating the
// rotation/stitch behavior end to end without a daemon or a real bus.
func TailCommand() *cli.Command {
	return &cli.Command{
		Name:  "tail",
		Usage: "Replay events through an in-process Observer and report the result",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "Final log path", Value: "netlog-tail.json"},
			&cli.StringFlag{Name: "source", Usage: "Newline-delimited JSON file to replay; omit for synthetic events"},
			&cli.Int64Flag{Name: "max-total-size", Usage: "Disk budget in bytes; 0 for unbounded", Value: 0},
			&cli.IntFlag{Name: "chunk-count", Usage: "Chunk ring size", Value: observer.DefaultChunkCount},
			&cli.IntFlag{Name: "count", Usage: "Number of synthetic events to emit (ignored with --source)", Value: 20},
			&cli.DurationFlag{Name: "rate", Usage: "Delay between events", Value: 10 * time.Millisecond},
		},
		Action: tailAction,
	}
}

func tailAction(c *cli.Context) error {
	maxTotalSize := c.Int64("max-total-size")
	if maxTotalSize <= 0 {
		maxTotalSize = observer.Unbounded
	}

	bus := eventbus.New()
	obs := observer.New(observer.Config{
		FinalLogPath: c.String("out"),
		MaxTotalSize: maxTotalSize,
		ChunkCount:   c.Int("chunk-count"),
		Constants:    map[string]any{"source": "netlogctl tail"},
		Encoder:      jsonenc.Encoder,
		Logger:       log.NewLogger("netlogctl-tail"),
	})

	if err := obs.StartObserving(bus, types.CaptureModeDefault); err != nil {
		return cli.Exit(fmt.Sprintf("start observing: %v", err), 1)
	}

	rate := c.Duration("rate")
	if source := c.String("source"); source != "" {
		if err := replayFile(bus, source, rate); err != nil {
			obs.Close()
			return cli.Exit(err.Error(), 1)
		}
	} else {
		emitSynthetic(bus, c.Int("count"), rate)
	}

	obs.StopObserving(nil, func() {})
	obs.Close()

	fmt.Fprintf(c.App.Writer, "wrote %s\n", c.String("out"))
	return nil
}

func replayFile(bus *eventbus.Bus, path string, rate time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var value any
		if err := json.Unmarshal(line, &value); err != nil {
			return fmt.Errorf("parse line in %s: %w", path, err)
		}
		bus.Publish(types.EntryFunc(func() any { return value }))
		if rate > 0 {
			time.Sleep(rate)
		}
	}
	return scanner.Err()
}

func emitSynthetic(bus *eventbus.Bus, count int, rate time.Duration) {
	for i := range count {
		n := i
		bus.Publish(types.EntryFunc(func() any {
			return map[string]any{"seq": n, "message": "synthetic event"}
		}))
		if rate > 0 {
			time.Sleep(rate)
		}
	}
}
