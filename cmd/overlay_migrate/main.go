package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dgnsrekt/tv_overlay/internal/chart"
	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
	"github.com/dgnsrekt/tv_overlay/internal/savestore"
)

var dbFlag = &cli.StringFlag{
	Name:    "db",
	Aliases: []string{"d"},
	Usage:   "buntdb file holding layouts and legacy entries",
	Value:   "./data/overlay.db",
	EnvVars: []string{"OVERLAY_DB_PATH"},
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("overlay_migrate failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "overlay_migrate",
		HelpName: "overlay_migrate",
		Usage:    "Migrate legacy pixel-space overlays and export saved layouts",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Convert legacy overlay entries into the default layout",
				Flags: []cli.Flag{
					dbFlag,
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "run even if the migration marker is set",
					},
					&cli.Int64Flag{
						Name:  "from",
						Usage: "viewport start (ms) used to convert pixel points",
					},
					&cli.Int64Flag{
						Name:  "to",
						Usage: "viewport end (ms) used to convert pixel points; defaults to now",
					},
					&cli.Float64Flag{
						Name:  "min-price",
						Usage: "price at the bottom of the viewport",
						Value: 0,
					},
					&cli.Float64Flag{
						Name:  "max-price",
						Usage: "price at the top of the viewport",
						Value: 100,
					},
					&cli.Float64Flag{
						Name:  "width",
						Usage: "chart width in pixels",
						Value: 1280,
					},
					&cli.Float64Flag{
						Name:  "height",
						Usage: "chart height in pixels",
						Value: 720,
					},
				},
				Action: runMigrate,
			},
			{
				Name:  "seed",
				Usage: "Store legacy entries from a JSON object of key to overlay JSON",
				Flags: []cli.Flag{
					dbFlag,
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "eg. ./legacy.json",
						Required: true,
					},
				},
				Action: runSeed,
			},
			{
				Name:  "export",
				Usage: "Write a saved layout's drawings as JSON",
				Flags: []cli.Flag{
					dbFlag,
					&cli.StringFlag{
						Name:    "layout",
						Aliases: []string{"l"},
						Value:   savestore.DefaultLayout,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "eg. ./drawings.json (default stdout)",
					},
				},
				Action: runExport,
			},
			{
				Name:   "reset",
				Usage:  "Clear the migration marker so the next migrate runs again",
				Flags:  []cli.Flag{dbFlag},
				Action: runReset,
			},
		},
	}
}

func runMigrate(c *cli.Context) error {
	store, err := savestore.OpenBunt(c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	to := c.Int64("to")
	if to == 0 {
		to = time.Now().UnixMilli()
	}
	from := c.Int64("from")
	if from == 0 {
		from = to - int64(24*time.Hour/time.Millisecond)
	}
	if from >= to {
		return fmt.Errorf("--from (%d) must be before --to (%d)", from, to)
	}
	v := renderer.NewVirtual(
		renderer.Size{Width: c.Float64("width"), Height: c.Float64("height")},
		renderer.Viewport{FromTime: from, ToTime: to, MinPrice: c.Float64("min-price"), MaxPrice: c.Float64("max-price")},
	)

	inst := chart.New(chart.Config{Name: "migrate", Renderer: v, Scheduler: frame.NewManual(), Store: store})
	defer inst.Dispose()
	if err := inst.Ready(c.Context); err != nil {
		return err
	}
	res, err := inst.Migrate(c.Context, store, c.Bool("force"))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, res)
}

func runSeed(c *cli.Context) error {
	data, err := os.ReadFile(c.String("input"))
	if err != nil {
		return err
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%s: %w", c.String("input"), err)
	}

	store, err := savestore.OpenBunt(c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := store.PutLegacy(c.Context, k, string(entries[k])); err != nil {
			return err
		}
	}
	slog.Info("legacy entries stored", "count", len(keys), "db", c.String("db"))
	return nil
}

func runExport(c *cli.Context) error {
	store, err := savestore.OpenBunt(c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.LoadLayout(c.Context, c.String("layout"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return writeJSON(out, snap.Drawings)
}

func runReset(c *cli.Context) error {
	store, err := savestore.OpenBunt(c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()
	return store.ClearMigrationMarker(c.Context)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
