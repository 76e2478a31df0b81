package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vidyasagar/surfshell/internal/app"
	"github.com/vidyasagar/surfshell/internal/browser"
	"github.com/vidyasagar/surfshell/internal/cache"
	"github.com/vidyasagar/surfshell/internal/config"
	errs "github.com/vidyasagar/surfshell/internal/errors"
	"github.com/vidyasagar/surfshell/internal/favicon"
	"github.com/vidyasagar/surfshell/internal/history"
	"github.com/vidyasagar/surfshell/internal/navigation"
	"github.com/vidyasagar/surfshell/internal/theme"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, log *zap.Logger) *cli.App {
	a := &cli.App{
		Name:      "surfshell",
		Usage:     "A terminal browsing shell with persistent history",
		Version:   Version,
		ArgsUsage: "[url]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "theme", Usage: "Color theme (" + strings.Join(theme.Names(), ", ") + ")"},
		},
		Action: browseAction(cfg, log),
		Commands: []*cli.Command{
			openCmd(cfg, log),
			historyCmd(cfg, log),
			faviconCmd(cfg, log),
			settingsCmd(cfg, log),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	a.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return a
}

// withRuntime opens the shared collaborators for the duration of fn.
func withRuntime(c *cli.Context, cfg *config.Config, log *zap.Logger, fn func(*runtime) error) error {
	rt, err := openRuntime(c.Context, cfg, log)
	if err != nil {
		return outputError(err)
	}
	defer rt.Close()
	return fn(rt)
}

func browseAction(cfg *config.Config, log *zap.Logger) cli.ActionFunc {
	return func(c *cli.Context) error {
		return withRuntime(c, cfg, log, func(rt *runtime) error {
			name := rt.settings.Theme
			if c.IsSet("theme") {
				name = c.String("theme")
			}
			if !theme.Set(name) {
				return cli.Exit(fmt.Sprintf("unknown theme %q (available: %s)", name, strings.Join(theme.Names(), ", ")), 1)
			}
			if c.IsSet("theme") && name != rt.settings.Theme {
				if err := rt.settings.SetTheme(name); err != nil {
					log.Warn("saving theme failed", zap.Error(err))
				}
			}

			surf, err := browser.NewSurface(rt.fetcher,
				browser.WithSurfaceLogger(log),
				browser.WithStyle(theme.Current.Glamour))
			if err != nil {
				return outputError(err)
			}
			defer surf.Close()

			bridge := app.NewBridge()
			resolver := rt.resolver(favicon.WithDispatcher(bridge.Dispatch))
			defer resolver.Close()

			deps := app.Deps{
				Controller: rt.controller(surf, true),
				Surface:    surf,
				History:    rt.history,
				Resolver:   resolver,
				Settings:   rt.settings,
				Bridge:     bridge,
				Log:        log,
			}
			return app.Run(c.Context, deps, c.Args().First())
		})
	}
}

func openCmd(cfg *config.Config, log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Load a page without the TUI and record the visit",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "Give up after this long"},
			&cli.BoolFlag{Name: "print", Aliases: []string{"p"}, Usage: "Print the rendered page"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("open requires exactly one URL", 1)
			}
			return withRuntime(c, cfg, log, func(rt *runtime) error {
				surf, err := browser.NewSurface(rt.fetcher, browser.WithSurfaceLogger(log), browser.WithStyle("notty"))
				if err != nil {
					return outputError(err)
				}
				defer surf.Close()

				ctrl := rt.controller(surf, false)
				done := make(chan navigation.Event, 1)
				surf.OnEvent(func(ev navigation.Event) {
					ctrl.HandleEvent(ev)
					if ev.Kind == navigation.Finished || ev.Kind == navigation.Failed {
						select {
						case done <- ev:
						default:
						}
					}
				})

				if err := ctrl.Load(c.Args().First()); err != nil {
					return outputError(err)
				}

				select {
				case ev := <-done:
					if ev.Kind == navigation.Failed {
						return outputError(ev.Err)
					}
					out := c.App.Writer
					fmt.Fprintf(out, "%s\n%s\n", ev.Title, ev.URL)
					if !rt.history.Saving() {
						fmt.Fprintln(out, "(history saving is off; visit not recorded)")
					}
					if c.Bool("print") {
						if page := surf.Page(); page != nil {
							fmt.Fprintln(out, page.Content)
						}
					}
					return nil
				case <-time.After(c.Duration("timeout")):
					return cli.Exit("timed out waiting for "+c.Args().First(), 1)
				case <-c.Context.Done():
					return c.Context.Err()
				}
			})
		},
	}
}

func historyCmd(cfg *config.Config, log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and manage visit history",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List visits, newest first",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Only visits whose title or URL contains this"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Show at most this many (0 = all)"},
				},
				Action: func(c *cli.Context) error {
					return withRuntime(c, cfg, log, func(rt *runtime) error {
						records := rt.history.Search(c.String("query"))
						if n := c.Int("limit"); n > 0 && len(records) > n {
							records = records[:n]
						}
						if c.Bool("json") {
							return outputJSON(c.App.Writer, visitsJSON(records))
						}
						return outputVisits(c.App.Writer, records)
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete one visit by id",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("delete requires a visit id", 1)
					}
					return withRuntime(c, cfg, log, func(rt *runtime) error {
						if err := rt.history.Delete(c.Context, c.Args().First()); err != nil {
							return outputError(err)
						}
						return nil
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every visit",
				Action: func(c *cli.Context) error {
					return withRuntime(c, cfg, log, func(rt *runtime) error {
						n := rt.history.Len()
						if err := rt.history.Clear(c.Context); err != nil {
							return outputError(err)
						}
						fmt.Fprintf(c.App.Writer, "cleared %d visits\n", n)
						return nil
					})
				},
			},
		},
	}
}

func faviconCmd(cfg *config.Config, log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "favicon",
		Usage:     "Fetch and describe a host's favicon",
		ArgsUsage: "<host>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("favicon requires a host", 1)
			}
			return withRuntime(c, cfg, log, func(rt *runtime) error {
				ctx, cancel := context.WithTimeout(c.Context, 15*time.Second)
				defer cancel()

				host := c.Args().First()
				r := rt.resolver()
				defer r.Close()
				img, err := r.Lookup(ctx, host)
				if err != nil {
					return outputError(err)
				}
				avg := favicon.AverageColor(img)
				b := img.Bounds()
				fmt.Fprintf(c.App.Writer, "%s %s %dx%d #%02X%02X%02X\n",
					favicon.URLFor(host), glyph(avg.R, avg.G, avg.B), b.Dx(), b.Dy(), avg.R, avg.G, avg.B)
				fmt.Fprintln(c.App.Writer, cacheSummary(rt.icons.Stats()))
				return nil
			})
		},
	}
}

func settingsCmd(cfg *config.Config, log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change persisted settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the settings file",
				Action: func(c *cli.Context) error {
					return withRuntime(c, cfg, log, func(rt *runtime) error {
						return outputJSON(c.App.Writer, rt.settings)
					})
				},
			},
			{
				Name:      "save-history",
				Usage:     "Turn history saving on or off",
				ArgsUsage: "on|off",
				Action: func(c *cli.Context) error {
					var on bool
					switch strings.ToLower(c.Args().First()) {
					case "on", "true", "yes":
						on = true
					case "off", "false", "no":
					default:
						return cli.Exit("save-history takes on or off", 1)
					}
					return withRuntime(c, cfg, log, func(rt *runtime) error {
						rt.history.SetSaving(on)
						if err := rt.settings.SetSaveHistory(on); err != nil {
							return outputError(errs.NewStorageFailure("save settings", err))
						}
						return nil
					})
				},
			},
		},
	}
}

type visitJSON struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Host      string    `json:"host"`
	VisitedAt time.Time `json:"visited_at"`
}

func visitsJSON(records []history.VisitRecord) []visitJSON {
	out := make([]visitJSON, 0, len(records))
	for _, r := range records {
		out = append(out, visitJSON{ID: r.ID, URL: r.URL, Title: r.Title, Host: r.Host, VisitedAt: r.VisitedAt})
	}
	return out
}

func outputVisits(w io.Writer, records []history.VisitRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no history")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "WHEN", "HOST", "TITLE")
	for _, r := range records {
		t.Row(r.ID, humanize.Time(r.VisitedAt), r.Host, r.Title)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func cacheSummary(s cache.Stats) string {
	return fmt.Sprintf("cache: %d entries, %s of %s, %d hits, %d misses, %d evictions",
		s.Entries, humanize.IBytes(uint64(s.Cost)), humanize.IBytes(uint64(s.MaxCost)),
		s.Hits, s.Misses, s.Evictions)
}

func glyph(r, g, b uint8) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, b))).
		Render("●")
}

// outputJSON writes indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	return cli.Exit(err.Error(), 1)
}
