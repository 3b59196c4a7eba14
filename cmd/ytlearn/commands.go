package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/learn"
	"github.com/anatolykoptev/go_learn/internal/toolutil"
)

var jsonFlag = &cli.BoolFlag{Name: "json", Usage: "Print the raw result as JSON"}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Generate summary, key points and quiz for a video or transcript",
		ArgsUsage: "<url|video-id|text>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read pasted transcript text from `FILE`"},
			&cli.StringFlag{Name: "quiz-out", Usage: "Write the quiz as JSON to `FILE`"},
			jsonFlag,
		},
		Action: withService(func(c *cli.Context, svc *learn.Service) error {
			input, err := inputArg(c)
			if err != nil {
				return err
			}
			out, err := svc.Process(c.Context, input)
			if err != nil {
				return failure(err)
			}
			if path := c.String("quiz-out"); path != "" && out.Result != nil && len(out.Quiz) > 0 {
				if err := writeQuiz(path, out.Quiz); err != nil {
					return err
				}
				fmt.Fprintf(c.App.ErrWriter, "quiz written to %s\n", path)
			}
			if c.Bool("json") {
				return toolutil.WriteJSON(c.App.Writer, out)
			}
			renderOutput(c.App.Writer, out)
			if out.Result != nil && !out.Complete() {
				return cli.Exit("", 2)
			}
			return nil
		}),
	}
}

func transcriptCommand() *cli.Command {
	return &cli.Command{
		Name:      "transcript",
		Usage:     "Fetch or clean a transcript",
		ArgsUsage: "<url|video-id|text>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read pasted transcript text from `FILE`"},
			&cli.BoolFlag{Name: "segments", Usage: "Keep caption timing in JSON output"},
			jsonFlag,
		},
		Action: withService(func(c *cli.Context, svc *learn.Service) error {
			input, err := inputArg(c)
			if err != nil {
				return err
			}
			tr, err := svc.AcquireTranscript(c.Context, input)
			if err != nil {
				return failure(err)
			}
			if c.Bool("json") {
				return toolutil.WriteJSON(c.App.Writer, toolutil.StripSegments(tr, c.Bool("segments")))
			}
			fmt.Fprintf(c.App.ErrWriter, "%s (%s, %d words)\n", tr.ContentID, tr.Source, engine.WordCount(tr.Text))
			fmt.Fprintln(c.App.Writer, tr.Text)
			return nil
		}),
	}
}

func tracksCommand() *cli.Command {
	return &cli.Command{
		Name:      "tracks",
		Usage:     "List caption tracks of a video",
		ArgsUsage: "<url|video-id>",
		Flags:     []cli.Flag{jsonFlag},
		Action: withService(func(c *cli.Context, svc *learn.Service) error {
			tracks, err := svc.TranscriptInfo(c.Context, c.Args().First())
			if err != nil {
				return failure(err)
			}
			if c.Bool("json") {
				return toolutil.WriteJSON(c.App.Writer, tracks)
			}
			for _, t := range tracks {
				kind := "manual"
				if t.IsGenerated {
					kind = "auto"
				}
				fmt.Fprintf(c.App.Writer, "%-8s %-6s %s\n", t.LanguageCode, kind, t.Language)
			}
			return nil
		}),
	}
}

func usageCommand() *cli.Command {
	return &cli.Command{
		Name:  "usage",
		Usage: "Show API key usage for today",
		Flags: []cli.Flag{jsonFlag},
		Action: withService(func(c *cli.Context, svc *learn.Service) error {
			u := svc.UsageStats()
			if c.Bool("json") {
				return toolutil.WriteJSON(c.App.Writer, u)
			}
			renderUsage(c.App.Writer, u, time.Now())
			return nil
		}),
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the content cache",
		Subcommands: []*cli.Command{
			{
				Name:      "status",
				Usage:     "Show cached entry counts, or whether one entry is fully cached",
				ArgsUsage: "[url|video-id|content-id]",
				Action: withService(func(c *cli.Context, svc *learn.Service) error {
					st := svc.CacheStatus(c.Context)
					fmt.Fprintf(c.App.Writer, "enabled=%t redis=%t transcripts=%d summaries=%d keypoints=%d quizzes=%d\n",
						st.Enabled, st.Redis, st.Transcript, st.Summary, st.KeyPoints, st.Quiz)
					if id := c.Args().First(); id != "" {
						cached, err := svc.IsCached(c.Context, id)
						if err != nil {
							return failure(err)
						}
						fmt.Fprintf(c.App.Writer, "%s cached=%t\n", id, cached)
					}
					return nil
				}),
			},
			{
				Name:      "clear",
				Usage:     "Remove cached artifacts for one entry, or all of them",
				ArgsUsage: "[url|video-id|content-id]",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "all", Usage: "Remove every cached entry"}},
				Action: withService(func(c *cli.Context, svc *learn.Service) error {
					id := c.Args().First()
					if !c.Bool("all") && id == "" {
						return cli.Exit("pass an id or --all", 1)
					}
					if c.Bool("all") {
						id = ""
					}
					n, err := svc.ClearCache(c.Context, id)
					if err != nil {
						return failure(err)
					}
					fmt.Fprintf(c.App.Writer, "removed %d entries\n", n)
					return nil
				}),
			},
		},
	}
}

// inputArg joins positional args, or reads --file when given.
func inputArg(c *cli.Context) (string, error) {
	if path := c.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", cli.Exit(err.Error(), 1)
		}
		return string(data), nil
	}
	input := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(input) == "" {
		return "", cli.Exit("input is required", 1)
	}
	return input, nil
}

func failure(err error) error {
	return cli.Exit(formatFailure(engine.FailureOf(err, time.Now())), 1)
}

func writeQuiz(path string, quiz []learn.QuizQuestion) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toolutil.WriteJSON(f, quiz); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
