package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/memo/internal"
	"github.com/starford/memo/internal/memo"
	"github.com/starford/memo/internal/models"
)

// withRepository loads config, opens the backend with stderr logging and
// hands the repository to fn.
func withRepository(cmd *cli.Command, fn func(repo *memo.Repository) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	backend, err := internal.OpenBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(backend.Repo)
}

// contentArg joins the positional arguments from index from, or reads stdin
// when there are none.
func contentArg(cmd *cli.Command, from int) (string, error) {
	args := cmd.Args().Slice()
	if len(args) > from {
		return strings.Join(args[from:], " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func handleArg(cmd *cli.Command) (models.Handle, error) {
	if cmd.Args().Len() == 0 {
		return models.Handle{}, errors.New("missing memo handle")
	}
	return models.ParseHandle(cmd.Args().First())
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Create a memo from the arguments or stdin",
		ArgsUsage: "[text...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			content, err := contentArg(cmd, 0)
			if err != nil {
				return err
			}
			return withRepository(cmd, func(repo *memo.Repository) error {
				h, err := repo.Create(ctx, content)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(os.Stdout, h)
				return err
			})
		},
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Replace a memo's content from the arguments or stdin",
		ArgsUsage: "<handle> [text...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			h, err := handleArg(cmd)
			if err != nil {
				return err
			}
			content, err := contentArg(cmd, 1)
			if err != nil {
				return err
			}
			return withRepository(cmd, func(repo *memo.Repository) error {
				return repo.Update(ctx, h, content)
			})
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a memo",
		ArgsUsage: "<handle>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			h, err := handleArg(cmd)
			if err != nil {
				return err
			}
			return withRepository(cmd, func(repo *memo.Repository) error {
				content, loadErr := repo.Load(ctx, &h)
				if _, err := fmt.Fprint(os.Stdout, content); err != nil {
					return err
				}
				return loadErr
			})
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "ls",
		Aliases: []string{"list"},
		Usage:   "List memos, most recently modified first",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withRepository(cmd, func(repo *memo.Repository) error {
				recs, err := repo.List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "HANDLE\tMODIFIED\tTITLE")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\n",
						r.Handle(),
						r.DateModified.Local().Format(time.DateTime),
						strings.ReplaceAll(r.Title, "\n", " "))
				}
				return tw.Flush()
			})
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Report files without records and records without files",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withRepository(cmd, func(repo *memo.Repository) error {
				rep, err := repo.Audit(ctx)
				if err != nil {
					return err
				}
				w := os.Stdout
				if rep.Clean() {
					_, err := fmt.Fprintln(w, "ok")
					return err
				}
				for _, p := range rep.Orphans {
					fmt.Fprintf(w, "orphan\t%s\n", p)
				}
				for _, r := range rep.Broken {
					fmt.Fprintf(w, "broken\t%s\t%s\n", r.Handle(), r.FilePath)
				}
				return nil
			})
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Delete a memo",
		ArgsUsage: "<handle>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			h, err := handleArg(cmd)
			if err != nil {
				return err
			}
			return withRepository(cmd, func(repo *memo.Repository) error {
				return repo.Delete(ctx, h)
			})
		},
	}
}
