// Package main provides the autoplay daemon and its command-line client.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/jz315/autoplay/internal/config"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "autoplay: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "autoplay"
	app.HelpName = "autoplay"
	app.Usage = "play audio files at scheduled times"
	app.UsageText = "autoplay <command> [arguments...]"
	app.Version = version
	app.Before = func(c *cli.Context) error {
		if dir := c.String("workdir"); dir != "" {
			if err := os.Chdir(dir); err != nil {
				return fmt.Errorf("failed to enter %s: %w", dir, err)
			}
		}
		return config.LoadDotEnv()
	}
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "addr",
			Usage:  "daemon RPC address (host:port or URL)",
			EnvVar: "RPC_ADDR",
			Value:  "127.0.0.1:6780",
		},
		cli.StringFlag{
			Name:   "secret",
			Usage:  "daemon RPC bearer token",
			EnvVar: "RPC_SECRET",
		},
		cli.StringFlag{
			Name:  "workdir",
			Usage: "change to `DIR` before reading .env and state",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "daemon",
			Usage:  "run the scheduler in the foreground",
			Action: daemon,
		},
		{
			Name:      "add",
			Aliases:   []string{"a"},
			Usage:     "schedule a media file",
			ArgsUsage: "<YYYY-MM-DD> <HH:MM> <media>",
			Action:    add,
		},
		{
			Name:      "delete",
			Aliases:   []string{"rm"},
			Usage:     "delete the pending event at the given list index",
			ArgsUsage: "<index>",
			Action:    remove,
		},
		{
			Name:    "list",
			Aliases: []string{"l"},
			Usage:   "display pending events in playback order",
			Action:  list,
		},
		{
			Name:  "holiday",
			Usage: "manage holidays",
			Subcommands: []cli.Command{
				{
					Name:      "set",
					Usage:     "mark a date as a holiday",
					ArgsUsage: "<YYYY-MM-DD>",
					Action:    holidaySet,
				},
				{
					Name:      "list",
					Usage:     "list the holidays of a year",
					ArgsUsage: "[year]",
					Action:    holidayList,
				},
			},
		},
		{
			Name:   "status",
			Usage:  "show what the worker is doing",
			Action: status,
		},
		{
			Name:   "stats",
			Usage:  "show daemon counters",
			Action: stats,
		},
		{
			Name:   "stop",
			Usage:  "ask the daemon to shut down",
			Action: stop,
		},
		{
			Name:   "install",
			Usage:  "start the daemon at login, in the current directory",
			Action: install,
		},
		{
			Name:   "uninstall",
			Usage:  "remove the login entry",
			Action: uninstall,
		},
		{
			Name:  "update",
			Usage: "install the latest release",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "check", Usage: "only report whether an update exists"},
				cli.BoolFlag{Name: "restart", Usage: "restart a running daemon after updating"},
			},
			Action: update,
		},
	}
	return app
}
