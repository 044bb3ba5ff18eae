package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/pkg/client"
)

const callTimeout = 10 * time.Second

// withClient runs fn against the daemon named by the global flags
func withClient(c *cli.Context, fn func(ctx context.Context, rc *client.Client) error) error {
	rc := client.NewClient(c.GlobalString("addr"), c.GlobalString("secret"), nil)
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	err := fn(ctx, rc)
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		return cli.NewExitError("rejected: "+ve.Reason, 2)
	}
	return err
}

func printWarning(c *cli.Context, warning string) {
	if warning != "" {
		fmt.Fprintf(c.App.ErrWriter, "warning: %s\n", warning)
	}
}

func add(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.ShowCommandHelp(c, c.Command.Name)
	}
	args := c.Args()
	return withClient(c, func(ctx context.Context, rc *client.Client) error {
		res, err := rc.Add(ctx, args.Get(0), args.Get(1), args.Get(2))
		if err != nil {
			return err
		}
		printWarning(c, res.Warning)
		fmt.Fprintf(c.App.Writer, "scheduled #%d %s %s %s (%s)\n",
			res.Event.Index, res.Event.Date, res.Event.Time, res.Event.Media, humanize.Time(res.Event.Due))
		return nil
	})
}

func remove(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowCommandHelp(c, c.Command.Name)
	}
	index, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("invalid index %q", c.Args().First()), 2)
	}
	return withClient(c, func(ctx context.Context, rc *client.Client) error {
		res, err := rc.Delete(ctx, index)
		if err != nil {
			return err
		}
		printWarning(c, res.Warning)
		fmt.Fprintf(c.App.Writer, "deleted #%d\n", index)
		return nil
	})
}

func list(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, rc *client.Client) error {
		events, err := rc.List(ctx)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(c.App.Writer, "no pending events")
			return nil
		}

		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tDATE\tTIME\tMEDIA\tDUE")
		for _, ev := range events {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", ev.Index, ev.Date, ev.Time, ev.Media, humanize.Time(ev.Due))
		}
		return tw.Flush()
	})
}

func holidaySet(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowCommandHelp(c, c.Command.Name)
	}
	return withClient(c, func(ctx context.Context, rc *client.Client) error {
		res, err := rc.SetHoliday(ctx, c.Args().First())
		if err != nil {
			return err
		}
		printWarning(c, res.Warning)
		fmt.Fprintf(c.App.Writer, "holiday set: %s\n", c.Args().First())
		return nil
	})
}

func holidayList(c *cli.Context) error {
	year := 0
	if c.NArg() > 0 {
		y, err := strconv.Atoi(c.Args().First())
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("invalid year %q", c.Args().First()), 2)
		}
		year = y
	}
	return withClient(c, func(ctx context.Context, rc *client.Client) error {
		res, err := rc.Holidays(ctx, year)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%d holidays in %d\n", len(res.Dates), res.Year)
		for _, d := range res.Dates {
			fmt.Fprintln(c.App.Writer, d)
		}
		return nil
	})
}

func status(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, rc *client.Client) error {
		st, err := rc.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "worker:  %s (running=%t)\n", st.State, st.Running)
		fmt.Fprintf(c.App.Writer, "pending: %d\n", st.QueueDepth)
		if st.Target != nil {
			fmt.Fprintf(c.App.Writer, "next:    %s %s %s (%s)\n",
				st.Target.Date, st.Target.Time, st.Target.Media, humanize.Time(st.Target.Due))
		}
		if st.Debug {
			fmt.Fprintln(c.App.Writer, "debug:   on")
		}
		return nil
	})
}

func stats(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, rc *client.Client) error {
		m, err := rc.Stats(ctx)
		if err != nil {
			return err
		}
		w := c.App.Writer
		fmt.Fprintf(w, "uptime:          %s\n", m.Uptime.Round(time.Second))
		fmt.Fprintf(w, "events added:    %s\n", humanize.Comma(m.EventsAdded))
		fmt.Fprintf(w, "events deleted:  %s\n", humanize.Comma(m.EventsDeleted))
		reasons := make([]string, 0, len(m.EventsRejected))
		for reason := range m.EventsRejected {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(w, "rejected (%s): %d\n", reason, m.EventsRejected[reason])
		}
		fmt.Fprintf(w, "playbacks:       %d started, %d completed, %d failed, %d stopped\n",
			m.PlaybacksStarted, m.PlaybacksCompleted, m.PlaybacksFailed, m.PlaybacksStopped)
		if !m.LastPlayback.IsZero() {
			fmt.Fprintf(w, "last playback:   %s\n", humanize.Time(m.LastPlayback))
		}
		fmt.Fprintf(w, "save errors:     %d\n", m.PersistenceErrors)
		fmt.Fprintf(w, "holiday errors:  %d\n", m.HolidayFetchErrors)
		return nil
	})
}

func stop(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, rc *client.Client) error {
		if err := rc.Shutdown(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "shutdown requested")
		return nil
	})
}
