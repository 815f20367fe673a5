package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curator/internal/formatter"
	"github.com/desertthunder/curator/internal/models"
)

// UnmatchedList prints library files that are not bound to a catalog track, with any stored suggestion.
func (r *Runner) UnmatchedList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	criteria := map[string]any{"limit": cmd.Int("limit")}
	if id := cmd.Int64("library"); id > 0 {
		criteria["library_id"] = id
	}
	if cmd.IsSet("suggested") {
		criteria["suggested"] = cmd.Bool("suggested")
	}

	list, err := r.deps.Unmatched.List(ctx, criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if list == nil {
			list = []*models.UnmatchedTrack{}
		}
		return r.writeJSON(list, true)
	}
	return r.writeBytes(formatter.UnmatchedToText(list))
}
