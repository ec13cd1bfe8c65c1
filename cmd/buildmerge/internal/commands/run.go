package commands

import (
	"cmp"
	"context"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/buildmerge/internal/compose"
)

// RunCmd picks the mode from the lifecycle event that launched it, so
// `npm run build` builds and everything else serves.
type RunCmd struct {
	ProjectFlags `embed:""`

	Event          string `help:"lifecycle event selecting the mode (build selects build mode)" default:"" env:"BUILDMERGE_EVENT"`
	LifecycleEvent string `help:"lifecycle event set by npm" default:"" env:"npm_lifecycle_event" hidden:""`
}

// event is the first non-empty signal, so an exported but empty
// BUILDMERGE_EVENT does not hide the npm lifecycle event.
func (c *RunCmd) event() string {
	return cmp.Or(c.Event, c.LifecycleEvent)
}

func (c *RunCmd) Run(ctx context.Context, globals *Globals) error {
	stop := setup(ctx, globals)
	defer stop()

	event := c.event()
	mode := compose.ParseMode(event)
	log.Info().Str("event", event).Str("mode", mode.String()).Msg("Selected mode")

	if mode == compose.ModeBuild {
		return build(ctx, &c.ProjectFlags)
	}
	return serve(ctx, &c.ProjectFlags)
}
