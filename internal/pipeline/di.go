package pipeline

import (
	"github.com/samber/do/v2"

	"github.com/foxseedlab/rdhours/internal/calendar"
	"github.com/foxseedlab/rdhours/internal/config"
	"github.com/foxseedlab/rdhours/internal/conflict"
	"github.com/foxseedlab/rdhours/internal/discord"
	"github.com/foxseedlab/rdhours/internal/eventlog"
	"github.com/foxseedlab/rdhours/internal/gitlog"
	"github.com/foxseedlab/rdhours/internal/repository"
	"github.com/foxseedlab/rdhours/internal/timeparse"
	"github.com/foxseedlab/rdhours/internal/webhook"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*timeparse.Parser, error) {
		cfg := do.MustInvoke[*config.Config](i)
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		return timeparse.NewParser(loc), nil
	})
	do.Provide(injector, func(i do.Injector) (*conflict.Detector, error) {
		cfg := do.MustInvoke[*config.Config](i)
		parser := do.MustInvoke[*timeparse.Parser](i)
		return conflict.NewDetector(parser.Location(), conflict.Options{
			LongThresholdHours: cfg.OverlapLongThresholdHours,
		}), nil
	})
	do.Provide(injector, func(i do.Injector) (*Runner, error) {
		return NewRunner(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*timeparse.Parser](i),
			do.MustInvoke[*conflict.Detector](i),
			do.MustInvoke[eventlog.Source](i),
			do.MustInvoke[gitlog.Source](i),
			do.MustInvoke[calendar.Store](i),
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[discord.Client](i),
			do.MustInvoke[webhook.Sender](i),
		), nil
	})
}
