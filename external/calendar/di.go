package calendar

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/foxseedlab/rdhours/internal/calendar"
	"github.com/foxseedlab/rdhours/internal/config"
	"github.com/foxseedlab/rdhours/internal/timeparse"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (calendar.Store, error) {
		c := do.MustInvoke[*config.Config](i)
		if !c.CalendarEnabled() {
			return calendar.Disabled{}, nil
		}
		parser := do.MustInvoke[*timeparse.Parser](i)
		return NewGoogleStore(context.Background(), GoogleConfig{
			CalendarID:      c.GoogleCalendarID,
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
		}, parser)
	})
}
