package eventlog

import (
	"github.com/samber/do/v2"

	"github.com/foxseedlab/rdhours/internal/config"
	"github.com/foxseedlab/rdhours/internal/eventlog"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (eventlog.Source, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewCSVSource(c.EventLogPath, c.EventLogLocale), nil
	})
}
