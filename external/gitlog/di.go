package gitlog

import (
	"github.com/samber/do/v2"

	"github.com/foxseedlab/rdhours/internal/config"
	"github.com/foxseedlab/rdhours/internal/gitlog"
	"github.com/foxseedlab/rdhours/internal/timeparse"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (gitlog.Source, error) {
		c := do.MustInvoke[*config.Config](i)
		if len(c.GitRepositories) == 0 {
			return gitlog.Disabled{}, nil
		}
		parser := do.MustInvoke[*timeparse.Parser](i)
		return NewCLISource(c.GitRepositories, c.GitAuthor, parser), nil
	})
}
