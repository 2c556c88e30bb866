package discord

import (
	"github.com/samber/do/v2"

	"github.com/foxseedlab/rdhours/internal/config"
	discordpkg "github.com/foxseedlab/rdhours/internal/discord"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (discordpkg.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		if !c.DiscordEnabled() {
			return DisabledClient{}, nil
		}
		return NewClient(c.DiscordToken)
	})
}
