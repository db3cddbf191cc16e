package runner

import (
	"github.com/projectdiscovery/gologger"

	"github.com/projectdiscovery/mcastprobe/pkg/version"
)

const banner = `
                               __              __
   ____ ___  _________ ______/ /_____  _______/ /_  ___
  / __ '__ \/ ___/ __ '/ ___/ __/ __ \/ ___/ __ \/ _ \
 / / / / / / /__/ /_/ (__  ) /_/ /_/ / /  / /_/ /  __/
/_/ /_/ /_/\___/\__,_/____/\__/ .___/_/  /_.___/\___/
                             /_/
`

// showBanner is used to show the banner to the user
func showBanner() {
	gologger.Print().Msgf("%s", banner)
	gologger.Print().Msgf("\t\t%s %s\n\n", au.BrightCyan("mcastprobe"), au.Bold(version.Version))
}
