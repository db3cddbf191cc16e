package runner

import (
	"os"

	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/formatter"
	"github.com/projectdiscovery/gologger/levels"

	"github.com/projectdiscovery/mcastprobe/pkg/version"
)

var au *aurora.Aurora

// Options carries the raw command line values. They are not interpreted
// here: the runner replays them through the command interpreter, so the
// command line obeys exactly the same validation as the stdin command
// protocol.
type Options struct {
	Transmit bool
	Receive  bool

	Group string
	Port  string
	Iface string
	TTL   string

	Exclude string
	Include string

	Label  string
	Format goflags.StringSlice
	Data   string

	Period     string
	Multiplier string

	Join          bool
	StdinCommands bool

	Verbose     bool
	VeryVerbose bool
	Silent      bool
	NoColor     bool
	Version     bool
}

// ParseOptions parses the command line flags provided by a user
func ParseOptions() *Options {
	options := &Options{}
	flagSet := goflags.NewFlagSet()

	flagSet.SetDescription(`mcastprobe sends or receives periodic multicast probe packets to diagnose group membership and source filtering`)

	flagSet.CreateGroup("input", "Input",
		flagSet.BoolVarP(&options.Transmit, "transmit", "t", false, "send periodic probe packets to the group"),
		flagSet.BoolVarP(&options.Receive, "receive", "r", false, "receive probe packets and report up/down state"),
		flagSet.StringVarP(&options.Group, "group", "g", "", "multicast group address (v4 or v6)"),
		flagSet.StringVarP(&options.Port, "port", "p", "", "UDP port (1-65535)"),
		flagSet.StringVarP(&options.Iface, "interface", "i", "", "network interface to use"),
	)

	flagSet.CreateGroup("filter", "Source filter",
		flagSet.StringVarP(&options.Exclude, "exclude", "E", "", "exclude listed source addresses (comma separated, '-' for none)"),
		flagSet.StringVarP(&options.Include, "include", "I", "", "include only listed source addresses (comma separated, '-' for none)"),
	)

	flagSet.CreateGroup("output", "Output",
		flagSet.StringVarP(&options.Label, "label", "l", "", "label attached to every output line"),
		flagSet.StringSliceVarP(&options.Format, "format", "f", nil, "output format settings (csv, nocsv, logtime, rawtime, numtime, notime)", goflags.CommaSeparatedStringSliceOptions),
	)

	flagSet.CreateGroup("timing", "Timing",
		flagSet.StringVarP(&options.Period, "period", "P", "", "seconds between packets (0.001-60)"),
		flagSet.StringVarP(&options.Multiplier, "multiplier", "m", "", "receive timeout multiplier, timeout = period * multiplier (1.1-10)"),
		flagSet.StringVarP(&options.TTL, "ttl", "T", "", "TTL / hop limit (0-255, '-' for the OS default)"),
	)

	flagSet.CreateGroup("control", "Control",
		flagSet.StringVarP(&options.Data, "data", "d", "", "packet payload, hex:<digits> or text:<literal>"),
		flagSet.BoolVarP(&options.Join, "join", "j", false, "join the multicast group even when transmitting"),
		flagSet.BoolVarP(&options.StdinCommands, "stdin", "k", false, "read runtime commands from stdin"),
	)

	flagSet.CreateGroup("debug", "Debug",
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "report individual packet send/receive events"),
		flagSet.BoolVar(&options.VeryVerbose, "vv", false, "report up/down transitions alongside per-packet events"),
		flagSet.BoolVar(&options.Silent, "silent", false, "show only the event output stream"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable output content coloring (ANSI escape codes)"),
		flagSet.BoolVar(&options.Version, "version", false, "show version of the project"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	// configure aurora for logging
	au = aurora.New(aurora.WithColors(true))

	options.configureOutput()

	showBanner()

	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", version.Version)
		os.Exit(0)
	}

	return options
}

// configureOutput configures the output on the screen
func (options *Options) configureOutput() {
	// If the user desires verbose output, show verbose output
	if options.Verbose || options.VeryVerbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	if options.NoColor {
		gologger.DefaultLogger.SetFormatter(formatter.NewCLI(true))
		au = aurora.New(aurora.WithColors(false))
	}
	if options.Silent {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	}
}
