package runner

import (
	"context"
	"os"
	"time"

	"github.com/projectdiscovery/gologger"
	errorutil "github.com/projectdiscovery/utils/errors"
	"github.com/rs/xid"

	"github.com/projectdiscovery/mcastprobe/pkg/command"
	"github.com/projectdiscovery/mcastprobe/pkg/mcast"
	"github.com/projectdiscovery/mcastprobe/pkg/report"
	"github.com/projectdiscovery/mcastprobe/pkg/session"
)

// Runner contains the internal logic of the program
type Runner struct {
	options *Options
	cfg     *session.Config
	id      string
}

// NewRunner builds the session configuration from the parsed options and
// validates it. The option values go through the same interpreter as stdin
// commands.
func NewRunner(options *Options) (*Runner, error) {
	cfg := session.NewConfig()
	cfg.ImpliedDirection = session.DirectionFromExecutable(os.Args[0])
	cfg.Direction = cfg.ImpliedDirection

	in := command.NewInterpreter(cfg)
	in.Notify = func(s string) { gologger.Info().Msgf("%s", s) }
	if err := replayOptions(in, options); err != nil {
		return nil, err
	}
	cfg.RecomputeTiming()

	if cfg.Direction == session.DirectionUnset {
		return nil, errorutil.New("am I sending or receiving? specify -transmit or -receive")
	}
	if cfg.IfaceName == "" {
		return nil, errorutil.New("what network interface? specify -interface")
	}

	if err := cfg.ApplyDefaults(time.Now()); err != nil {
		return nil, err
	}
	mcast.CheckGroup(cfg.Group, cfg.Filter, true, cfg.WillJoin())

	return &Runner{options: options, cfg: cfg, id: xid.New().String()}, nil
}

// replayOptions pushes every given option through the interpreter in a
// fixed order: direction first, then addressing, then everything else.
func replayOptions(in *command.Interpreter, options *Options) error {
	replay := []struct {
		set  bool
		code byte
		arg  string
	}{
		{options.Transmit, 't', ""},
		{options.Receive, 'r', ""},
		{options.Group != "", 'g', options.Group},
		{options.Port != "", 'p', options.Port},
		{options.Iface != "", 'i', options.Iface},
		{options.TTL != "", 'T', options.TTL},
		{options.Exclude != "", 'E', options.Exclude},
		{options.Include != "", 'I', options.Include},
		{options.Label != "", 'l', options.Label},
		{options.Data != "", 'd', options.Data},
		{options.Period != "", 'P', options.Period},
		{options.Multiplier != "", 'm', options.Multiplier},
		{options.Join, 'j', ""},
		{options.StdinCommands, 'k', ""},
	}
	for _, o := range replay {
		if !o.set {
			continue
		}
		if _, err := in.Apply(command.PrefixNone, o.code, o.arg); err != nil {
			return err
		}
	}
	for _, f := range options.Format {
		if _, err := in.Apply(command.PrefixNone, 'f', f); err != nil {
			return err
		}
	}
	// -vv is the second verbosity level: per-packet events plus the
	// up/down transitions that plain -v suppresses
	levels := 0
	if options.Verbose {
		levels = 1
	}
	if options.VeryVerbose {
		levels = 2
	}
	for i := 0; i < levels; i++ {
		if _, err := in.Apply(command.PrefixNone, 'v', ""); err != nil {
			return err
		}
	}
	return nil
}

// Run opens the session socket and drives the scheduler until an exit
// command, a fatal filter failure, or context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.cfg
	gologger.Verbose().Msgf("session %s: %s on %s, group %s port %d",
		r.id, cfg.Direction, cfg.IfaceName, cfg.Group, cfg.Port)

	conn, err := mcast.NewConn(mcast.ConnConfig{
		Family:    cfg.Family,
		Group:     cfg.Group,
		Port:      cfg.Port,
		Interface: cfg.Iface,
		TTL:       cfg.TTL,
		Receive:   cfg.Direction == session.DirectionReceive,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	l := newLoop(cfg, conn.Adapter(), conn.Send, report.NewEmitter(os.Stdout))
	if cfg.Direction == session.DirectionReceive {
		l.readPackets(ctx, conn.Read)
	}
	if cfg.StdinCommands {
		l.readStdin(ctx, os.Stdin)
	}
	return l.run(ctx)
}

// Close releases nothing today; the socket lives within Run.
func (r *Runner) Close() {}
