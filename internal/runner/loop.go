package runner

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/projectdiscovery/gologger"

	"github.com/projectdiscovery/mcastprobe/pkg/command"
	"github.com/projectdiscovery/mcastprobe/pkg/mcast"
	"github.com/projectdiscovery/mcastprobe/pkg/report"
	"github.com/projectdiscovery/mcastprobe/pkg/session"
)

// packetEvent is one socket read result forwarded to the loop.
type packetEvent struct {
	n   int
	err error
}

// loop is the session scheduler. One goroutine owns the configuration, the
// filter transaction, and the command buffer; reader goroutines only move
// bytes onto channels, so no locking is needed.
type loop struct {
	cfg      *session.Config
	interp   *command.Interpreter
	trans    *session.FilterTransaction
	adapter  mcast.Adapter
	send     func([]byte) error
	emitter  *report.Emitter
	throttle *session.Throttle

	buf      *command.LineBuffer
	stdinCh  chan []byte
	packetCh chan packetEvent

	now func() time.Time

	filterPending bool
	timingDirty   bool
	up            bool
	last          time.Time
	exit          bool
}

func newLoop(cfg *session.Config, adapter mcast.Adapter, send func([]byte) error, emitter *report.Emitter) *loop {
	l := &loop{
		cfg:      cfg,
		trans:    session.NewFilterTransaction(),
		adapter:  adapter,
		send:     send,
		emitter:  emitter,
		throttle: session.NewThrottle(),
		buf:      command.NewLineBuffer(0),
		stdinCh:  make(chan []byte),
		packetCh: make(chan packetEvent),
		now:      time.Now,
		// the first iteration installs the initial membership and filter
		filterPending: true,
	}
	l.interp = command.NewInterpreter(cfg)
	l.interp.Notify = func(s string) { l.emit(report.EventNote, s) }
	return l
}

func (l *loop) emit(evt report.Event, extra string) {
	l.emitter.Emit(l.cfg.Format, l.cfg.Verbose, evt, extra)
}

// readStdin feeds stdin bytes to the loop. The channel is closed on EOF or
// read error, which the loop treats as an implicit command-input shutdown.
func (l *loop) readStdin(ctx context.Context, r io.Reader) {
	go func() {
		defer close(l.stdinCh)
		for {
			chunk := make([]byte, 512)
			n, err := r.Read(chunk)
			if n > 0 {
				select {
				case l.stdinCh <- chunk[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					gologger.Error().Msgf("treating error on stdin (%s) as implicit +k", err)
				}
				return
			}
		}
	}()
}

// readPackets forwards socket reads to the loop, one packetEvent per
// datagram. Read errors are forwarded too (the loop reports and throttles
// them) and reading continues; only a closed socket or context
// cancellation ends the reader.
func (l *loop) readPackets(ctx context.Context, read func([]byte) (int, error)) {
	go func() {
		buf := make([]byte, 65536)
		for {
			n, err := read(buf)
			select {
			case l.packetCh <- packetEvent{n: n, err: err}:
			case <-ctx.Done():
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
		}
	}()
}

// run is the main loop: recompute timing when dirty, push pending filter
// changes, act on any due deadline, then block for input or the next
// deadline.
func (l *loop) run(ctx context.Context) error {
	// make the first periodic send due immediately
	l.last = l.now().Add(-l.cfg.PeriodDur)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for !l.exit {
		if l.timingDirty {
			l.timingDirty = false
			l.cfg.RecomputeTiming()
		}

		if l.filterPending {
			if !l.cfg.WillJoin() {
				// a transmitter without the join flag holds no membership
				l.filterPending = false
			} else {
				retry, err := l.trans.Apply(l.adapter, l.cfg)
				if err != nil {
					return err
				}
				if retry {
					// the desired state was rolled back; re-apply it now
					continue
				}
				l.filterPending = false
			}
		}

		wait, forever := l.step(l.now())

		var timerCh <-chan time.Time
		if !forever {
			timer.Reset(wait)
			timerCh = timer.C
		}
		var stdin chan []byte
		if l.cfg.StdinCommands {
			stdin = l.stdinCh
		}

		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-stdin:
			if !ok {
				gologger.Error().Msgf("end of command input: implicit +k")
				l.cfg.StdinCommands = false
				l.stdinCh = nil
				l.buf.Reset()
				break
			}
			if err := l.buf.Feed(chunk); err != nil {
				gologger.Error().Msgf("%s", err)
			}
			l.drainCommands()
		case pkt := <-l.packetCh:
			l.handlePacket(pkt)
		case <-timerCh:
			// deadline reached; the next step call performs the action
		}
		timer.Stop()
	}
	gologger.Info().Msgf("exiting on command")
	return nil
}

// step performs any action already due at now and returns how long the
// loop may block before the next deadline. forever means there is none (a
// down receiver just waits for packets). Negative elapsed time means the
// clock went backwards: clamp and resync so the loop neither spins nor
// stalls.
func (l *loop) step(now time.Time) (wait time.Duration, forever bool) {
	elapsed := now.Sub(l.last)
	if elapsed < 0 {
		l.last = now
		elapsed = 0
	}

	if l.cfg.Direction == session.DirectionReceive {
		if !l.up {
			return 0, true
		}
		if elapsed >= l.cfg.Timeout {
			l.up = false
			l.emit(report.EventDown, "")
			return 0, true
		}
		return l.cfg.Timeout - elapsed, false
	}

	if elapsed >= l.cfg.PeriodDur {
		if err := l.send(l.cfg.Data); err != nil {
			gologger.Error().Msgf("send failed: %s", err)
		} else {
			l.emit(report.EventTX, "")
		}
		l.last = now
		return l.cfg.PeriodDur, false
	}
	return l.cfg.PeriodDur - elapsed, false
}

func (l *loop) handlePacket(pkt packetEvent) {
	if pkt.err != nil {
		gologger.Error().Msgf("receive failed: %s", pkt.err)
		l.throttle.Hit()
		return
	}
	l.last = l.now()
	l.emit(report.EventRX, "")
	if !l.up {
		l.up = true
		l.emit(report.EventUp, "")
	}
}

// drainCommands runs every fully buffered command line through the
// interpreter and dispatches the resulting actions.
func (l *loop) drainCommands() {
	for l.cfg.StdinCommands {
		line, ok := l.buf.Next()
		if !ok {
			return
		}
		l.emit(report.EventCommand, line)
		act, err := l.interp.Command(line)
		if err != nil {
			gologger.Error().Msgf("%s", err)
			continue
		}
		switch act {
		case command.ActionSourceChange:
			mcast.CheckGroup(l.cfg.Group, l.cfg.Filter, false, l.cfg.WillJoin())
			l.filterPending = true
			l.trans.MarkPending()
		case command.ActionTimingChange:
			l.timingDirty = true
		case command.ActionExit:
			l.exit = true
			return
		}
		if !l.cfg.StdinCommands {
			// command input was just switched off; drop whatever is left
			l.buf.Reset()
			return
		}
	}
}
