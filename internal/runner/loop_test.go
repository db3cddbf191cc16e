package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/projectdiscovery/mcastprobe/pkg/mcast"
	"github.com/projectdiscovery/mcastprobe/pkg/report"
	"github.com/projectdiscovery/mcastprobe/pkg/session"
)

var testStart = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

func newTestLoop(dir session.Direction, adapter mcast.Adapter, send func([]byte) error, out io.Writer) *loop {
	cfg := session.NewConfig()
	cfg.Direction = dir
	cfg.Group = netip.MustParseAddr("224.1.1.1")
	cfg.Data = []byte{0}
	cfg.Format = report.Format{Time: report.TimeNone, Label: "lab"}
	if send == nil {
		send = func([]byte) error { return nil }
	}
	if out == nil {
		out = io.Discard
	}
	l := newLoop(cfg, adapter, send, report.NewEmitter(out))
	l.now = func() time.Time { return testStart }
	return l
}

type scriptedAdapter struct {
	calls   int
	failOn  map[int]bool
	filters []mcast.Filter
}

func (a *scriptedAdapter) ApplyFilter(f mcast.Filter) error {
	a.calls++
	if a.failOn[a.calls] {
		return errors.New("scripted failure")
	}
	a.filters = append(a.filters, f.Clone())
	return nil
}

func TestTransmitCadence(t *testing.T) {
	var sends int
	l := newTestLoop(session.DirectionTransmit, nil, func([]byte) error {
		sends++
		return nil
	}, nil)

	clock := testStart
	l.last = clock.Add(-l.cfg.PeriodDur)
	end := clock.Add(5 * time.Second)
	for !clock.After(end) {
		wait, forever := l.step(clock)
		if forever {
			t.Fatal("transmit step reported no deadline")
		}
		if wait <= 0 {
			t.Fatalf("wait = %v after acting", wait)
		}
		clock = clock.Add(wait)
	}
	// sends at 0s,1s,...,5s
	if sends != 6 {
		t.Errorf("sends = %d over 5s at 1s period, want 6", sends)
	}
}

func TestReceiveDownExactlyOnce(t *testing.T) {
	var out bytes.Buffer
	l := newTestLoop(session.DirectionReceive, nil, nil, &out)
	l.up = true
	l.last = testStart

	if wait, forever := l.step(testStart.Add(2 * time.Second)); forever || wait != time.Second {
		t.Fatalf("before timeout: wait %v forever %v", wait, forever)
	}
	if _, forever := l.step(testStart.Add(3 * time.Second)); !forever {
		t.Fatal("after timeout the loop should wait for packets only")
	}
	if l.up {
		t.Fatal("still up after timeout")
	}
	// long idle does not repeat the transition
	l.step(testStart.Add(10 * time.Second))
	l.step(testStart.Add(20 * time.Second))
	if n := strings.Count(out.String(), "no longer receiving packets on lab"); n != 1 {
		t.Errorf("down reported %d times, want 1\n%s", n, out.String())
	}
}

func TestReceivePacketTransitionsUp(t *testing.T) {
	var out bytes.Buffer
	l := newTestLoop(session.DirectionReceive, nil, nil, &out)

	l.handlePacket(packetEvent{n: 8})
	if !l.up {
		t.Fatal("packet did not bring the state up")
	}
	if l.last != testStart {
		t.Errorf("last = %v, want packet time", l.last)
	}
	l.handlePacket(packetEvent{n: 8})
	if n := strings.Count(out.String(), "started receiving packets on lab"); n != 1 {
		t.Errorf("up reported %d times, want 1", n)
	}
}

func TestReaderContinuesAfterReadError(t *testing.T) {
	l := newTestLoop(session.DirectionReceive, nil, nil, nil)

	calls := 0
	read := func([]byte) (int, error) {
		calls++
		switch calls {
		case 1:
			return 0, errors.New("recvfrom: no buffer space available")
		case 2:
			return 8, nil
		default:
			return 0, net.ErrClosed
		}
	}
	l.readPackets(context.Background(), read)

	ev := <-l.packetCh
	if ev.err == nil {
		t.Fatal("first read should have failed")
	}
	ev = <-l.packetCh
	if ev.err != nil || ev.n != 8 {
		t.Fatalf("read after error: n %d err %v", ev.n, ev.err)
	}
	l.handlePacket(ev)
	if !l.up {
		t.Fatal("packet after a read error did not bring the state up")
	}
	// a closed socket ends the reader
	ev = <-l.packetCh
	if !errors.Is(ev.err, net.ErrClosed) {
		t.Fatalf("final event err = %v, want closed connection", ev.err)
	}
	if calls != 3 {
		t.Errorf("read calls = %d, want 3", calls)
	}
}

func TestBackwardClockResyncs(t *testing.T) {
	l := newTestLoop(session.DirectionTransmit, nil, nil, nil)
	l.last = testStart.Add(time.Hour) // the clock jumped backwards

	wait, forever := l.step(testStart)
	if forever {
		t.Fatal("no deadline returned")
	}
	if wait != l.cfg.PeriodDur {
		t.Errorf("wait = %v, want full period after resync", wait)
	}
	if !l.last.Equal(testStart) {
		t.Errorf("reference not resynced: %v", l.last)
	}
}

func TestDrainCommandsDispatch(t *testing.T) {
	l := newTestLoop(session.DirectionTransmit, nil, nil, nil)
	l.cfg.StdinCommands = true
	l.filterPending = false

	if err := l.buf.Feed([]byte("-P 0.5\n-E 1.1.1.1\n.x\n-v\n")); err != nil {
		t.Fatal(err)
	}
	l.drainCommands()

	if !l.timingDirty {
		t.Error("-P did not mark timing dirty")
	}
	if !l.filterPending {
		t.Error("-E did not mark the filter pending")
	}
	if !l.exit {
		t.Error(".x did not request exit")
	}
	// nothing after the exit command runs
	if l.cfg.Verbose != 0 {
		t.Error("command after .x was executed")
	}
}

func TestDisableCommandsDropsRest(t *testing.T) {
	l := newTestLoop(session.DirectionTransmit, nil, nil, nil)
	l.cfg.StdinCommands = true

	if err := l.buf.Feed([]byte("+k\n-v\n")); err != nil {
		t.Fatal(err)
	}
	l.drainCommands()

	if l.cfg.StdinCommands {
		t.Fatal("+k did not disable command input")
	}
	if l.cfg.Verbose != 0 {
		t.Error("buffered command ran after +k")
	}
	if _, ok := l.buf.Next(); ok {
		t.Error("line buffer not cleared after +k")
	}
}

func TestCommandLinesAreEchoed(t *testing.T) {
	var out bytes.Buffer
	l := newTestLoop(session.DirectionTransmit, nil, nil, &out)
	l.cfg.StdinCommands = true

	// even a rejected command is echoed before it is judged
	if err := l.buf.Feed([]byte("-z\n")); err != nil {
		t.Fatal(err)
	}
	l.drainCommands()
	if !strings.Contains(out.String(), "received command for lab -z") {
		t.Errorf("command not echoed: %q", out.String())
	}
}

func TestRunExitsOnCommand(t *testing.T) {
	l := newTestLoop(session.DirectionTransmit, nil, nil, nil)
	l.cfg.StdinCommands = true
	l.cfg.Period = 60
	l.cfg.RecomputeTiming()
	l.now = time.Now

	go func() {
		l.stdinCh <- []byte(".x\n")
		close(l.stdinCh)
	}()

	if err := l.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunStdinEOFDisablesCommands(t *testing.T) {
	l := newTestLoop(session.DirectionTransmit, nil, nil, nil)
	l.cfg.StdinCommands = true
	l.cfg.Period = 60
	l.cfg.RecomputeTiming()
	l.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.run(ctx) }()

	close(l.stdinCh)
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if l.cfg.StdinCommands {
		t.Error("stdin EOF did not disable command input")
	}
}

func TestRunFatalOnFirstFilterFailure(t *testing.T) {
	adapter := &scriptedAdapter{failOn: map[int]bool{1: true}}
	l := newTestLoop(session.DirectionReceive, adapter, nil, nil)
	l.now = time.Now

	if err := l.run(context.Background()); err == nil {
		t.Fatal("first filter failure should be fatal")
	}
	if adapter.calls != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.calls)
	}
}

func TestRunRecoversFromLaterFilterFailure(t *testing.T) {
	adapter := &scriptedAdapter{failOn: map[int]bool{2: true}}
	l := newTestLoop(session.DirectionReceive, adapter, nil, nil)
	l.cfg.StdinCommands = true
	l.cfg.Period = 60
	l.cfg.RecomputeTiming()
	l.now = time.Now

	done := make(chan error, 1)
	go func() { done <- l.run(context.Background()) }()

	// the unbuffered channel orders each chunk before the next loop pass
	l.stdinCh <- []byte("-E 1.1.1.1\n")
	l.stdinCh <- []byte(".x\n")
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	// initial apply, failed change, successful rollback re-apply
	if adapter.calls != 3 {
		t.Errorf("adapter calls = %d, want 3", adapter.calls)
	}
	if got := l.cfg.Filter; got.Mode != mcast.ModeExclude || len(got.Sources) != 0 {
		t.Errorf("desired filter not rolled back: %v %q", got.Mode, got.Sources.String())
	}
}
