package session

import (
	"github.com/projectdiscovery/gologger"
	errorutil "github.com/projectdiscovery/utils/errors"

	"github.com/projectdiscovery/mcastprobe/pkg/mcast"
	"github.com/projectdiscovery/mcastprobe/pkg/sourceset"
)

// FilterTransaction applies desired filter states to the multicast adapter
// and tracks the last state that was successfully installed. Keeping the
// applied state separate from the desired one means a failed application
// never corrupts the configuration: the desired state is simply rolled back
// to the last known-good one.
type FilterTransaction struct {
	applied  mcast.Filter
	critical bool
	throttle *Throttle
}

func NewFilterTransaction() *FilterTransaction {
	return &FilterTransaction{
		applied: mcast.Filter{Mode: mcast.ModeExclude, Sources: sourceset.Set{}},
		// the very first application has nothing to fall back to
		critical: true,
		throttle: NewThrottle(),
	}
}

// Applied returns the last filter state the adapter accepted.
func (t *FilterTransaction) Applied() mcast.Filter {
	return t.applied
}

// MarkPending records that a new desired filter is waiting. A failure to
// apply it is recoverable, because the previously applied state is known
// good.
func (t *FilterTransaction) MarkPending() {
	t.critical = false
}

// Apply pushes the desired filter in cfg to the adapter. On success the
// desired state becomes the applied state (deep-copied; desired keeps
// mutating). On a recoverable failure the desired state reverts to the last
// applied one and retry is true: the caller should re-run the apply on its
// next iteration. That re-application of a known-good state is itself
// critical - if even the rollback fails there is nothing sane left to do.
// A critical failure returns an error and must terminate the session.
func (t *FilterTransaction) Apply(adapter mcast.Adapter, cfg *Config) (retry bool, err error) {
	if err := adapter.ApplyFilter(cfg.Filter); err != nil {
		if t.critical {
			return false, errorutil.NewWithErr(err).Msgf("filter setting failed")
		}
		gologger.Error().Msgf("filter setting failed: %s", err)
		t.throttle.Hit()
		cfg.Filter = t.applied.Clone()
		t.critical = true
		return true, nil
	}
	t.applied = cfg.Filter.Clone()
	return false, nil
}
