package launcher

import "time"

type EventKind int

const (
	MasterStarted EventKind = iota
	MasterReady
	Started
	Finished
	Failed
)

func (k EventKind) String() string {
	switch k {
	case MasterStarted:
		return "master"
	case MasterReady:
		return "master ready"
	case Started:
		return "running"
	case Finished:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Event struct {
	Kind    EventKind
	Label   string
	Runtime time.Duration
	Err     error
}
