package registry

import "sync"

// State is where a tracked process is in its lifecycle
type State int

const (
	Running State = iota
	RestartingOnce
	Failed
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case RestartingOnce:
		return "restarting"
	case Failed:
		return "failed"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Lifecycle is the per-process state machine:
//
//	Running -(exit)-> RestartingOnce -(restarted)-> Running -(exit)-> Failed
//
// The restarted latch is set on the first exit and never cleared, so a
// process is restarted at most once. Stop moves any state to Stopped, after
// which exits are expected and no restart happens.
type Lifecycle struct {
	mu        sync.Mutex
	state     State
	restarted bool
}

// State returns the current state
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OnExit records a process exit and returns the next state.
func (l *Lifecycle) OnExit() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.state == Stopped || l.state == Failed:
	case !l.restarted:
		l.restarted = true
		l.state = RestartingOnce
	default:
		l.state = Failed
	}
	return l.state
}

// Restarted records a successful restart. It only applies while
// RestartingOnce.
func (l *Lifecycle) Restarted() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == RestartingOnce {
		l.state = Running
	}
	return l.state
}

// Fail marks the process as failed unless it was stopped on purpose.
func (l *Lifecycle) Fail() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Stopped {
		l.state = Failed
	}
	return l.state
}

// Stop marks the process as intentionally terminated. It reports whether the
// state changed.
func (l *Lifecycle) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Stopped {
		return false
	}
	l.state = Stopped
	return true
}
