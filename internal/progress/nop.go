package progress

// Nop counts progress without rendering anything.
type Nop struct {
	tracker *Tracker
}

// NewNop returns a silent reporter.
func NewNop() *Nop {
	return &Nop{tracker: NewTracker()}
}

func (n *Nop) Start(total int) { n.tracker.Start(total) }
func (n *Nop) Advance()        { _ = n.tracker.Advance() }
func (n *Nop) Finish()         { n.tracker.Finish() }

// Err reports ErrOverAdvance if the reporter was advanced past its total.
func (n *Nop) Err() error { return n.tracker.Err() }

// Snapshot returns the tracked state.
func (n *Nop) Snapshot() Snapshot { return n.tracker.Snapshot() }
