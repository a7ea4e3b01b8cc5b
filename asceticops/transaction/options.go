package transaction

import "time"

const (
	DefaultMaxWait = 2 * time.Second
	DefaultTimeout = 5 * time.Second
)

// InteractiveOptions configure an interactive transaction. MaxWait bounds
// the time to obtain a session, Timeout the lifetime of the transaction.
type InteractiveOptions struct {
	MaxWait        time.Duration
	Timeout        time.Duration
	IsolationLevel IsolationLevel
}

// WithDefaults fills zero durations with DefaultMaxWait and DefaultTimeout.
func (o InteractiveOptions) WithDefaults() InteractiveOptions {
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}
