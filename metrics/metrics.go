package metrics

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	Add(delta float64)
}

type Factory interface {
	CreateCounter(name string, description string) (Counter, error)

	Start() error

	Stop() error
}

// NewNoopFactory returns a factory whose counters discard every update,
// used when metrics are disabled.
func NewNoopFactory() Factory {
	return &noopFactory{}
}

type noopFactory struct{}

func (f *noopFactory) CreateCounter(name string, description string) (Counter, error) {
	return &noopCounter{}, nil
}

func (f *noopFactory) Start() error { return nil }

func (f *noopFactory) Stop() error { return nil }

type noopCounter struct{}

func (c *noopCounter) Inc() {}

func (c *noopCounter) Add(delta float64) {}
