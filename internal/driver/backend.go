package driver

// Backend turns a State into real light output. Apply receives the
// full state on every change; backends decide what actually moved.
type Backend interface {
	Apply(State) error
	Close() error
}
