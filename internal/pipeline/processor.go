package pipeline

// Outcome is the control-flow signal returned by a processor. It is
// distinct from success/failure, which processors communicate by returning
// an error.
type Outcome int

const (
	// Continue passes control to the next processor in the chain.
	Continue Outcome = iota

	// Stop terminates the chain; the current context state is final.
	Stop
)

func (o Outcome) String() string {
	if o == Stop {
		return "stop"
	}
	return "continue"
}

// Processor is one unit of work in a chain. It mutates the context it is
// given and returns an Outcome. The executor calls Execute at most once
// per chain execution.
type Processor[C any] interface {
	Execute(c C) (Outcome, error)
}

// Func adapts a plain function to the Processor interface.
type Func[C any] func(c C) (Outcome, error)

func (f Func[C]) Execute(c C) (Outcome, error) {
	return f(c)
}

// Consumer adapts a function with no outcome to a Continue-always
// processor.
func Consumer[C any](f func(c C) error) Processor[C] {
	return Func[C](func(c C) (Outcome, error) {
		if err := f(c); err != nil {
			return Stop, err
		}
		return Continue, nil
	})
}
