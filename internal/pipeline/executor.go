package pipeline

// Run executes an assembled chain against one fresh context. Processors
// run in chain order, each at most once. A Stop outcome ends execution
// with the current context state as the result; the first error aborts
// execution and propagates to the caller. The executor performs no
// rollback of its own; that is the persistence collaborator's concern.
func Run[C any](chain []Processor[C], c C) error {
	for _, p := range chain {
		outcome, err := p.Execute(c)
		if err != nil {
			return err
		}
		if outcome == Stop {
			return nil
		}
	}
	return nil
}
