package pipeline

import (
	"github.com/restbind/restbind/internal/domain"
)

// StandardStage pairs a stage identifier with the processor that
// implements it in the standard chain of an operation kind.
type StandardStage[S comparable, C any] struct {
	Stage     S
	Processor Processor[C]
}

// registration is one custom processor anchored to a standard stage,
// recorded in the order the caller registered it.
type registration[S comparable, C any] struct {
	anchor    S
	processor Processor[C]
	terminal  bool
}

// Assembler builds the chain for one operation invocation: the standard
// stages of the operation kind, with custom processors spliced in after
// their anchors. Assembly is pure; the same configuration always yields a
// structurally identical chain.
type Assembler[S comparable, C any] struct {
	standard      []StandardStage[S, C]
	registrations []registration[S, C]
}

// NewAssembler creates an assembler seeded with the fixed standard chain
// for an operation kind, in stage order.
func NewAssembler[S comparable, C any](standard []StandardStage[S, C]) *Assembler[S, C] {
	return &Assembler[S, C]{standard: standard}
}

// Register anchors a custom processor immediately after the named standard
// stage. Multiple registrations at the same anchor execute in registration
// order.
func (a *Assembler[S, C]) Register(anchor S, p Processor[C]) {
	a.registrations = append(a.registrations, registration[S, C]{anchor: anchor, processor: p})
}

// RegisterTerminal anchors a custom processor like Register and truncates
// the chain right after it: nothing positioned later is included.
func (a *Assembler[S, C]) RegisterTerminal(anchor S, p Processor[C]) {
	a.registrations = append(a.registrations, registration[S, C]{anchor: anchor, processor: p, terminal: true})
}

// Assemble produces the ordered processor list. It fails with a
// configuration error if any registration names a stage not present in the
// standard chain.
func (a *Assembler[S, C]) Assemble() ([]Processor[C], error) {
	if err := a.checkAnchors(); err != nil {
		return nil, err
	}

	chain := make([]Processor[C], 0, len(a.standard)+len(a.registrations))
	for _, std := range a.standard {
		chain = append(chain, std.Processor)

		for _, reg := range a.registrations {
			if reg.anchor != std.Stage {
				continue
			}
			chain = append(chain, reg.processor)
			if reg.terminal {
				return chain, nil
			}
		}
	}
	return chain, nil
}

func (a *Assembler[S, C]) checkAnchors() error {
	for _, reg := range a.registrations {
		found := false
		for _, std := range a.standard {
			if std.Stage == reg.anchor {
				found = true
				break
			}
		}
		if !found {
			return domain.NewConfiguration("unknown anchor stage %v", reg.anchor)
		}
	}
	return nil
}
