package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restbind/restbind/internal/domain"
)

// trace is the shared context used by pipeline tests: processors append
// their name as they run.
type trace struct {
	log []string
}

func step(name string) Processor[*trace] {
	return Func[*trace](func(c *trace) (Outcome, error) {
		c.log = append(c.log, name)
		return Continue, nil
	})
}

func stopStep(name string) Processor[*trace] {
	return Func[*trace](func(c *trace) (Outcome, error) {
		c.log = append(c.log, name)
		return Stop, nil
	})
}

func standardChain() []StandardStage[string, *trace] {
	return []StandardStage[string, *trace]{
		{Stage: "start", Processor: step("start")},
		{Stage: "parse", Processor: step("parse")},
		{Stage: "commit", Processor: step("commit")},
		{Stage: "respond", Processor: step("respond")},
	}
}

func runChain(t *testing.T, a *Assembler[string, *trace]) []string {
	t.Helper()
	chain, err := a.Assemble()
	require.NoError(t, err)

	c := &trace{}
	require.NoError(t, Run(chain, c))
	return c.log
}

func TestAssembleStandardChainOnly(t *testing.T) {
	a := NewAssembler(standardChain())

	log := runChain(t, a)
	assert.Equal(t, []string{"start", "parse", "commit", "respond"}, log)
}

func TestAssembleSplicesAfterAnchor(t *testing.T) {
	a := NewAssembler(standardChain())
	a.Register("parse", step("custom-1"))

	log := runChain(t, a)
	assert.Equal(t, []string{"start", "parse", "custom-1", "commit", "respond"}, log)
}

func TestAssembleSameAnchorKeepsRegistrationOrder(t *testing.T) {
	a := NewAssembler(standardChain())
	a.Register("parse", step("custom-1"))
	a.Register("parse", step("custom-2"))
	a.Register("parse", step("custom-3"))

	log := runChain(t, a)
	assert.Equal(t, []string{"start", "parse", "custom-1", "custom-2", "custom-3", "commit", "respond"}, log)
}

func TestAssembleMultipleAnchors(t *testing.T) {
	a := NewAssembler(standardChain())
	a.Register("commit", step("after-commit"))
	a.Register("start", step("after-start"))

	log := runChain(t, a)
	assert.Equal(t, []string{"start", "after-start", "parse", "commit", "after-commit", "respond"}, log)
}

func TestAssembleTerminalTruncates(t *testing.T) {
	a := NewAssembler(standardChain())
	a.RegisterTerminal("parse", step("terminal"))
	// Registered later at a later anchor; must be dropped.
	a.Register("commit", step("never"))

	log := runChain(t, a)
	assert.Equal(t, []string{"start", "parse", "terminal"}, log)
}

func TestAssembleTerminalKeepsEarlierSameAnchorRegistrations(t *testing.T) {
	a := NewAssembler(standardChain())
	a.Register("parse", step("before-terminal"))
	a.RegisterTerminal("parse", step("terminal"))
	a.Register("parse", step("after-terminal"))

	log := runChain(t, a)
	assert.Equal(t, []string{"start", "parse", "before-terminal", "terminal"}, log)
}

func TestAssembleIdempotent(t *testing.T) {
	a := NewAssembler(standardChain())
	a.Register("parse", step("custom"))
	a.RegisterTerminal("commit", step("terminal"))

	first, err := a.Assemble()
	require.NoError(t, err)
	second, err := a.Assemble()
	require.NoError(t, err)

	require.Len(t, second, len(first))
	c1, c2 := &trace{}, &trace{}
	require.NoError(t, Run(first, c1))
	require.NoError(t, Run(second, c2))
	assert.Equal(t, c1.log, c2.log)
}

func TestAssembleUnknownAnchorFails(t *testing.T) {
	a := NewAssembler(standardChain())
	a.Register("no-such-stage", step("custom"))

	_, err := a.Assemble()
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestAssembleUnknownAnchorFailsAtAssemblyNotExecution(t *testing.T) {
	a := NewAssembler(standardChain())
	executed := false
	a.Register("bogus", Func[*trace](func(c *trace) (Outcome, error) {
		executed = true
		return Continue, nil
	}))

	_, err := a.Assemble()
	require.Error(t, err)
	assert.False(t, executed)
}
