package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesInOrder(t *testing.T) {
	chain := []Processor[*trace]{step("a"), step("b"), step("c")}

	c := &trace{}
	require.NoError(t, Run(chain, c))
	assert.Equal(t, []string{"a", "b", "c"}, c.log)
}

func TestRunStopOutcomeTerminates(t *testing.T) {
	chain := []Processor[*trace]{step("a"), stopStep("b"), step("c")}

	c := &trace{}
	require.NoError(t, Run(chain, c))
	assert.Equal(t, []string{"a", "b"}, c.log)
}

func TestRunPropagatesFirstError(t *testing.T) {
	boom := errors.New("boom")
	chain := []Processor[*trace]{
		step("a"),
		Func[*trace](func(c *trace) (Outcome, error) {
			c.log = append(c.log, "b")
			return Continue, boom
		}),
		step("c"),
	}

	c := &trace{}
	err := Run(chain, c)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, c.log)
}

func TestRunEachProcessorAtMostOnce(t *testing.T) {
	counts := make(map[string]int)
	count := func(name string) Processor[*trace] {
		return Func[*trace](func(c *trace) (Outcome, error) {
			counts[name]++
			return Continue, nil
		})
	}

	chain := []Processor[*trace]{count("a"), count("b"), count("a2")}
	require.NoError(t, Run(chain, &trace{}))

	for name, n := range counts {
		assert.Equal(t, 1, n, "processor %s", name)
	}
}

func TestConsumerAdaptsPlainFunction(t *testing.T) {
	c := &trace{}
	p := Consumer(func(c *trace) error {
		c.log = append(c.log, "consumed")
		return nil
	})

	outcome, err := p.Execute(c)
	require.NoError(t, err)
	assert.Equal(t, Continue, outcome)
	assert.Equal(t, []string{"consumed"}, c.log)

	failing := Consumer(func(c *trace) error { return errors.New("bad") })
	_, err = failing.Execute(c)
	assert.Error(t, err)
}
