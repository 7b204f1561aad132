package starter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"moff.io/moff-wallet/internal/config"
)

type element struct {
	name   string
	calls  *[]string
	config *config.Configuration
}

func (e *element) Start(context.Context)         { *e.calls = append(*e.calls, "start "+e.name) }
func (e *element) Apply(c *config.Configuration) { e.config = c }
func (e *element) Stop()                         { *e.calls = append(*e.calls, "stop "+e.name) }

type plain struct{ started bool }

func (p *plain) Start(context.Context) { p.started = true }

func TestStartAndStopOrder(t *testing.T) {
	var calls []string
	c := &config.Configuration{ProjectID: "abc"}
	a := &element{name: "a", calls: &calls}
	b := &element{name: "b", calls: &calls}
	p := &plain{}

	StartWith(context.Background(), c, a, p, b)
	Stop(a, p, b)

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, calls)
	assert.Same(t, c, a.config)
	assert.Same(t, c, b.config)
	assert.True(t, p.started)
}
