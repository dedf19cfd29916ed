package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"rplview/internal/domain"
)

// callLog records sink calls in order
type callLog struct {
	calls []string
	fail  map[string]error
}

func (c *callLog) record(call string) error {
	c.calls = append(c.calls, call)
	return c.fail[call]
}

func (c *callLog) NodeAppeared(a domain.Address) error { return c.record("+node " + a.String()) }
func (c *callLog) NodeGone(a domain.Address) error     { return c.record("-node " + a.String()) }
func (c *callLog) LinkAppeared(ch, p domain.Address, w float64) error {
	return c.record(fmt.Sprintf("+link %s->%s %g", ch, p, w))
}
func (c *callLog) LinkGone(ch, p domain.Address) error {
	return c.record(fmt.Sprintf("-link %s->%s", ch, p))
}
func (c *callLog) LinkWeightChanged(ch, p domain.Address, w float64) error {
	return c.record(fmt.Sprintf("~link %s->%s %g", ch, p, w))
}

func chain(weight float64, addrs ...domain.Address) *domain.Fragment {
	f := domain.NewFragment()
	for i := 0; i+1 < len(addrs); i++ {
		f.AddLink(addrs[i], addrs[i+1], weight)
	}
	return f
}

func TestReconcilerOrdering(t *testing.T) {
	ctx := context.Background()
	sink := &callLog{}
	r := NewReconciler(sink, nil)

	res, err := r.ReconcileFragment(ctx, "nmap", chain(100, 3, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{NodesAdded: 3, LinksAdded: 2}, res)
	assert.Equal(t, []string{
		"+node 1", "+node 2", "+node 3",
		"+link 2->1 100", "+link 3->2 100",
	}, sink.calls)

	sink.calls = nil
	res, err = r.ReconcileFragment(ctx, "nmap", chain(100, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{LinksAdded: 1, LinksRemoved: 2, NodesRemoved: 1}, res)
	assert.Equal(t, []string{
		"+link 3->1 100",
		"-link 2->1", "-link 3->2",
		"-node 2",
	}, sink.calls)

	sink.calls = nil
	res, err = r.ReconcileFragment(ctx, "nmap", chain(250, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{LinksUpdated: 1}, res)
	assert.Equal(t, []string{"~link 3->1 250"}, sink.calls)

	sink.calls = nil
	res, err = r.ReconcileFragment(ctx, "nmap", chain(250, 3, 1))
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Empty(t, sink.calls)
}

func TestReconcilerMultipleSources(t *testing.T) {
	ctx := context.Background()
	sink := &callLog{}
	r := NewReconciler(sink, nil)

	_, err := r.ReconcileFragment(ctx, "b-file", chain(500, 2, 1))
	require.NoError(t, err)
	_, err = r.ReconcileFragment(ctx, "a-nmap", chain(100, 3, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"a-nmap", "b-file"}, r.Sources())

	// a-nmap sorts first and decides the shared link's weight
	assert.Equal(t, []string{
		"+node 1", "+node 2",
		"+link 2->1 500",
		"+node 3",
		"~link 2->1 100", "+link 3->2 100",
	}, sink.calls)

	sink.calls = nil
	res, err := r.Forget(ctx, "a-nmap")
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{LinksUpdated: 1, LinksRemoved: 1, NodesRemoved: 1}, res)
	assert.Equal(t, []string{"~link 2->1 500", "-link 3->2", "-node 3"}, sink.calls)
	assert.Equal(t, []string{"b-file"}, r.Sources())
}

func TestReconcilerAggregatesErrors(t *testing.T) {
	sink := &callLog{fail: map[string]error{
		"+link 2->1 1": fmt.Errorf("first"),
		"+link 3->2 1": fmt.Errorf("second"),
	}}
	r := NewReconciler(sink, nil)

	res, err := r.ReconcileFragment(context.Background(), "src", chain(1, 3, 2, 1))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, 3, res.NodesAdded)
	assert.Equal(t, 0, res.LinksAdded)

	// Rejected links are retried on the next observation
	sink.fail = nil
	sink.calls = nil
	res, err = r.ReconcileFragment(context.Background(), "src", chain(1, 3, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, res.LinksAdded)
}

func TestReconcilerCancelledContext(t *testing.T) {
	r := NewReconciler(&callLog{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ReconcileFragment(ctx, "src", chain(1, 2, 1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.Sources())
}

func TestReconcilerFeedsScene(t *testing.T) {
	ctx := context.Background()
	scene, _ := newTestScene(t)
	r := NewReconciler(scene, nil)

	_, err := r.ReconcileFragment(ctx, "src", chain(100, 4, 3, 2, 1))
	require.NoError(t, err)
	nodes, links := scene.Len()
	assert.Equal(t, 4, nodes)
	assert.Equal(t, 3, links)

	_, err = r.ReconcileFragment(ctx, "src", chain(100, 2, 1))
	require.NoError(t, err)
	nodes, links = scene.Len()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, links)

	r.ResetSink(scene.Clear)
	assert.Empty(t, r.Sources())
	_, err = r.ReconcileFragment(ctx, "src", chain(100, 2, 1))
	require.NoError(t, err)
	nodes, _ = scene.Len()
	assert.Equal(t, 2, nodes)
}
