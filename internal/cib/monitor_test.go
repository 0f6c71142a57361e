package cib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cibconf/internal/model"
)

func monitorOps(t *testing.T, s *Session, id string) []model.Block {
	t.Helper()
	o, ok := s.Store().FindObject(id)
	require.True(t, ok)
	var out []model.Block
	for _, op := range o.BlocksOf(model.BlockOp) {
		if op.Name == "monitor" {
			out = append(out, op)
		}
	}
	return out
}

func TestMonitorAddsOperation(t *testing.T) {
	s, _ := newSeededSession(t)

	require.NoError(t, s.Monitor("web1", "30s:60s"))
	ops := monitorOps(t, s, "web1")
	require.Len(t, ops, 2)
	assert.Equal(t, []model.Pair{
		{Name: "interval", Value: "30s"},
		{Name: "timeout", Value: "60s"},
	}, ops[1].Pairs)
	assert.Equal(t, []string{"web1"}, idsOf(s.Store().Changed()))
}

func TestMonitorWithRole(t *testing.T) {
	s, _ := newSeededSession(t)

	require.NoError(t, s.Monitor("db1:Master", "10s"))
	ops := monitorOps(t, s, "db1")
	require.Len(t, ops, 2)
	role, ok := ops[1].Get("role")
	require.True(t, ok)
	assert.Equal(t, "Master", role)
	_, ok = ops[1].Get("timeout")
	assert.False(t, ok)
}

func TestMonitorRejectsDuplicateInterval(t *testing.T) {
	s, _ := newSeededSession(t)

	for _, timing := range []string{"10s", "10", "10s:30s"} {
		err := s.Monitor("web1", timing)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict, timing)
		assert.Equal(t, "web1", conflict.ID)
	}
	assert.False(t, s.Store().HasChanged())
}

func TestMonitorErrors(t *testing.T) {
	s, _ := newSeededSession(t)

	var notFound *NotFoundError
	require.ErrorAs(t, s.Monitor("ghost", "10s"), &notFound)

	tests := []struct {
		name   string
		target string
		timing string
		msg    string
	}{
		{name: "group", target: "g_web", timing: "20s", msg: "g_web is a group and has no operations"},
		{name: "role", target: "web1:Boss", timing: "20s", msg: `unknown role "Boss"`},
		{name: "interval", target: "web1", timing: "soon", msg: `bad monitor interval "soon"`},
		{name: "timeout", target: "web1", timing: "20s:", msg: `bad monitor timeout ""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *ValidationError
			require.ErrorAs(t, s.Monitor(tt.target, tt.timing), &verr)
			var messages []string
			for _, v := range verr.Violations {
				messages = append(messages, v.Message)
			}
			assert.Contains(t, messages, tt.msg)
		})
	}
	assert.False(t, s.Store().HasChanged())
}
