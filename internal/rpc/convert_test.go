package rpc

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/shellhist/histd/internal/search"
)

func TestFilterModeFromWireNoContextIsGlobal(t *testing.T) {
	mode := filterModeFromWire("Directory", nil)
	assert.Equal(t, search.Global, mode.Kind, "a non-Global mode with no context must downgrade to Global per spec.md §4.4")
}

func TestFilterModeFromWireDirectory(t *testing.T) {
	mode := filterModeFromWire("Directory", &SearchContext{CWD: "/repo"})
	assert.Equal(t, search.Directory, mode.Kind)
	assert.Equal(t, "/repo", mode.Directory)
}

func TestFilterModeFromWireWorkspaceFallsBackToDirectory(t *testing.T) {
	mode := filterModeFromWire("Workspace", &SearchContext{CWD: "/repo/sub"})
	assert.Equal(t, search.Directory, mode.Kind, "Workspace with no git root must fall back to Directory")
	assert.Equal(t, "/repo/sub", mode.Directory)
}

func TestFilterModeFromWireWorkspaceWithGitRoot(t *testing.T) {
	mode := filterModeFromWire("Workspace", &SearchContext{CWD: "/repo/sub", GitRoot: "/repo"})
	assert.Equal(t, search.Workspace, mode.Kind)
	assert.Equal(t, "/repo", mode.Workspace)
}

func TestFilterModeFromWireSessionPreload(t *testing.T) {
	session := uuid.New()
	mode := filterModeFromWire("SessionPreload", &SearchContext{SessionID: session.String()})
	assert.Equal(t, search.SessionPreload, mode.Kind)
	assert.Equal(t, session, mode.Session)
}

func TestFilterModeFromWireUnknownIsGlobal(t *testing.T) {
	mode := filterModeFromWire("NotARealMode", &SearchContext{CWD: "/repo"})
	assert.Equal(t, search.Global, mode.Kind)
}

func TestQueryContextFromWireNilContext(t *testing.T) {
	qctx := queryContextFromWire(nil)
	assert.Equal(t, search.QueryContext{}, qctx)
}

func TestQueryContextFromWirePopulatesFields(t *testing.T) {
	session := uuid.New()
	qctx := queryContextFromWire(&SearchContext{CWD: "/a", Hostname: "h", GitRoot: "/a", SessionID: session.String()})
	assert.Equal(t, "/a", qctx.CWD)
	assert.Equal(t, "h", qctx.Hostname)
	assert.Equal(t, "/a", qctx.GitRoot)
	assert.Equal(t, session, qctx.SessionID)
}
