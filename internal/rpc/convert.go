package rpc

import (
	"github.com/google/uuid"

	"github.com/shellhist/histd/internal/search"
)

// filterModeFromWire builds a search.FilterMode from the wire's string
// filter_mode name plus whatever context the client sent, following the
// original source's own convert_filter_mode: Workspace falls back to
// Directory when no git root is known (handled here), and a filter mode
// whose required context field is missing falls back to Global (handled
// downstream by search.Index.buildFilter treating a zero-value field as
// "no filter").
func filterModeFromWire(mode string, sctx *SearchContext) search.FilterMode {
	if sctx == nil {
		return search.FilterMode{Kind: search.Global}
	}

	session, _ := uuid.Parse(sctx.SessionID) // zero uuid on parse failure, same as "no session"

	switch mode {
	case "Directory":
		return search.FilterMode{Kind: search.Directory, Directory: sctx.CWD}
	case "Workspace":
		if sctx.GitRoot == "" {
			return search.FilterMode{Kind: search.Directory, Directory: sctx.CWD}
		}
		return search.FilterMode{Kind: search.Workspace, Workspace: sctx.GitRoot}
	case "Host":
		return search.FilterMode{Kind: search.Host, Host: sctx.Hostname}
	case "Session":
		return search.FilterMode{Kind: search.Session, Session: session}
	case "SessionPreload":
		return search.FilterMode{Kind: search.SessionPreload, Session: session}
	default:
		return search.FilterMode{Kind: search.Global}
	}
}

func queryContextFromWire(sctx *SearchContext) search.QueryContext {
	if sctx == nil {
		return search.QueryContext{}
	}
	session, _ := uuid.Parse(sctx.SessionID)
	return search.QueryContext{
		CWD:       sctx.CWD,
		GitRoot:   sctx.GitRoot,
		Hostname:  sctx.Hostname,
		SessionID: session,
	}
}
