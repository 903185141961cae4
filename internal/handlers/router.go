package handlers

import (
	"context"
	"fmt"

	"github.com/Rorqualx/proxydl/internal/types"
)

// routeCommand dispatches a validated request to its command handler.
func (h *Handler) routeCommand(ctx context.Context, req *types.Request) (types.Response, error) {
	switch req.Cmd {
	case types.CmdSessionsCreate:
		return h.handleSessionCreate(ctx, req)
	case types.CmdSessionsList:
		return h.handleSessionList()
	case types.CmdSessionsDestroy:
		return h.handleSessionDestroy(req)
	}

	sess, err := h.sessions.Get(req.Session)
	if err != nil {
		return types.Response{}, fmt.Errorf("%w: %s", err, req.Session)
	}

	switch req.Cmd {
	case types.CmdPageOpen:
		return h.handlePageOpen(ctx, sess, req)
	case types.CmdPageBack, types.CmdPageForward, types.CmdPageRefresh:
		return h.handleHistory(ctx, sess, req.Cmd)
	case types.CmdFileDownload:
		return h.handleFileDownload(ctx, sess, req)
	case types.CmdDownloadsList:
		return h.handleDownloadsList(sess, req)
	default:
		// Validate rejects unknown commands first.
		return types.Response{}, fmt.Errorf("%w: unknown command %q", types.ErrInvalidRequest, req.Cmd)
	}
}
