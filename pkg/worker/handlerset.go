package worker

import (
	"io"

	"github.com/cuemby/relayd/pkg/httpproto"
	"github.com/cuemby/relayd/pkg/types"
)

// HandlerSet is the resolved form of spec.md §3's "Handler module": the
// four entry points a request cycle calls through, all from the same
// revision. The built-in set is backed by pkg/httpproto; ReloadManager
// can overlay it with symbols resolved from a plugin.Open'd artifact.
type HandlerSet struct {
	ValidateRequest func(raw []byte) (*types.Request, error)
	ExtractPath     func(req *types.Request) string
	HandleRequest   func(w io.Writer, docRoot string, req *types.Request, headOnly bool) error
	HandlePost      func(raw []byte) ([]byte, bool)
}

// builtinHandlerSet is always available, even with no artifact present
// or before the first successful reload.
func builtinHandlerSet() HandlerSet {
	return HandlerSet{
		ValidateRequest: httpproto.ParseRequest,
		ExtractPath: func(req *types.Request) string {
			return req.Target
		},
		HandleRequest: func(w io.Writer, docRoot string, req *types.Request, headOnly bool) error {
			return httpproto.ServeGetOrHead(w, docRoot, req.Target, headOnly)
		},
		HandlePost: httpproto.ExtractBody,
	}
}
