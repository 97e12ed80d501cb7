package bridge

import "encoding/json"

// ExecutionResponse is the canonical reply handed back to a caller. Exactly
// one of Result or Error is populated. Extra carries any additional fields
// the peer's reply included beyond result/error/id — the spec leaves the
// exact set unpinned (§9 open question b) and requires verbatim
// propagation, so they ride along unparsed.
type ExecutionResponse struct {
	Result    any
	Error     string
	TraceID   string
	ElapsedMs float64
	Extra     map[string]any
}

// MarshalJSON flattens the response into a single JSON object, since the
// spec requires ExecutionResponse to serialize as a flat map rather than a
// struct with a nested "extra" bucket.
func (e ExecutionResponse) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+4)
	for k, v := range e.Extra {
		out[k] = v
	}
	if e.Error != "" {
		out["error"] = e.Error
		delete(out, "result")
	} else if e.Result != nil {
		out["result"] = e.Result
	}
	if e.TraceID != "" {
		out["trace_id"] = e.TraceID
	}
	if e.ElapsedMs != 0 {
		out["elapsed_ms"] = e.ElapsedMs
	}
	return json.Marshal(out)
}

// IsError reports whether the response carries an error rather than a
// result.
func (e ExecutionResponse) IsError() bool {
	return e.Error != ""
}

// dispatchFrame is the bridge→peer wire message (§6).
type dispatchFrame struct {
	ID      int64            `json:"id"`
	Script  string           `json:"script"`
	Command *CommandMetadata `json:"command,omitempty"`
	TraceID string           `json:"trace_id,omitempty"`
}

// replyFrame is the peer→bridge wire message. Extra fields beyond the ones
// named here are preserved by decoding into a raw map first (see
// decodeReply in peer.go) and are propagated into ExecutionResponse.Extra.
type replyFrame struct {
	ID     int64  `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
