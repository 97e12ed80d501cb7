package executor

import (
	"encoding/json"

	"github.com/illustrator-bridge/core/internal/bridge"
)

// maxUnwrapDepth bounds the recursive unwrap so a pathological
// JSON-encoded-JSON-encoded-... string from the script host cannot loop
// forever (§9 design note).
const maxUnwrapDepth = 4

// formatResponse turns a bridge.ExecutionResponse into the flat map handed
// back to the caller, applying the recursive unwrap rule to Result.
func formatResponse(resp bridge.ExecutionResponse) map[string]any {
	out := make(map[string]any, len(resp.Extra)+3)
	for k, v := range resp.Extra {
		out[k] = v
	}
	out["trace_id"] = resp.TraceID
	out["elapsed_ms"] = resp.ElapsedMs

	if resp.IsError() {
		out["error"] = resp.Error
		return out
	}

	unwrapped := unwrap(resp.Result, 0)
	out["result"] = reencode(unwrapped)
	return out
}

// unwrap recursively descends into nested success envelopes. At each step
// the current value must be a JSON object (or a string that decodes to
// one), must not declare failure, and must carry a "result" field; when any
// of those fail, val is returned as-is — unwrapping stops at the first
// error or non-envelope value.
func unwrap(val any, depth int) any {
	if depth >= maxUnwrapDepth {
		return val
	}

	obj, ok := asObject(val)
	if !ok {
		return val
	}
	if declaresFailure(obj) {
		return val
	}
	result, ok := obj["result"]
	if !ok {
		return val
	}
	return unwrap(result, depth+1)
}

// asObject tries to view val as a JSON object, parsing it first if it's a
// string. Any non-object shape (number, bool, array, unparsable string)
// reports false.
func asObject(val any) (map[string]any, bool) {
	switch v := val.(type) {
	case map[string]any:
		return v, true
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, false
		}
		obj, ok := parsed.(map[string]any)
		return obj, ok
	default:
		return nil, false
	}
}

func declaresFailure(obj map[string]any) bool {
	if errVal, ok := obj["error"]; ok {
		if s, ok := errVal.(string); ok && s != "" {
			return true
		}
		if errVal != nil {
			return true
		}
	}
	if ok, present := obj["success"].(bool); present && !ok {
		return true
	}
	return false
}

// reencode renders the final unwrapped value the way the caller sees it:
// structured values become pretty JSON strings, everything else (including
// plain strings and scalars) passes through unchanged.
func reencode(val any) any {
	switch val.(type) {
	case map[string]any, []any:
		b, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return val
		}
		return string(b)
	default:
		return val
	}
}
