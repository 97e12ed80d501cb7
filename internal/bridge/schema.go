package bridge

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// replySchema is the shape every peer→bridge frame must satisfy: echo the
// numeric id, and carry exactly one of result/error. additionalProperties
// is left true because unknown fields are propagated verbatim (§9 open
// question b), not rejected.
const replySchemaSrc = `{
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": { "type": "number" },
    "result": {},
    "error": { "type": "string" }
  },
  "additionalProperties": true
}`

var (
	replySchemaOnce sync.Once
	replySchema     *jsonschema.Schema
	replySchemaErr  error
)

func compiledReplySchema() (*jsonschema.Schema, error) {
	replySchemaOnce.Do(func() {
		replySchema, replySchemaErr = jsonschema.CompileString("reply.json", replySchemaSrc)
	})
	return replySchema, replySchemaErr
}

// validateReplyFrame checks raw against the reply schema. It does not
// reject frames with both result and error present — the spec's open
// question (c) resolves that case at a higher level (error wins), not by
// schema rejection, so a frame carrying both is schema-valid but handled
// specially by the caller.
func validateReplyFrame(raw []byte) (map[string]any, error) {
	schema, err := compiledReplySchema()
	if err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if err := schema.Validate(payload); err != nil {
		return nil, err
	}

	m, _ := payload.(map[string]any)
	return m, nil
}
