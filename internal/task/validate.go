package task

import (
	"fmt"

	"github.com/illustrator-bridge/core/internal/errors"
)

func validatePayload(p Payload) error {
	if p.Task == "" {
		return &validationError{code: errors.V001InvalidPayload, message: "task label must not be empty"}
	}
	if p.Targets.Kind == "" {
		return &validationError{code: errors.V003InvalidTargets, message: "targets selector is required"}
	}
	switch p.Options.IDPolicy {
	case "", IDPolicyNone, IDPolicyOptIn, IDPolicyAlways, IDPolicyPreserve:
	default:
		return &validationError{code: errors.V007InvalidParam, message: fmt.Sprintf("unknown idPolicy %q", p.Options.IDPolicy)}
	}
	switch p.Options.Idempotency {
	case "", IdempotencySafe, IdempotencyUnsafe:
	default:
		return &validationError{code: errors.V007InvalidParam, message: fmt.Sprintf("unknown idempotency class %q", p.Options.Idempotency)}
	}
	if err := p.Options.Retry.Validate(); err != nil {
		return &validationError{code: errors.V001InvalidPayload, message: err.Error()}
	}
	return nil
}

// assignIdentities applies options.idPolicy to the collected items,
// writing itemId/idSource in place on doc.Items and failing V004 if an
// assignment would collide with an identity already present elsewhere in
// the document.
func assignIdentities(doc *Document, collected []CollectedItem, policy IDPolicy) error {
	if policy == "" {
		policy = IDPolicyNone
	}
	if policy == IDPolicyNone || policy == IDPolicyPreserve {
		return nil
	}

	existing := make(map[string]string, len(doc.Items)) // itemId -> locator key
	for _, it := range doc.Items {
		if it.ItemID != "" {
			existing[it.ItemID] = it.locator().Key()
		}
	}

	byLocator := make(map[string]int, len(doc.Items))
	for i, it := range doc.Items {
		byLocator[it.locator().Key()] = i
	}

	for _, c := range collected {
		if policy == IDPolicyOptIn && c.Item.ItemID == "" {
			continue
		}
		if c.Item.ItemID != "" {
			continue // already has an identity, nothing to assign
		}
		newID := fmt.Sprintf("item-%s", c.Item.locator().Key())
		if owner, collides := existing[newID]; collides && owner != c.Item.locator().Key() {
			return &validationError{code: errors.V004IdentityCollision, message: fmt.Sprintf("identity %q already present on %s", newID, owner)}
		}
		idx := byLocator[c.Item.locator().Key()]
		doc.Items[idx].ItemID = newID
		doc.Items[idx].IDSource = IDSourceNote
		existing[newID] = c.Item.locator().Key()
	}
	return nil
}
