package event

// OperationType classifies an audit record by the mutation it captures.
type OperationType string

const (
	OpCreate   OperationType = "CREATE"
	OpUpdate   OperationType = "UPDATE"
	OpDelete   OperationType = "DELETE"
	OpComplete OperationType = "COMPLETE"
	OpRestore  OperationType = "RESTORE"
)

// operationByType is the fixed total mapping from event type to audit
// operation. Membership here is intentionally narrower than the closed
// event-type set: reminder and audit-internal events fall through.
var operationByType = map[Type]OperationType{
	TaskCreated:   OpCreate,
	TaskUpdated:   OpUpdate,
	TaskDeleted:   OpDelete,
	TaskCompleted: OpComplete,
	TaskRestored:  OpRestore,
}

// OperationFor derives the audit operation for an event type. Any type
// without an explicit entry maps to UPDATE. That fallback is a
// documented contract, not an accident: it keeps the audit trail moving
// when a new event kind appears before this service learns about it.
// Callers that care about observability should log unknown types.
func OperationFor(t Type) OperationType {
	if op, ok := operationByType[t]; ok {
		return op
	}
	return OpUpdate
}

// HasOperationMapping reports whether t maps explicitly, i.e. whether
// an UPDATE result from OperationFor is real or the fallback arm.
func HasOperationMapping(t Type) bool {
	_, ok := operationByType[t]
	return ok
}
