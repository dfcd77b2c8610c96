// Package update implements the create/update side of the binding layer:
// the update context, the standard stage chain, and the caller-facing
// builder. Operation kinds (create, update, createOrUpdate, fullSync)
// share one chain and differ in how the commit stage reconciles incoming
// updates with stored records.
package update

// Stage identifies a standard checkpoint in the update chain. The
// declaration order is the fixed execution order; custom processors are
// anchored to these identifiers.
type Stage int

const (
	// StageStart opens the persistence session.
	StageStart Stage = iota

	// StageParseRequest decodes the payload into entity updates and
	// applies write constraints.
	StageParseRequest

	// StageApplyServerParams merges server-side bindings (parent
	// relationship, explicit id) into the updates.
	StageApplyServerParams

	// StageMapChanges locates existing target records and resolves
	// relationship references.
	StageMapChanges

	// StageCommit writes the reconciled changes and commits the session.
	StageCommit

	// StageFillResponse assembles the response envelope.
	StageFillResponse
)

var stageNames = map[Stage]string{
	StageStart:             "start",
	StageParseRequest:      "parse-request",
	StageApplyServerParams: "apply-server-params",
	StageMapChanges:        "map-changes",
	StageCommit:            "commit",
	StageFillResponse:      "fill-response",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Op is the update operation kind.
type Op int

const (
	// OpCreate inserts every incoming record.
	OpCreate Op = iota

	// OpUpdate modifies existing records and fails on missing ones.
	OpUpdate

	// OpCreateOrUpdate modifies existing records and inserts missing
	// ones.
	OpCreateOrUpdate

	// OpFullSync is createOrUpdate plus deletion of stored records not
	// present in the request.
	OpFullSync
)

var opNames = map[Op]string{
	OpCreate:         "create",
	OpUpdate:         "update",
	OpCreateOrUpdate: "createOrUpdate",
	OpFullSync:       "fullSync",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "unknown"
}
