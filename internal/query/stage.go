// Package query implements the select side of the binding layer: the
// select context, the standard stage chain, and the caller-facing builder.
package query

// Stage identifies a standard checkpoint in the select chain. The
// declaration order is the fixed execution order; custom processors are
// anchored to these identifiers.
type Stage int

const (
	// StageStart opens the persistence session.
	StageStart Stage = iota

	// StageParseRequest parses and validates query parameters.
	StageParseRequest

	// StageApplyServerParams resolves server-side bindings such as the
	// parent relationship.
	StageApplyServerParams

	// StageAssembleQuery builds the store query from the entity, parent
	// qualifier, orderings, and paging.
	StageAssembleQuery

	// StageFetch runs the query.
	StageFetch

	// StageFillResponse assembles the response envelope.
	StageFillResponse
)

var stageNames = map[Stage]string{
	StageStart:             "start",
	StageParseRequest:      "parse-request",
	StageApplyServerParams: "apply-server-params",
	StageAssembleQuery:     "assemble-query",
	StageFetch:             "fetch",
	StageFillResponse:      "fill-response",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}
