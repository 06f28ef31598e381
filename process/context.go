// Package process turns a natural-language business-process description
// into a structured context used for prompt grounding and semantic
// validation. The analysis is purely lexical and deterministic; no
// network I/O happens here.
package process

// Domain identifies the business domain a process belongs to. The domain
// selects extra vocabulary during analysis and a worked example in the
// generation prompt.
type Domain string

// Known business domains.
const (
	DomainGeneral    Domain = "general"
	DomainBanking    Domain = "banking"
	DomainInsurance  Domain = "insurance"
	DomainHealthcare Domain = "healthcare"
	DomainLogistics  Domain = "logistics"
)

// ParseDomain maps a domain string to a known Domain, defaulting to
// general for unknown values.
func ParseDomain(s string) Domain {
	switch Domain(s) {
	case DomainBanking, DomainInsurance, DomainHealthcare, DomainLogistics:
		return Domain(s)
	default:
		return DomainGeneral
	}
}

// Context is the structured form of a business-process description.
// It is built once per request and never mutated afterwards.
type Context struct {
	// Description is the raw process description as supplied by the caller.
	Description string

	// Domain is the business domain, either hinted by the caller or general.
	Domain Domain

	// Actors are the participants detected in the description, in
	// first-mention order with duplicates removed.
	Actors []string

	// Activities are the process steps detected in the description, in
	// narrative order.
	Activities []string

	// DecisionPoints are the conditional branches detected in the
	// description, in narrative order.
	DecisionPoints []string

	// SourceMaterial is optional external grounding text (extracted
	// document content, fetched web page) appended verbatim. The pipeline
	// performs no validation on it beyond non-emptiness.
	SourceMaterial string

	// SourceConfidence estimates how much structure the analyzer managed
	// to extract, in [0,1]. Low confidence means the prompt leans mostly
	// on the raw description.
	SourceConfidence float64
}
