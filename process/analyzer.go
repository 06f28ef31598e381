package process

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// InvalidInputError reports a request that cannot start a pipeline run,
// such as an empty description.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// actorTerms are nouns that commonly name process participants.
// Domain-specific vocabularies extend the base list.
var actorTerms = map[Domain][]string{
	DomainGeneral: {
		"customer", "client", "user", "system", "manager", "employee",
		"administrator", "operator", "supervisor", "team", "department",
		"vendor", "supplier", "partner", "agent", "analyst", "clerk",
		"warehouse", "support",
	},
	DomainBanking: {
		"advisor", "underwriter", "credit committee", "credit bureau",
		"teller", "compliance officer", "risk analyst", "bank",
	},
	DomainInsurance: {
		"policyholder", "adjuster", "claims handler", "actuary", "broker",
		"insurer", "assessor",
	},
	DomainHealthcare: {
		"patient", "doctor", "nurse", "physician", "pharmacist",
		"laboratory", "receptionist", "specialist",
	},
	DomainLogistics: {
		"driver", "dispatcher", "carrier", "courier", "customs",
		"forwarder", "loader",
	},
}

// activityVerbs signal that a sentence describes a process step.
var activityVerbs = []string{
	"submit", "submits", "check", "checks", "verify", "verifies",
	"review", "reviews", "approve", "approves", "reject", "rejects",
	"send", "sends", "receive", "receives", "process", "processes",
	"create", "creates", "update", "updates", "calculate", "calculates",
	"charge", "charges", "ship", "ships", "deliver", "delivers",
	"sign", "signs", "pay", "pays", "notify", "notifies", "confirm",
	"confirms", "validate", "validates", "assess", "assesses",
	"register", "registers", "prepare", "prepares", "issue", "issues",
	"evaluate", "evaluates", "schedule", "schedules",
}

// decisionConnectives signal conditional branching.
var decisionConnectives = []string{
	"if ", "when ", "unless ", "whether ", "otherwise", "depending on",
	"in case ", "either ", "or else",
}

var sentenceSplit = regexp.MustCompile(`[.!?;\n]+`)

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// Analyzer extracts a Context from a raw description using lexical
// pattern matching. It is safe for concurrent use.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze builds a Context from the description. sourceMaterial is
// optional external grounding text appended verbatim; domain may be
// empty for general.
func (a *Analyzer) Analyze(description, sourceMaterial string, domain Domain) (*Context, error) {
	if strings.TrimSpace(description) == "" {
		return nil, &InvalidInputError{Reason: "description must contain at least one non-whitespace character"}
	}
	if domain == "" {
		domain = DomainGeneral
	}

	sentences := splitSentences(description)
	actors := a.extractActors(description, domain)
	activities := a.extractActivities(sentences)
	decisions := a.extractDecisionPoints(sentences)

	ctx := &Context{
		Description:      description,
		Domain:           domain,
		Actors:           actors,
		Activities:       activities,
		DecisionPoints:   decisions,
		SourceMaterial:   sourceMaterial,
		SourceConfidence: confidence(len(actors), len(activities), len(decisions)),
	}

	a.logger.Debug("Analyzed process description",
		"domain", domain,
		"actors", len(actors),
		"activities", len(activities),
		"decision_points", len(decisions),
		"confidence", ctx.SourceConfidence)

	return ctx, nil
}

// extractActors scans for known participant terms, preserving
// first-mention order.
func (a *Analyzer) extractActors(description string, domain Domain) []string {
	lower := strings.ToLower(description)

	terms := make([]string, 0, len(actorTerms[DomainGeneral])+8)
	terms = append(terms, actorTerms[DomainGeneral]...)
	if domain != DomainGeneral {
		terms = append(terms, actorTerms[domain]...)
	}

	type hit struct {
		term string
		pos  int
	}
	var hits []hit
	for _, term := range terms {
		if pos := indexWord(lower, term); pos >= 0 {
			hits = append(hits, hit{term: term, pos: pos})
		}
	}

	// First-mention order: stable insertion sort on position keeps ties in
	// vocabulary order, which is itself fixed.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	seen := make(map[string]bool, len(hits))
	actors := make([]string, 0, len(hits))
	for _, h := range hits {
		if !seen[h.term] {
			seen[h.term] = true
			actors = append(actors, titleCase(h.term))
		}
	}
	return actors
}

// extractActivities keeps sentences containing an activity verb, trimmed
// to a compact label.
func (a *Analyzer) extractActivities(sentences []string) []string {
	var activities []string
	for _, sentence := range sentences {
		lower := strings.ToLower(sentence)
		for _, verb := range activityVerbs {
			if indexWord(lower, verb) >= 0 {
				activities = append(activities, compactLabel(sentence))
				break
			}
		}
	}
	return activities
}

// extractDecisionPoints keeps sentences containing a decision connective.
func (a *Analyzer) extractDecisionPoints(sentences []string) []string {
	var decisions []string
	for _, sentence := range sentences {
		lower := " " + strings.ToLower(sentence)
		for _, conn := range decisionConnectives {
			if strings.Contains(lower, " "+conn) || strings.HasPrefix(strings.ToLower(sentence), strings.TrimSpace(conn)+" ") {
				decisions = append(decisions, compactLabel(sentence))
				break
			}
		}
	}
	return decisions
}

// confidence scores how much structure was recovered. Actors and
// activities dominate; decision points are a bonus signal.
func confidence(actors, activities, decisions int) float64 {
	score := 0.0
	score += 0.4 * minf(float64(actors)/2.0, 1.0)
	score += 0.4 * minf(float64(activities)/3.0, 1.0)
	score += 0.2 * minf(float64(decisions)/1.0, 1.0)
	return score
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func splitSentences(text string) []string {
	raw := sentenceSplit.Split(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(s) >= 3 {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// indexWord finds term in text at a word boundary, or -1.
func indexWord(text, term string) int {
	for start := 0; ; {
		pos := strings.Index(text[start:], term)
		if pos < 0 {
			return -1
		}
		pos += start
		before := pos == 0 || !isWordChar(text[pos-1])
		afterIdx := pos + len(term)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return pos
		}
		start = pos + len(term)
		if start >= len(text) {
			return -1
		}
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// compactLabel trims a sentence to a short activity label.
func compactLabel(sentence string) string {
	const maxLabel = 60
	s := strings.TrimSpace(sentence)
	if len(s) > maxLabel {
		s = strings.TrimSpace(s[:maxLabel]) + "..."
	}
	return s
}

// titleCase capitalizes the first letter of each word of an actor term.
func titleCase(term string) string {
	words := strings.Fields(term)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
