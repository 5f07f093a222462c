package catalog

// Similarity thresholds for classifying the best candidate score.
const (
	ExactThreshold          = 0.99
	HighConfidenceThreshold = 0.90
	MediumThreshold         = 0.80
)

// Candidate is one catalog entry returned by the search collaborator.
type Candidate struct {
	Name string `json:"name"`
	Ref  string `json:"ref"`
}

// Kind classifies how safe a match result is to act on.
type Kind string

const (
	MatchExact  Kind = "exact"
	MatchHigh   Kind = "high_confidence"
	MatchMedium Kind = "medium_confidence"
	MatchAmbig  Kind = "ambiguous"
	MatchNone   Kind = "no_match"
)

// Result reports the outcome of a single match attempt. It is never persisted
// standalone; the orchestrator folds it into the record.
type Result struct {
	Entry *Candidate
	Kind  Kind
	Score float64
}

// Match resolves a requested entry name against search candidates. Only the
// best-scoring candidate is selected, and when two or more distinct candidates
// clear the high-confidence threshold the result is forced to ambiguous with
// no selection: near-ties must never silently pick one. Candidates without a
// name are skipped.
func Match(requested string, candidates []Candidate) Result {
	normalized := NormalizeName(requested)
	if normalized == "" || len(candidates) == 0 {
		return Result{Kind: MatchNone}
	}

	var (
		best      *Candidate
		bestScore float64
		// Ambiguity is about distinct entries: the same candidate listed
		// twice by the backend must not trip it.
		highRefs = make(map[string]struct{})
	)
	for i := range candidates {
		if candidates[i].Name == "" {
			continue
		}
		score := SimilarityRatio(normalized, NormalizeName(candidates[i].Name))
		if score >= HighConfidenceThreshold {
			key := candidates[i].Ref
			if key == "" {
				key = NormalizeName(candidates[i].Name)
			}
			highRefs[key] = struct{}{}
		}
		if best == nil || score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	if best == nil {
		return Result{Kind: MatchNone}
	}
	if len(highRefs) >= 2 {
		return Result{Kind: MatchAmbig, Score: bestScore}
	}

	switch {
	case bestScore >= ExactThreshold:
		entry := *best
		return Result{Entry: &entry, Kind: MatchExact, Score: bestScore}
	case bestScore >= HighConfidenceThreshold:
		entry := *best
		return Result{Entry: &entry, Kind: MatchHigh, Score: bestScore}
	case bestScore >= MediumThreshold:
		entry := *best
		return Result{Entry: &entry, Kind: MatchMedium, Score: bestScore}
	default:
		return Result{Kind: MatchNone, Score: bestScore}
	}
}

// ShouldProceed reports whether a match kind is safe to auto-apply. Medium
// confidence, ambiguous, and no-match results always escalate.
func ShouldProceed(kind Kind) bool {
	return kind == MatchExact || kind == MatchHigh
}
