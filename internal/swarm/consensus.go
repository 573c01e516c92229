package swarm

import (
	"fmt"
	"sort"
)

// Aggregation algorithm identifiers, recorded on every ConsensusResult.
const (
	AlgorithmMajorityVote  = "majority_vote"
	AlgorithmBestCandidate = "best_candidate"
)

// Policy describes how a stage reduces its agent outcomes to one consensus.
//
// Majority vote treats ValueKey as a categorical label and picks the mode.
// Best candidate keeps the single highest-confidence value and scores
// agreement by how many peers proposed a compatible SimilarityKey category.
type Policy struct {
	Algorithm     string
	ValueKey      string
	SimilarityKey string
	MinQuorum     int
}

// PolicyFor returns the stage's default aggregation policy. Intent labels are
// voted on; the structured stages keep the best candidate whole rather than
// merging fields across agents.
func PolicyFor(taskType TaskType, minQuorum int) Policy {
	switch taskType {
	case TaskIntentClassification:
		return Policy{Algorithm: AlgorithmMajorityVote, ValueKey: "primary_intent", MinQuorum: minQuorum}
	case TaskDataAnalysis:
		return Policy{Algorithm: AlgorithmBestCandidate, SimilarityKey: "analysis_type", MinQuorum: minQuorum}
	case TaskModelBuilding:
		return Policy{Algorithm: AlgorithmBestCandidate, SimilarityKey: "model_type", MinQuorum: minQuorum}
	case TaskSolutionSolving:
		return Policy{Algorithm: AlgorithmBestCandidate, SimilarityKey: "solution_status", MinQuorum: minQuorum}
	default:
		return Policy{Algorithm: AlgorithmBestCandidate, MinQuorum: minQuorum}
	}
}

// Aggregate reduces a multiset of outcomes into one ConsensusResult. The
// result depends only on the multiset, never on arrival order. When fewer
// than the quorum of outcomes are ok it returns a QuorumError; zero ok
// outcomes is always a failure, never a low-confidence success.
func Aggregate(taskType TaskType, outcomes []AgentOutcome, policy Policy) (*ConsensusResult, error) {
	quorum := policy.MinQuorum
	if quorum < 1 {
		quorum = 1
	}

	ok := okOutcomes(outcomes)
	if len(ok) < quorum {
		return nil, &QuorumError{TaskType: taskType, OK: len(ok), Quorum: quorum}
	}

	switch policy.Algorithm {
	case AlgorithmMajorityVote:
		return majorityVote(ok, policy.ValueKey), nil
	default:
		return bestCandidate(ok, policy.SimilarityKey), nil
	}
}

// majorityVote picks the most frequent label among ok outcomes. Ties break on
// highest mean supporter confidence, then on the group holding the
// lexicographically smallest agent ID.
func majorityVote(ok []AgentOutcome, valueKey string) *ConsensusResult {
	byLabel := make(map[string][]AgentOutcome)
	var labels []string
	for _, o := range ok {
		label := fmt.Sprintf("%v", o.Value[valueKey])
		if _, exists := byLabel[label]; !exists {
			labels = append(labels, label)
		}
		byLabel[label] = append(byLabel[label], o)
	}
	sort.Strings(labels)

	winner := labels[0]
	for _, label := range labels[1:] {
		if beats(byLabel[label], byLabel[winner]) {
			winner = label
		}
	}

	supporters := byLabel[winner]
	agreement := float64(len(supporters)) / float64(len(ok))

	return &ConsensusResult{
		Value:               bestOf(supporters).Value,
		Confidence:          clamp01(agreement * meanConfidence(supporters)),
		AgreementScore:      agreement,
		ParticipatingAgents: agentIDs(ok),
		Algorithm:           AlgorithmMajorityVote,
	}
}

// beats reports whether candidate group a outranks group b under the tie-break
// chain: supporter count, mean confidence, smallest minimum agent ID.
func beats(a, b []AgentOutcome) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	ca, cb := meanConfidence(a), meanConfidence(b)
	if ca != cb {
		return ca > cb
	}
	// okOutcomes sorted by agent ID, so the first supporter holds the minimum.
	return a[0].AgentID < b[0].AgentID
}

// bestCandidate keeps the single highest-confidence value. Agreement is the
// fraction of ok outcomes proposing a compatible category under simKey; with
// no usable category it defaults to 1/count(ok).
func bestCandidate(ok []AgentOutcome, simKey string) *ConsensusResult {
	winner := bestOf(ok)

	contributing := []AgentOutcome{winner}
	agreement := 1.0 / float64(len(ok))

	if category, exists := winner.Value[simKey]; simKey != "" && exists && category != nil {
		want := fmt.Sprintf("%v", category)
		compatible := make([]AgentOutcome, 0, len(ok))
		for _, o := range ok {
			if v, has := o.Value[simKey]; has && fmt.Sprintf("%v", v) == want {
				compatible = append(compatible, o)
			}
		}
		contributing = compatible
		agreement = float64(len(compatible)) / float64(len(ok))
	}

	return &ConsensusResult{
		Value:               winner.Value,
		Confidence:          clamp01(agreement * meanConfidence(contributing)),
		AgreementScore:      agreement,
		ParticipatingAgents: agentIDs(ok),
		Algorithm:           AlgorithmBestCandidate,
	}
}

// bestOf returns the outcome with the highest raw confidence; ties go to the
// lowest agent ID. Callers pass slices already sorted by agent ID.
func bestOf(outcomes []AgentOutcome) AgentOutcome {
	best := outcomes[0]
	for _, o := range outcomes[1:] {
		if o.RawConfidence > best.RawConfidence {
			best = o
		}
	}
	return best
}

func meanConfidence(outcomes []AgentOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var sum float64
	for _, o := range outcomes {
		sum += o.RawConfidence
	}
	return sum / float64(len(outcomes))
}

func agentIDs(outcomes []AgentOutcome) []string {
	ids := make([]string, len(outcomes))
	for i, o := range outcomes {
		ids[i] = o.AgentID
	}
	return ids
}
