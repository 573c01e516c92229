package swarm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSON = errors.New("completion contains no JSON object")

// requiredKeys lists the fields, besides confidence, that a completion must
// carry for each task type. A response missing any of them is malformed, not a
// partially-valid value.
var requiredKeys = map[TaskType][]string{
	TaskIntentClassification: {"primary_intent"},
	TaskDataAnalysis:         {"analysis"},
	TaskModelBuilding:        {"model", "model_type"},
	TaskSolutionSolving:      {"solution"},
}

// parseValue extracts the first JSON object from an LLM completion and
// validates it against the task type's expected schema. It returns the
// structured value and the agent's self-reported confidence clamped to [0,1].
func parseValue(taskType TaskType, text string) (map[string]any, float64, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, 0, err
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, 0, fmt.Errorf("invalid JSON object: %w", err)
	}

	for _, key := range requiredKeys[taskType] {
		v, ok := value[key]
		if !ok || v == nil {
			return nil, 0, fmt.Errorf("missing required field %q for %s", key, taskType)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return nil, 0, fmt.Errorf("empty required field %q for %s", key, taskType)
		}
	}

	conf, ok := value["confidence"].(float64)
	if !ok {
		return nil, 0, fmt.Errorf("missing or non-numeric confidence for %s", taskType)
	}

	return value, clamp01(conf), nil
}

// extractJSON returns the first balanced top-level JSON object in text.
// Models often wrap their JSON in prose or code fences, so a plain
// json.Unmarshal of the whole completion is not enough.
func extractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", errNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", errNoJSON
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
