package evaluator

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/richinex/llmchain/internal/json"
)

// LengthScorer rewards responses close to target runes, from 1 at an exact
// match down toward 0. Empty responses score 0.
func LengthScorer(target int) Scorer {
	return func(response string) float64 {
		n := utf8.RuneCountInString(strings.TrimSpace(response))
		if n == 0 || target <= 0 {
			return 0
		}
		return 1 - math.Abs(float64(n-target))/math.Max(float64(n), float64(target))
	}
}

// KeywordScorer returns the fraction of keywords present, case-insensitively.
func KeywordScorer(keywords ...string) Scorer {
	return func(response string) float64 {
		if len(keywords) == 0 {
			return 0
		}
		lower := strings.ToLower(response)
		hits := 0
		for _, k := range keywords {
			if strings.Contains(lower, strings.ToLower(k)) {
				hits++
			}
		}
		return float64(hits) / float64(len(keywords))
	}
}

// JSONScorer scores 1 for a response containing a JSON document. With
// required keys the response must hold an object, and the score is the
// fraction of keys present.
func JSONScorer(required ...string) Scorer {
	return func(response string) float64 {
		if len(required) == 0 {
			if _, err := json.Extract(response); err != nil {
				return 0
			}
			return 1
		}
		obj, err := json.Object(response)
		if err != nil {
			return 0
		}
		hits := 0
		for _, k := range required {
			if _, ok := obj[k]; ok {
				hits++
			}
		}
		return float64(hits) / float64(len(required))
	}
}
