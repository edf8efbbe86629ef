package nlp

import (
	"math"
	"strconv"
	"strings"

	"github.com/reperto-cdss-server/internal/domain"
)

const (
	depthBoostPerLevel = 0.05
	maxDepthBoost      = 0.30
)

// Confidence scores how well a rubric matches a token set.
//
// hits counts tokens of the whole set found as substrings of the lower-cased
// full path. With no hits the result is exactly 0 and no matched tokens.
// Otherwise the score is hits/len(tokens) plus a depth boost capped at 0.30,
// the sum capped at 1.0, rounded to three decimals.
func Confidence(tokens domain.TokenSet, rubric domain.RubricNode) (float64, []string) {
	if tokens.Empty() {
		return 0, []string{}
	}

	path := strings.ToLower(rubric.FullPath)
	matched := make([]string, 0, tokens.Len())
	for _, tok := range tokens {
		if strings.Contains(path, tok) {
			matched = append(matched, tok)
		}
	}
	if len(matched) == 0 {
		return 0, []string{}
	}

	ratio := float64(len(matched)) / float64(tokens.Len())
	boost := math.Min(float64(rubric.Depth)*depthBoostPerLevel, maxDepthBoost)
	return round3(math.Min(ratio+boost, 1.0)), matched
}

// round3 rounds to three decimals using the shortest correctly rounded
// decimal of the binary value.
func round3(x float64) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 3, 64), 64)
	if err != nil {
		return x
	}
	return v
}
