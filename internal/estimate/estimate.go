// Package estimate summarizes a set of revealed votes.
package estimate

import (
	"math"
	"sort"

	"github.com/trmquang93/planning-poker-sub001/internal/model"
)

type Consensus string

const (
	ConsensusStrong   Consensus = "strong"
	ConsensusModerate Consensus = "moderate"
	ConsensusWeak     Consensus = "weak"
	ConsensusNone     Consensus = "no-consensus"
	ConsensusNoVotes  Consensus = "no-votes"
)

const (
	strongShare     = 0.75
	moderateShare   = 0.5
	weakMaxDistinct = 3
)

// Bucket is one distinct vote and how often it was played.
type Bucket struct {
	Value model.VoteValue `json:"value"`
	Count int             `json:"count"`
}

type Summary struct {
	VoteCount    int              `json:"voteCount"`
	Average      *float64         `json:"average,omitempty"`
	Median       *float64         `json:"median,omitempty"`
	Suggestion   *model.VoteValue `json:"suggestion,omitempty"`
	Consensus    Consensus        `json:"consensus"`
	ModalShare   float64          `json:"modalShare"`
	Disagreement *float64         `json:"disagreement,omitempty"`
	Distribution []Bucket         `json:"distribution"`
}

// positives returns the numeric votes greater than zero. Tokens such as "?"
// are skipped, never coerced.
func positives(votes []model.VoteValue) []float64 {
	out := make([]float64, 0, len(votes))
	for _, v := range votes {
		if n, ok := v.Number(); ok && n > 0 {
			out = append(out, n)
		}
	}
	return out
}

// Average is the mean of the positive numeric votes.
func Average(votes []model.VoteValue) (float64, bool) {
	nums := positives(votes)
	if len(nums) == 0 {
		return 0, false
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums)), true
}

// Median of the positive numeric votes; even counts average the two middle values.
func Median(votes []model.VoteValue) (float64, bool) {
	nums := positives(votes)
	if len(nums) == 0 {
		return 0, false
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 0 {
		return (nums[mid-1] + nums[mid]) / 2, true
	}
	return nums[mid], true
}

// Distribution tallies votes by their canonical text in first-seen order.
func Distribution(votes []model.VoteValue) []Bucket {
	index := make(map[string]int)
	buckets := make([]Bucket, 0)
	for _, v := range votes {
		if v.IsZero() {
			continue
		}
		key := v.String()
		if i, ok := index[key]; ok {
			buckets[i].Count++
			continue
		}
		index[key] = len(buckets)
		buckets = append(buckets, Bucket{Value: model.ParseVoteValue(key), Count: 1})
	}
	return buckets
}

// Suggest returns the most frequent vote. Ties go to the value seen first.
// Values that read as numbers come back numeric.
func Suggest(votes []model.VoteValue) (model.VoteValue, bool) {
	buckets := Distribution(votes)
	if len(buckets) == 0 {
		return model.VoteValue{}, false
	}
	best := buckets[0]
	for _, b := range buckets[1:] {
		if b.Count > best.Count {
			best = b
		}
	}
	return best.Value, true
}

// AnalyzeConsensus classifies agreement from the share of the modal vote.
func AnalyzeConsensus(votes []model.VoteValue) (Consensus, float64) {
	buckets := Distribution(votes)
	total := 0
	top := 0
	for _, b := range buckets {
		total += b.Count
		if b.Count > top {
			top = b.Count
		}
	}
	if total == 0 {
		return ConsensusNoVotes, 0
	}

	share := float64(top) / float64(total)
	switch {
	case share >= strongShare:
		return ConsensusStrong, share
	case share >= moderateShare:
		return ConsensusModerate, share
	case len(buckets) <= weakMaxDistinct:
		return ConsensusWeak, share
	default:
		return ConsensusNone, share
	}
}

// Disagreement is the coefficient of variation of the positive numeric votes,
// as a percentage rounded to one decimal.
func Disagreement(votes []model.VoteValue) (float64, bool) {
	nums := positives(votes)
	if len(nums) == 0 {
		return 0, false
	}
	mean, _ := Average(votes)

	var sq float64
	for _, n := range nums {
		d := n - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(len(nums)))
	return math.Round(stddev/mean*1000) / 10, true
}

func Summarize(votes []model.VoteValue) Summary {
	consensus, share := AnalyzeConsensus(votes)
	s := Summary{
		Consensus:    consensus,
		ModalShare:   share,
		Distribution: Distribution(votes),
	}
	for _, b := range s.Distribution {
		s.VoteCount += b.Count
	}
	if avg, ok := Average(votes); ok {
		s.Average = &avg
	}
	if med, ok := Median(votes); ok {
		s.Median = &med
	}
	if sug, ok := Suggest(votes); ok {
		s.Suggestion = &sug
	}
	if dis, ok := Disagreement(votes); ok {
		s.Disagreement = &dis
	}
	return s
}
