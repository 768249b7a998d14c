package matching

import (
	"math"
	"sort"

	"jobboard/internal/errcode"
)

// Weights 是复合分中各子分的权重。
type Weights struct {
	Skill    float64
	Location float64
}

// DefaultWeights 与配置默认值一致。
var DefaultWeights = Weights{Skill: 0.7, Location: 0.3}

const (
	DefaultThreshold = 15
	DefaultTopK      = 10
)

// Side 是参与打分的一侧文本。
type Side struct {
	Text     string
	Location string
}

// Pair 是一个待打分的 (主体, 目标) 组合，TargetID 用于排序与落库。
// Candidate 永远是候选人一侧，Job 永远是职位一侧，与推荐方向无关。
type Pair struct {
	TargetID  uint
	Candidate Side
	Job       Side
}

// Ranked 是排序后的结果。
type Ranked struct {
	TargetID      uint
	Score         int
	SkillScore    int
	LocationScore int
}

// Ranker 负责复合打分、阈值过滤、排序与截断。
type Ranker struct {
	weights   Weights
	threshold int
	topK      int
}

// NewRanker 校验配置并构造 Ranker。负权重属于编程错误，直接拒绝。
func NewRanker(weights Weights, threshold, topK int) (*Ranker, error) {
	if weights.Skill < 0 || weights.Location < 0 {
		return nil, &errcode.ValidationError{Msg: "ranker weights must not be negative"}
	}
	if !finite(weights.Skill) || !finite(weights.Location) {
		return nil, &errcode.ValidationError{Msg: "ranker weights must be finite numbers"}
	}
	if topK <= 0 {
		return nil, &errcode.ValidationError{Msg: "ranker top-k must be positive"}
	}
	return &Ranker{
		weights:   weights,
		threshold: clampScore(threshold),
		topK:      topK,
	}, nil
}

// Threshold 返回保留结果所需的最低分（不含）。
func (r *Ranker) Threshold() int { return r.threshold }

// TopK 返回结果上限。
func (r *Ranker) TopK() int { return r.topK }

// Composite 计算 floor(skill*Wskill + location*Wloc) 并夹到 [0,100]。
func (r *Ranker) Composite(skill, location int) int {
	skill, location = clampScore(skill), clampScore(location)
	raw := float64(skill)*r.weights.Skill + float64(location)*r.weights.Location
	// 1e-9 吸收 0.7*100 这类浮点误差，避免 70 被截成 69。
	return clampScore(int(math.Floor(raw + 1e-9)))
}

// Score 为单个组合计算全部分数。
func (r *Ranker) Score(p Pair) Ranked {
	skill := SkillScore(p.Candidate.Text, p.Job.Text)
	location := LocationScore(p.Candidate.Location, p.Job.Location)
	return Ranked{
		TargetID:      p.TargetID,
		Score:         r.Composite(skill, location),
		SkillScore:    skill,
		LocationScore: location,
	}
}

// Rank 对候选池打分，保留高于阈值的结果，按分数降序、TargetID 升序排序后截断到 top-K。
func (r *Ranker) Rank(pairs []Pair) []Ranked {
	ranked := make([]Ranked, 0, len(pairs))
	for _, p := range pairs {
		scored := r.Score(p)
		if scored.Score <= r.threshold {
			continue
		}
		ranked = append(ranked, scored)
	}

	return r.truncate(ranked)
}

// Merge 合并两段已排序结果并重新截断，用于分批扫描候选池。
func (r *Ranker) Merge(a, b []Ranked) []Ranked {
	merged := make([]Ranked, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return r.truncate(merged)
}

func (r *Ranker) truncate(ranked []Ranked) []Ranked {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].TargetID < ranked[j].TargetID
	})

	if len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}
	return ranked
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
