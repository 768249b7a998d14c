// Package matching 实现基于词集合的技能/地点打分以及加权排序。
// 匹配刻意保持词法层面：便宜、可解释，不做语义理解。
package matching

import (
	"strings"
	"unicode"
)

const (
	candidateCoverageWeight = 70
	jobCoverageWeight       = 30
	maxScore                = 100
)

var stopWords = map[string]struct{}{
	"and": {}, "or": {}, "the": {}, "a": {}, "an": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
}

func isDelimiter(r rune) bool {
	return unicode.IsSpace(r) || r == ',' || r == ';'
}

// Tokenize 小写化后按空白、逗号、分号切分，并去掉停用词。
func Tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), isDelimiter)
	tokens := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		tokens[w] = struct{}{}
	}
	return tokens
}

// SkillScore 返回 [0,100] 的技能匹配分。
//
// 分数 = 70% 候选人覆盖率（候选人词在职位词中的比例）+ 30% 职位覆盖率，
// 截断为整数。任一侧分词后为空时得 0。
func SkillScore(candidateText, jobText string) int {
	candidate := Tokenize(candidateText)
	job := Tokenize(jobText)
	if len(candidate) == 0 || len(job) == 0 {
		return 0
	}

	overlap := 0
	for token := range candidate {
		if _, ok := job[token]; ok {
			overlap++
		}
	}

	// trunc(70*o/|C| + 30*o/|J|)，整数运算保证截断精确。
	c, j := len(candidate), len(job)
	score := (candidateCoverageWeight*overlap*j + jobCoverageWeight*overlap*c) / (c * j)
	if score > maxScore {
		return maxScore
	}
	return score
}

// LocationScore 完全一致得 100，任一方向包含得 50，否则 0。
func LocationScore(candidateLoc, jobLoc string) int {
	c := strings.ToLower(strings.TrimSpace(candidateLoc))
	j := strings.ToLower(strings.TrimSpace(jobLoc))
	if c == "" || j == "" {
		return 0
	}
	switch {
	case c == j:
		return 100
	case strings.Contains(j, c), strings.Contains(c, j):
		return 50
	default:
		return 0
	}
}

// JobText 拼接参与打分的职位文本。
func JobText(description, title, category string) string {
	return description + " " + title + " " + category
}
