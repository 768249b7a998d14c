// Package savedsearch 执行招聘方保存的候选人检索，只记录新命中的候选人。
package savedsearch

import (
	"strings"

	"jobboard/internal/database"
	"jobboard/internal/matching"
	"jobboard/internal/visibility"
)

// keywordFields 是关键词检索覆盖的字段，每个字段单独经过可见性判定。
var keywordFields = []visibility.FieldKey{
	visibility.FieldHeadline,
	visibility.FieldSkills,
	visibility.FieldProjects,
	visibility.FieldExperience,
	visibility.FieldEducation,
}

// Criteria 是一次检索的条件。
type Criteria struct {
	Keywords      string
	Location      string
	MinExperience int
}

// CriteriaOf 从保存的检索读取条件。
func CriteriaOf(s *database.SavedCandidateSearch) Criteria {
	return Criteria{Keywords: s.Keywords, Location: s.Location, MinExperience: s.MinExperience}
}

// Matcher 针对某个查看者判定候选人是否满足条件。
type Matcher struct {
	viewer   visibility.Viewer
	keywords []string
	location string
	minYears int
}

// NewMatcher 预先切分关键词。
func NewMatcher(viewer visibility.Viewer, c Criteria) *Matcher {
	tokens := matching.Tokenize(c.Keywords)
	keywords := make([]string, 0, len(tokens))
	for t := range tokens {
		keywords = append(keywords, t)
	}
	return &Matcher{
		viewer:   viewer,
		keywords: keywords,
		location: strings.TrimSpace(c.Location),
		minYears: c.MinExperience,
	}
}

// Match 判定候选人是否命中。查看者看不到的字段不参与匹配。
func (m *Matcher) Match(p *database.Profile) bool {
	if !visibility.CanView(m.viewer, p, visibility.FieldHeadline) {
		return false
	}

	if len(m.keywords) > 0 {
		haystack := m.searchableText(p)
		for _, kw := range m.keywords {
			if !strings.Contains(haystack, kw) {
				return false
			}
		}
	}

	if m.location != "" {
		if !visibility.CanView(m.viewer, p, visibility.FieldLocation) {
			return false
		}
		if matching.LocationScore(p.Location, m.location) == 0 {
			return false
		}
	}

	if m.minYears > 0 {
		if !visibility.CanView(m.viewer, p, visibility.FieldExperience) {
			return false
		}
		if p.YearsExperience < m.minYears {
			return false
		}
	}
	return true
}

func (m *Matcher) searchableText(p *database.Profile) string {
	d := visibility.Disclose(m.viewer, p)
	parts := make([]string, 0, len(keywordFields))
	for _, f := range keywordFields {
		if v := d.Get(f); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}
