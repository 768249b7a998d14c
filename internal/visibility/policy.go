// Package visibility 决定某个查看者能否看到候选人资料上的某个字段。
package visibility

import (
	"fmt"

	"jobboard/internal/database"
)

// Viewer 是发起读取的一方。
type Viewer struct {
	UserID      uint
	IsStaff     bool
	IsRecruiter bool
}

// FieldKey 标识资料上的一个可披露字段。
type FieldKey string

const (
	FieldFirstName  FieldKey = "first_name"
	FieldLastName   FieldKey = "last_name"
	FieldEmail      FieldKey = "email"
	FieldPhone      FieldKey = "phone"
	FieldResume     FieldKey = "resume"
	FieldEducation  FieldKey = "education"
	FieldExperience FieldKey = "experience"
	FieldLocation   FieldKey = "location"
	FieldSkills     FieldKey = "skills"
	FieldProjects   FieldKey = "projects"
	FieldHeadline   FieldKey = "headline"
)

type fieldSpec struct {
	// toggle 为 nil 表示该字段没有独立开关。
	toggle    func(*database.Profile) bool
	value     func(*database.Profile) string
	sensitive bool
}

// fields 是唯一的字段表；新增字段只改这里。
var fields = map[FieldKey]fieldSpec{
	FieldEmail: {
		toggle:    func(p *database.Profile) bool { return p.ShowEmail },
		value:     func(p *database.Profile) string { return p.Account.Email },
		sensitive: true,
	},
	FieldPhone: {
		toggle:    func(p *database.Profile) bool { return p.ShowPhone },
		value:     func(p *database.Profile) string { return p.Phone },
		sensitive: true,
	},
	FieldResume: {
		toggle:    func(p *database.Profile) bool { return p.ShowResume },
		value:     func(p *database.Profile) string { return p.ResumeObjectKey },
		sensitive: true,
	},
	FieldEducation: {
		toggle:    func(p *database.Profile) bool { return p.ShowEducation },
		value:     func(p *database.Profile) string { return p.Education },
		sensitive: true,
	},
	FieldExperience: {
		toggle:    func(p *database.Profile) bool { return p.ShowExperience },
		value:     func(p *database.Profile) string { return p.Experience },
		sensitive: true,
	},
	FieldFirstName: {
		toggle: func(p *database.Profile) bool { return p.ShowFirstName },
		value:  func(p *database.Profile) string { return p.Account.FirstName },
	},
	FieldLastName: {
		toggle: func(p *database.Profile) bool { return p.ShowLastName },
		value:  func(p *database.Profile) string { return p.Account.LastName },
	},
	FieldLocation: {
		toggle: func(p *database.Profile) bool { return p.ShowLocation },
		value:  func(p *database.Profile) string { return p.Location },
	},
	FieldSkills: {
		toggle: func(p *database.Profile) bool { return p.ShowSkills },
		value:  func(p *database.Profile) string { return p.Skills },
	},
	FieldProjects: {
		toggle: func(p *database.Profile) bool { return p.ShowProjects },
		value:  func(p *database.Profile) string { return p.Projects },
	},
	FieldHeadline: {
		value: func(p *database.Profile) string { return p.Headline },
	},
}

// orderedFields 固定 Disclose 的遍历顺序。
var orderedFields = []FieldKey{
	FieldFirstName, FieldLastName, FieldHeadline, FieldEmail, FieldPhone,
	FieldLocation, FieldSkills, FieldEducation, FieldExperience, FieldProjects, FieldResume,
}

func init() {
	if err := validateFields(fields, orderedFields); err != nil {
		panic(err)
	}
}

func validateFields(table map[FieldKey]fieldSpec, order []FieldKey) error {
	if len(table) != len(order) {
		return fmt.Errorf("visibility: field table has %d entries, order lists %d", len(table), len(order))
	}
	for _, key := range order {
		entry, ok := table[key]
		if !ok {
			return fmt.Errorf("visibility: field %q missing from table", key)
		}
		if entry.value == nil {
			return fmt.Errorf("visibility: field %q has no value accessor", key)
		}
		if entry.sensitive && entry.toggle == nil {
			return fmt.Errorf("visibility: sensitive field %q has no toggle", key)
		}
	}
	return nil
}

// IsSensitive 报告字段是否受招聘方开关控制。
func IsSensitive(field FieldKey) bool {
	return fields[field].sensitive
}

// CanView 按固定顺序判定，首个命中的规则生效：
//  1. 本人或 staff 可见；
//  2. PRIVATE 不可见；
//  3. RECRUITERS 且查看者不是招聘方不可见；
//  4. 敏感字段仅对招聘方且开关打开时可见；
//  5. 其余可见。
//
// 未登记的字段一律不可见（本人和 staff 除外）。
func CanView(viewer Viewer, owner *database.Profile, field FieldKey) bool {
	if owner == nil {
		return false
	}
	if viewer.UserID != 0 && viewer.UserID == owner.UserID {
		return true
	}
	if viewer.IsStaff {
		return true
	}

	entry, ok := fields[field]
	if !ok {
		return false
	}

	switch owner.Visibility {
	case database.VisibilityPrivate:
		return false
	case database.VisibilityRecruiters:
		if !viewer.IsRecruiter {
			return false
		}
	case database.VisibilityPublic:
	default:
		// 未知取值按最严格处理
		return false
	}

	if entry.sensitive {
		return viewer.IsRecruiter && entry.toggle(owner)
	}
	return true
}

// Disclosure 是逐字段过滤后的资料视图，只包含可见字段。
type Disclosure struct {
	UserID uint
	Fields map[FieldKey]string
}

// Has 报告字段是否被披露。
func (d Disclosure) Has(field FieldKey) bool {
	_, ok := d.Fields[field]
	return ok
}

// Get 返回已披露字段的值。
func (d Disclosure) Get(field FieldKey) string {
	return d.Fields[field]
}

// Disclose 将每个字段分别交给 CanView 判定。
func Disclose(viewer Viewer, owner *database.Profile) Disclosure {
	out := Disclosure{Fields: map[FieldKey]string{}}
	if owner == nil {
		return out
	}
	out.UserID = owner.UserID
	for _, key := range orderedFields {
		if CanView(viewer, owner, key) {
			out.Fields[key] = fields[key].value(owner)
		}
	}
	return out
}

// Fields 返回全部已登记字段，顺序稳定。
func Fields() []FieldKey {
	return append([]FieldKey(nil), orderedFields...)
}
