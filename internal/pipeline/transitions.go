// Package pipeline 定义投递申请的状态机以及带授权的原子流转。
//
// 状态图：
//
//	SUBMITTED ──► REVIEW ──► INTERVIEW ──► OFFER ──► HIRED
//	    │            │           │            │
//	    ├────────────┴───────────┴────────────┴──► REJECTED   （职位发布者或 staff）
//	    └────────────┴───────────┴────────────┴──► WITHDRAWN  （仅申请人）
//
// HIRED、REJECTED、WITHDRAWN 为终态。WITHDRAWN 的申请可以通过重新投递回到 SUBMITTED。
package pipeline

import "fmt"

// Status 是申请所处的阶段。
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusReview    Status = "REVIEW"
	StatusInterview Status = "INTERVIEW"
	StatusOffer     Status = "OFFER"
	StatusHired     Status = "HIRED"
	StatusRejected  Status = "REJECTED"
	StatusWithdrawn Status = "WITHDRAWN"
)

// forward 是唯一的前进边。
var forward = map[Status]Status{
	StatusSubmitted: StatusReview,
	StatusReview:    StatusInterview,
	StatusInterview: StatusOffer,
	StatusOffer:     StatusHired,
}

// validTransitions 列出全部允许的 (from → to)。终态没有出边。
var validTransitions = map[Status][]Status{
	StatusSubmitted: {StatusReview, StatusRejected, StatusWithdrawn},
	StatusReview:    {StatusInterview, StatusRejected, StatusWithdrawn},
	StatusInterview: {StatusOffer, StatusRejected, StatusWithdrawn},
	StatusOffer:     {StatusHired, StatusRejected, StatusWithdrawn},
}

// ParseStatus 将字符串转换为 Status，未知值返回错误。
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusSubmitted, StatusReview, StatusInterview, StatusOffer,
		StatusHired, StatusRejected, StatusWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTransitionAllowed 判断 from → to 是否为状态机允许的边。
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next 返回前进边的目标状态；终态返回 false。
func Next(from Status) (Status, bool) {
	to, ok := forward[from]
	return to, ok
}

// IsTerminal 报告状态是否为终态。
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}
