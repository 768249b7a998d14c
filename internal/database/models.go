package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Visibility 是候选人资料的全局可见范围。
type Visibility string

const (
	VisibilityPublic     Visibility = "PUBLIC"
	VisibilityRecruiters Visibility = "RECRUITERS"
	VisibilityPrivate    Visibility = "PRIVATE"
)

// Account 镜像账号子系统中的用户。
type Account struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:64"`
	Email        string `gorm:"size:255"`
	FirstName    string `gorm:"size:64"`
	LastName     string `gorm:"size:64"`
	PasswordHash string `gorm:"size:255"`
	IsStaff      bool
	IsActive     bool   `gorm:"index"`
}

// Profile 与 Account 一对一，承载匹配所需的自由文本以及隐私开关。
// 开关默认全部关闭（隐私优先）。
type Profile struct {
	gorm.Model
	UserID      uint       `gorm:"uniqueIndex"`
	Account     Account    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	IsRecruiter bool       `gorm:"default:false"`
	Visibility  Visibility `gorm:"size:12;default:'RECRUITERS'"`

	ShowEmail      bool `gorm:"default:false"`
	ShowPhone      bool `gorm:"default:false"`
	ShowResume     bool `gorm:"default:false"`
	ShowEducation  bool `gorm:"default:false"`
	ShowExperience bool `gorm:"default:false"`
	ShowLocation   bool `gorm:"default:false"`
	ShowSkills     bool `gorm:"default:false"`
	ShowProjects   bool `gorm:"default:false"`
	ShowFirstName  bool `gorm:"default:false"`
	ShowLastName   bool `gorm:"default:false"`

	Headline        string `gorm:"size:120"`
	Phone           string `gorm:"size:30"`
	Skills          string `gorm:"type:text"`
	Location        string `gorm:"size:255"`
	Education       string `gorm:"type:text"`
	Experience      string `gorm:"type:text"`
	YearsExperience int
	Projects        string `gorm:"type:text"`
	ResumeObjectKey string `gorm:"size:512"`
}

// Job 表示招聘方发布的职位，UserID 为发布者。
type Job struct {
	gorm.Model
	UserID      uint   `gorm:"index"`
	Title       string `gorm:"size:255"`
	Description string `gorm:"type:text"`
	Category    string `gorm:"size:128"`
	Location    string `gorm:"size:255"`
	Salary      string `gorm:"size:64"`
}

// Application 是 (职位, 申请人) 唯一的投递记录。
// HistoryLog 为 JSON 数组，记录每一次状态流转。
type Application struct {
	ID          uint           `gorm:"primaryKey"`
	JobID       uint           `gorm:"uniqueIndex:idx_application_pair;not null"`
	ApplicantID uint           `gorm:"uniqueIndex:idx_application_pair;not null;index"`
	Status      string         `gorm:"size:16;not null"`
	Note        string         `gorm:"type:text"`
	HistoryLog  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CandidateRecommendation 是 职位 → 候选人 方向的推荐。
type CandidateRecommendation struct {
	ID          uint `gorm:"primaryKey"`
	JobID       uint `gorm:"uniqueIndex:idx_candidate_rec_pair;not null"`
	CandidateID uint `gorm:"uniqueIndex:idx_candidate_rec_pair;not null"`
	MatchScore  int  `gorm:"not null"`
	IsDismissed bool `gorm:"default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobRecommendation 是 候选人 → 职位 方向的推荐。
type JobRecommendation struct {
	ID          uint `gorm:"primaryKey"`
	CandidateID uint `gorm:"uniqueIndex:idx_job_rec_pair;not null"`
	JobID       uint `gorm:"uniqueIndex:idx_job_rec_pair;not null"`
	MatchScore  int  `gorm:"not null"`
	IsDismissed bool `gorm:"default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SavedCandidateSearch 是招聘方保存的候选人检索条件。
type SavedCandidateSearch struct {
	gorm.Model
	OwnerID       uint   `gorm:"index"`
	Name          string `gorm:"size:120"`
	Keywords      string `gorm:"size:255"`
	Location      string `gorm:"size:255"`
	MinExperience int
	IsActive      bool `gorm:"index"`
	LastRunAt     *time.Time
}

// SavedCandidateMatch 记录某次检索新命中的候选人。
type SavedCandidateMatch struct {
	ID          uint `gorm:"primaryKey"`
	SearchID    uint `gorm:"uniqueIndex:idx_saved_match_pair;not null"`
	CandidateID uint `gorm:"uniqueIndex:idx_saved_match_pair;not null"`
	MatchedAt   time.Time
	Seen        bool `gorm:"default:false;index"`
}
