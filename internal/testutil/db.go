// Package testutil 提供测试共用的数据库夹具。
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"jobboard/internal/database"
)

var dsnReplacer = strings.NewReplacer("/", "_", " ", "_", "#", "_", "?", "_", "&", "_", "=", "_")

// NewDB 打开一个每个测试独立的内存 SQLite 并完成迁移。
// 单连接保证同一个测试内看到同一份数据，并让并发写串行化。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dsnReplacer.Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// UserOptions 描述测试账号。
type UserOptions struct {
	Username            string
	Staff               bool
	Recruiter           bool
	Inactive            bool
	Visibility          database.Visibility
	Skills              string
	Location            string
	Headline            string
	Experience          string
	Education           string
	Projects            string
	Years               int
	ShowAllToRecruiters bool
}

// CreateUser 直接写入账号与资料，返回资料（含账号）。
func CreateUser(t *testing.T, db *gorm.DB, opts UserOptions) *database.Profile {
	t.Helper()
	if opts.Visibility == "" {
		opts.Visibility = database.VisibilityPublic
	}
	acct := database.Account{
		Username:  opts.Username,
		Email:     opts.Username + "@example.com",
		FirstName: opts.Username,
		IsStaff:   opts.Staff,
		IsActive:  !opts.Inactive,
	}
	if err := db.Create(&acct).Error; err != nil {
		t.Fatalf("create account %s: %v", opts.Username, err)
	}
	profile := database.Profile{
		UserID:          acct.ID,
		IsRecruiter:     opts.Recruiter,
		Visibility:      opts.Visibility,
		Skills:          opts.Skills,
		Location:        opts.Location,
		Headline:        opts.Headline,
		Experience:      opts.Experience,
		Education:       opts.Education,
		Projects:        opts.Projects,
		YearsExperience: opts.Years,
		ShowEmail:       opts.ShowAllToRecruiters,
		ShowPhone:       opts.ShowAllToRecruiters,
		ShowResume:      opts.ShowAllToRecruiters,
		ShowEducation:   opts.ShowAllToRecruiters,
		ShowExperience:  opts.ShowAllToRecruiters,
	}
	if err := db.Omit(clause.Associations).Create(&profile).Error; err != nil {
		t.Fatalf("create profile %s: %v", opts.Username, err)
	}
	profile.Account = acct
	return &profile
}

// CreateJob 写入一个职位。
func CreateJob(t *testing.T, db *gorm.DB, ownerID uint, title, description, location string) *database.Job {
	t.Helper()
	job := database.Job{UserID: ownerID, Title: title, Description: description, Location: location}
	if err := db.WithContext(context.Background()).Create(&job).Error; err != nil {
		t.Fatalf("create job %s: %v", title, err)
	}
	return &job
}
