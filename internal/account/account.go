// Package account 负责读取操作者身份，并在账号创建后显式初始化资料。
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobboard/internal/auth"
	"jobboard/internal/database"
	"jobboard/internal/errcode"
	"jobboard/internal/visibility"
)

// Actor 是一次调用的发起者。
type Actor struct {
	UserID      uint
	IsStaff     bool
	IsRecruiter bool
	IsActive    bool
}

// Viewer 转换为可见性判定使用的视角。
func (a Actor) Viewer() visibility.Viewer {
	return visibility.Viewer{UserID: a.UserID, IsStaff: a.IsStaff, IsRecruiter: a.IsRecruiter}
}

// LoadActor 读取账号与资料。账号不存在返回 ErrNotFound；资料缺失时按非招聘方处理。
func LoadActor(ctx context.Context, db *gorm.DB, userID uint) (Actor, error) {
	var acct database.Account
	if err := db.WithContext(ctx).First(&acct, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Actor{}, fmt.Errorf("account %d: %w", userID, errcode.ErrNotFound)
		}
		return Actor{}, fmt.Errorf("load account: %w", err)
	}

	actor := Actor{UserID: acct.ID, IsStaff: acct.IsStaff, IsActive: acct.IsActive}

	var profile database.Profile
	err := db.WithContext(ctx).Select("is_recruiter").Where("user_id = ?", userID).Take(&profile).Error
	switch {
	case err == nil:
		actor.IsRecruiter = profile.IsRecruiter
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return Actor{}, fmt.Errorf("load profile: %w", err)
	}
	return actor, nil
}

// EnsureProfile 为账号创建默认资料（隐私优先），已存在时不做修改。
// 由账号创建回调和管理命令显式调用。
func EnsureProfile(ctx context.Context, db *gorm.DB, userID uint, isRecruiter bool) (*database.Profile, error) {
	if userID == 0 {
		return nil, &errcode.ValidationError{Msg: "user id is required"}
	}

	var count int64
	if err := db.WithContext(ctx).Model(&database.Account{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check account: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("account %d: %w", userID, errcode.ErrNotFound)
	}

	profile := database.Profile{
		UserID:      userID,
		IsRecruiter: isRecruiter,
		Visibility:  database.VisibilityRecruiters,
	}
	err := db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&profile).Error
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	var stored database.Profile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).Take(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload profile: %w", err)
	}
	return &stored, nil
}

// NewAccount 是管理命令创建账号的输入。
type NewAccount struct {
	Username    string
	Email       string
	FirstName   string
	LastName    string
	Password    string
	IsStaff     bool
	IsRecruiter bool
}

// CreateAccount 创建账号并初始化资料，两步在同一事务内完成。
func CreateAccount(ctx context.Context, db *gorm.DB, in NewAccount) (*database.Account, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, &errcode.ValidationError{Msg: "username is required"}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, &errcode.ValidationError{Msg: err.Error()}
		}
		return nil, err
	}

	acct := database.Account{
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		IsStaff:      in.IsStaff,
		IsActive:     true,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&acct).Error; err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		_, err := EnsureProfile(ctx, tx, acct.ID, in.IsRecruiter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// LoadProfile 读取资料并预加载账号（披露 email/姓名需要）。
func LoadProfile(ctx context.Context, db *gorm.DB, userID uint) (*database.Profile, error) {
	var profile database.Profile
	err := db.WithContext(ctx).Preload("Account").Where("user_id = ?", userID).Take(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("profile for user %d: %w", userID, errcode.ErrNotFound)
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &profile, nil
}

// ErrBadCredentials 表示用户名或口令不正确，不区分是哪一项。
var ErrBadCredentials = errors.New("invalid username or password")

// Authenticate 校验口令。停用账号视为 Forbidden。
func Authenticate(ctx context.Context, db *gorm.DB, username, password string) (*database.Account, error) {
	var acct database.Account
	err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acct.PasswordHash == "" || !auth.CheckPasswordHash(password, acct.PasswordHash) {
		return nil, ErrBadCredentials
	}
	if !acct.IsActive {
		return nil, fmt.Errorf("account %d is inactive: %w", acct.ID, errcode.ErrForbidden)
	}
	return &acct, nil
}
