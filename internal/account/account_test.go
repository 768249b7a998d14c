package account

import (
	"context"
	"errors"
	"testing"

	"jobboard/internal/database"
	"jobboard/internal/errcode"
	"jobboard/internal/testutil"
)

func TestCreateAccountInitializesPrivacyFirstProfile(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	acct, err := CreateAccount(ctx, db, NewAccount{Username: "rita", Email: "rita@example.com", Password: "hunter22", IsRecruiter: true})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if !acct.IsActive {
		t.Fatalf("new account should be active")
	}

	profile, err := LoadProfile(ctx, db, acct.ID)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if !profile.IsRecruiter || profile.Visibility != database.VisibilityRecruiters {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.ShowEmail || profile.ShowPhone || profile.ShowResume || profile.ShowEducation || profile.ShowExperience {
		t.Fatalf("toggles should default to off: %+v", profile)
	}
	if profile.Account.Email != "rita@example.com" {
		t.Fatalf("account not preloaded: %+v", profile.Account)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	var ve *errcode.ValidationError
	if _, err := CreateAccount(ctx, db, NewAccount{Username: " ", Password: "hunter22"}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for empty username, got %v", err)
	}
	if _, err := CreateAccount(ctx, db, NewAccount{Username: "bob", Password: "123"}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for weak password, got %v", err)
	}
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	acct := database.Account{Username: "cara", IsActive: true}
	if err := db.Create(&acct).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}

	first, err := EnsureProfile(ctx, db, acct.ID, false)
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if err := db.Model(&database.Profile{}).Where("id = ?", first.ID).Update("headline", "kept").Error; err != nil {
		t.Fatalf("update headline: %v", err)
	}

	second, err := EnsureProfile(ctx, db, acct.ID, true)
	if err != nil {
		t.Fatalf("EnsureProfile again: %v", err)
	}
	if second.ID != first.ID || second.Headline != "kept" || second.IsRecruiter {
		t.Fatalf("existing profile should be untouched: %+v", second)
	}

	var count int64
	db.Model(&database.Profile{}).Where("user_id = ?", acct.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected one profile, got %d", count)
	}

	if _, err := EnsureProfile(ctx, db, 9999, false); !errors.Is(err, errcode.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing account, got %v", err)
	}
}

func TestLoadActor(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	recruiter := testutil.CreateUser(t, db, testutil.UserOptions{Username: "rec", Recruiter: true})
	staff := testutil.CreateUser(t, db, testutil.UserOptions{Username: "admin", Staff: true})

	actor, err := LoadActor(ctx, db, recruiter.UserID)
	if err != nil {
		t.Fatalf("LoadActor: %v", err)
	}
	if !actor.IsRecruiter || actor.IsStaff || !actor.IsActive {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if v := actor.Viewer(); v.UserID != recruiter.UserID || !v.IsRecruiter {
		t.Fatalf("unexpected viewer: %+v", v)
	}

	staffActor, err := LoadActor(ctx, db, staff.UserID)
	if err != nil {
		t.Fatalf("LoadActor staff: %v", err)
	}
	if !staffActor.IsStaff {
		t.Fatalf("expected staff actor")
	}

	if _, err := LoadActor(ctx, db, 12345); !errors.Is(err, errcode.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	acct, err := CreateAccount(ctx, db, NewAccount{Username: "sam", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	got, err := Authenticate(ctx, db, " sam ", "correct-horse")
	if err != nil || got.ID != acct.ID {
		t.Fatalf("Authenticate = %v, %v", got, err)
	}
	if _, err := Authenticate(ctx, db, "sam", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := Authenticate(ctx, db, "nobody", "correct-horse"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown user err = %v", err)
	}

	if err := db.Model(&database.Account{}).Where("id = ?", acct.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := Authenticate(ctx, db, "sam", "correct-horse"); !errors.Is(err, errcode.ErrForbidden) {
		t.Fatalf("inactive err = %v, want forbidden", err)
	}
}
