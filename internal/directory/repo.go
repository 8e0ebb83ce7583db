package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

// Users

func (r *Repo) CreateUser(ctx context.Context, u *UserRecord) error {
	return r.db.WithContext(ctx).Create(u).Error
}
func (r *Repo) UpdateUser(ctx context.Context, u *UserRecord) error {
	return r.db.WithContext(ctx).Save(u).Error
}
func (r *Repo) DeleteUser(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&UserRecord{}, id).Error
}
func (r *Repo) GetUserByID(ctx context.Context, id uint) (*UserRecord, error) {
	var u UserRecord
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	var u UserRecord
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
func (r *Repo) ListUsers(ctx context.Context) ([]*UserRecord, error) {
	var arr []*UserRecord
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&arr).Error; err != nil {
		return nil, err
	}
	return arr, nil
}
func (r *Repo) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&UserRecord{}).Count(&n).Error
	return n, err
}

func (r *Repo) SetPassword(ctx context.Context, userID uint, plain string) error {
	if strings.TrimSpace(plain) == "" {
		return errors.New("empty password")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&UserRecord{}).Where("id = ?", userID).Update("password_hash", string(h)).Error
}

func (r *Repo) Verify(ctx context.Context, username, plain string) (*UserRecord, error) {
	u, err := r.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, errors.New("account disabled")
	}
	if u.PasswordHash == "" {
		return nil, errors.New("password not set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)); err != nil {
		return nil, errors.New("invalid credentials")
	}
	return u, nil
}

// Accounts (identifier assignments)

func (r *Repo) CreateAccount(ctx context.Context, a *AccountRecord) error {
	return r.db.WithContext(ctx).Create(a).Error
}
func (r *Repo) DeleteAccount(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&AccountRecord{}, id).Error
}
func (r *Repo) GetAccountByIdentifier(ctx context.Context, identifier string) (*AccountRecord, error) {
	var a AccountRecord
	if err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
func (r *Repo) ListAccounts(ctx context.Context) ([]*AccountRecord, error) {
	var arr []*AccountRecord
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&arr).Error; err != nil {
		return nil, err
	}
	return arr, nil
}
func (r *Repo) ListAccountsByUser(ctx context.Context, userID uint) ([]*AccountRecord, error) {
	var arr []*AccountRecord
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&arr).Error; err != nil {
		return nil, err
	}
	return arr, nil
}

// AccountExists reports whether an identifier is assigned in the directory.
func (r *Repo) AccountExists(ctx context.Context, identifier string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&AccountRecord{}).Where("identifier = ?", identifier).Count(&n).Error
	return n > 0, err
}

// OwnsIdentifier reports whether the named user is assigned the identifier.
func (r *Repo) OwnsIdentifier(ctx context.Context, username, identifier string) (bool, error) {
	u, err := r.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	var n int64
	err = r.db.WithContext(ctx).Model(&AccountRecord{}).
		Where("identifier = ? AND user_id = ?", identifier, u.ID).Count(&n).Error
	return n > 0, err
}

// Subscriptions

func (r *Repo) SetSubscription(ctx context.Context, accountID uint, expires time.Time) error {
	return r.db.WithContext(ctx).Create(&SubscriptionRecord{AccountID: accountID, ExpiresAt: expires}).Error
}

// SubscriptionActive reports whether the identifier's newest subscription is
// unexpired at the given instant. An identifier with no subscription rows at
// all counts as expired.
func (r *Repo) SubscriptionActive(ctx context.Context, identifier string, now time.Time) (bool, error) {
	a, err := r.GetAccountByIdentifier(ctx, identifier)
	if err != nil {
		return false, err
	}
	var sub SubscriptionRecord
	err = r.db.WithContext(ctx).Where("account_id = ?", a.ID).Order("expires_at DESC").First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.ExpiresAt.After(now), nil
}

// Activity log

func (r *Repo) LogActivity(ctx context.Context, username, action, identifier string, detail map[string]any) error {
	rec := &ActivityRecord{Username: username, Action: action, Identifier: identifier}
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		rec.Detail = datatypes.JSON(b)
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repo) ListActivity(ctx context.Context, limit int) ([]*ActivityRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var arr []*ActivityRecord
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&arr).Error; err != nil {
		return nil, err
	}
	return arr, nil
}
