package models

import (
	"time"
)

// Role is the authorization role of an identity.
type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
)

// Channel identifies an OTP delivery channel.
type Channel string

const (
	ChannelMobile Channel = "mobile"
	ChannelEmail  Channel = "email"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelMobile || c == ChannelEmail
}

// OTPRecord is a pending one-time code for a single channel.
type OTPRecord struct {
	Code              string     `bson:"code" json:"code"`
	ExpiresAt         time.Time  `bson:"expiresAt" json:"expiresAt"`
	Attempts          int        `bson:"attempts" json:"attempts"`
	AttemptsLockUntil *time.Time `bson:"attemptsLockUntil,omitempty" json:"attemptsLockUntil,omitempty"`
}

// User is a registered identity. Either Mobile or Email is always present.
type User struct {
	BaseModel `bson:",inline"`
	Username        string                 `gorm:"uniqueIndex;size:20" bson:"username" json:"username"`
	Mobile          string                 `gorm:"index:idx_users_mobile,unique,where:mobile <> ''" bson:"mobile,omitempty" json:"mobile,omitempty"`
	Email           string                 `gorm:"index:idx_users_email,unique,where:email <> ''" bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash    string                 `bson:"password" json:"-"`
	Avatar          string                 `bson:"avatar,omitempty" json:"avatar,omitempty"`
	IsVerified      bool                   `gorm:"index" bson:"isVerified" json:"isVerified"`
	IsEmailVerified bool                   `gorm:"index" bson:"isEmailVerified" json:"isEmailVerified"`
	Role            Role                   `gorm:"index;default:user" bson:"role" json:"role"`
	BusinessID      string                 `gorm:"type:varchar(36)" bson:"businessId,omitempty" json:"businessId,omitempty"`
	OTP             map[Channel]*OTPRecord `gorm:"serializer:json" bson:"otp,omitempty" json:"-"`
	LoginAttempts   int                    `bson:"loginAttempts" json:"-"`
	LockUntil       *time.Time             `bson:"lockUntil,omitempty" json:"-"`

	PasswordChangedAt  time.Time  `bson:"passwordChangedAt" json:"passwordChangedAt"`
	ProfileCompletedAt *time.Time `bson:"profileCompletedAt,omitempty" json:"profileCompletedAt,omitempty"`
	LastLoginAt        *time.Time `bson:"lastLoginAt,omitempty" json:"lastLoginAt,omitempty"`
}

// Verified reports whether either contact channel has been verified.
func (u *User) Verified() bool {
	return u.IsVerified || u.IsEmailVerified
}

// ChannelVerified reports the verification flag of a single channel.
func (u *User) ChannelVerified(ch Channel) bool {
	if ch == ChannelEmail {
		return u.IsEmailVerified
	}
	return u.IsVerified
}

// MarkVerified flips the verification flag of ch.
func (u *User) MarkVerified(ch Channel) {
	if ch == ChannelEmail {
		u.IsEmailVerified = true
		return
	}
	u.IsVerified = true
}

// Contact returns the stored address for ch.
func (u *User) Contact(ch Channel) string {
	if ch == ChannelEmail {
		return u.Email
	}
	return u.Mobile
}

// Locked reports whether the login lockout is active at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// ProfileComplete reports whether the user has a username, a contact and a verified channel.
func (u *User) ProfileComplete() bool {
	return u.Username != "" && (u.Mobile != "" || u.Email != "") && u.Verified()
}

// AvatarURL is the public path of the avatar, or empty.
func (u *User) AvatarURL() string {
	if u.Avatar == "" {
		return ""
	}
	return "/uploads/" + u.Avatar
}

// Promote links a listing and grants the owner role.
func (u *User) Promote(businessID string) {
	u.Role = RoleOwner
	u.BusinessID = businessID
}

// Demote unlinks the listing and reverts to the user role.
func (u *User) Demote() {
	u.Role = RoleUser
	u.BusinessID = ""
}
