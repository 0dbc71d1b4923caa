package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user role in the platform.
type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// User represents a platform account. Organizer KYC fields are empty for plain users.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	Name         string             `bson:"name" json:"name"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Role         Role               `bson:"role" json:"role"`
	IsBanned     bool               `bson:"isBanned" json:"isBanned"`
	BannedAt     *time.Time         `bson:"bannedAt,omitempty" json:"bannedAt,omitempty"`
	AvatarURL    string             `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	Bio          string             `bson:"bio,omitempty" json:"bio,omitempty"`
	IDCardNumber string             `bson:"idCardNumber,omitempty" json:"-"`
	Organization string             `bson:"organization,omitempty" json:"organization,omitempty"`
	Address      string             `bson:"address,omitempty" json:"address,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// UserPublic is User without KYC fields for API responses.
type UserPublic struct {
	ID           primitive.ObjectID `json:"id"`
	Email        string             `json:"email"`
	Name         string             `json:"name"`
	Phone        string             `json:"phone,omitempty"`
	Role         Role               `json:"role"`
	IsBanned     bool               `json:"isBanned"`
	AvatarURL    string             `json:"avatarUrl,omitempty"`
	Organization string             `json:"organization,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Phone:        u.Phone,
		Role:         u.Role,
		IsBanned:     u.IsBanned,
		AvatarURL:    u.AvatarURL,
		Organization: u.Organization,
		CreatedAt:    u.CreatedAt,
	}
}
