package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	AuthMethodPassword = "password"
	AuthMethodGoogle   = "google"
)

// User is a persisted account. Password holds the bcrypt hash and is never
// serialized to clients.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Username   string             `bson:"username" json:"username"`
	Email      string             `bson:"email" json:"email"`
	Password   string             `bson:"password,omitempty" json:"-"`
	Avatar     string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	AuthMethod string             `bson:"authMethod" json:"authMethod"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// UserUpdate carries the profile fields a user may change. Nil fields are left untouched.
// Password must already be hashed when it reaches the store.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string
	Avatar   *string
}

// IsEmpty reports whether the update would change nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.Username == nil && u.Email == nil && u.Password == nil && u.Avatar == nil
}

// PublicUser is what other signed-in users may see of an account.
type PublicUser struct {
	ID       primitive.ObjectID `json:"_id"`
	Username string             `json:"username"`
	Email    string             `json:"email"`
	Avatar   string             `json:"avatar,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Email: u.Email, Avatar: u.Avatar}
}
