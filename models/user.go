package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the enumerated authorization role of a user.
type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleTeacher   Role = "TEACHER"
	RoleSecretary Role = "SECRETARY"
	RoleAdmin     Role = "ADMIN"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleSecretary, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole accepts both the English names and the Spanish labels the web
// client sends (ESTUDIANTE, DOCENTE, SECRETARIO). Unknown input maps to
// STUDENT and ok=false.
func ParseRole(s string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STUDENT", "ESTUDIANTE":
		return RoleStudent, true
	case "TEACHER", "DOCENTE":
		return RoleTeacher, true
	case "SECRETARY", "SECRETARIO", "SECRETARIA":
		return RoleSecretary, true
	case "ADMIN":
		return RoleAdmin, true
	default:
		return RoleStudent, false
	}
}

type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FirstName        string             `bson:"first_name" json:"first_name"`
	LastName         string             `bson:"last_name" json:"last_name"`
	Email            string             `bson:"email" json:"email"`
	Phone            string             `bson:"phone,omitempty" json:"phone,omitempty"`
	PasswordHash     string             `bson:"password_hash" json:"-"`
	Role             Role               `bson:"role" json:"role"`
	Faculty          string             `bson:"faculty,omitempty" json:"faculty,omitempty"`
	Program          string             `bson:"program,omitempty" json:"program,omitempty"`
	EndorsementURL   string             `bson:"endorsement_url,omitempty" json:"endorsement_url,omitempty"`
	ResetToken       string             `bson:"reset_token,omitempty" json:"-"`
	ResetTokenExpiry *time.Time         `bson:"reset_token_expiry,omitempty" json:"-"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}
