package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrganizationType string

const (
	OrgTypeCompany    OrganizationType = "EMPRESA"
	OrgTypeNGO        OrganizationType = "ONG"
	OrgTypePublic     OrganizationType = "PUBLICA"
	OrgTypeUniversity OrganizationType = "UNIVERSIDAD"
	OrgTypeOther      OrganizationType = "OTRA"
)

func (t OrganizationType) IsValid() bool {
	switch t {
	case OrgTypeCompany, OrgTypeNGO, OrgTypePublic, OrgTypeUniversity, OrgTypeOther:
		return true
	default:
		return false
	}
}

// Organization is an external organization that can take part in events.
type Organization struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatorID           primitive.ObjectID `bson:"creator_id" json:"creator_id"`
	Name                string             `bson:"name" json:"name"`
	NIT                 string             `bson:"nit" json:"nit"`
	LegalRepresentative string             `bson:"legal_representative" json:"legal_representative"`
	ContactPerson       string             `bson:"contact_person,omitempty" json:"contact_person,omitempty"`
	Email               string             `bson:"email" json:"email"`
	Phone               string             `bson:"phone" json:"phone"`
	Location            string             `bson:"location,omitempty" json:"location,omitempty"`
	MainActivity        string             `bson:"main_activity,omitempty" json:"main_activity,omitempty"`
	Type                OrganizationType   `bson:"type" json:"type"`
	CertificateURL      string             `bson:"certificate_url,omitempty" json:"certificate_url,omitempty"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}
