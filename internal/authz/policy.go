// Package authz decides whether an actor may mutate a record.
package authz

import "errors"

var ErrUnauthorized = errors.New("unauthorized")

type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RolePharmacy Role = "pharmacy"
)

// Actor is the caller identity. It is supplied by the authentication layer and trusted as-is.
type Actor struct {
	ID   string
	Role Role
}

// Ownership names the parties of record.
type Ownership struct {
	RequesterID string // patient
	ProviderID  string // doctor or pharmacy
}

type Policy interface {
	Authorize(actor Actor, owner Ownership) error
}

// OwnerPolicy compares actor ids against the parties of record.
// Patients must be the requester, doctors and pharmacies the provider;
// any other role must be one of the two.
type OwnerPolicy struct{}

func (OwnerPolicy) Authorize(actor Actor, owner Ownership) error {
	if actor.ID == "" {
		return ErrUnauthorized
	}

	var ok bool
	switch actor.Role {
	case RolePatient:
		ok = actor.ID == owner.RequesterID
	case RoleDoctor, RolePharmacy:
		ok = actor.ID == owner.ProviderID
	default:
		ok = actor.ID == owner.RequesterID || actor.ID == owner.ProviderID
	}

	if !ok {
		return ErrUnauthorized
	}
	return nil
}
