package auth

import (
	"encoding/json"
	"fmt"
)

// ProfileKind discriminates the Profile variants.
type ProfileKind string

const (
	ProfileKindCompany ProfileKind = "company"
	ProfileKindPerson  ProfileKind = "person"
)

// Profile is the role-dependent part of a UserRecord. It is a closed set:
// CompanyProfile for company accounts, PersonProfile for everyone else.
type Profile interface {
	Kind() ProfileKind
	clone() Profile
}

// KindForRole returns the profile variant a role carries.
func KindForRole(r Role) ProfileKind {
	if r == RoleCompany {
		return ProfileKindCompany
	}
	return ProfileKindPerson
}

// DecodeProfile decodes raw into the variant selected by role.
func DecodeProfile(role Role, raw []byte) (Profile, error) {
	switch KindForRole(role) {
	case ProfileKindCompany:
		var p CompanyProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("company profile: %w", err)
		}
		return p, nil
	default:
		var p PersonProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("person profile: %w", err)
		}
		return p, nil
	}
}

// CompanyProfile is returned by the company-profile endpoint.
type CompanyProfile struct {
	CompanyName string
	Logo        string
	Location    string
	Website     string
	Industry    string
	Description string
	Extra       map[string]json.RawMessage
}

func (CompanyProfile) Kind() ProfileKind { return ProfileKindCompany }

func (p CompanyProfile) clone() Profile {
	p.Extra = cloneExtra(p.Extra)
	return p
}

func (p *CompanyProfile) UnmarshalJSON(data []byte) error {
	fields, err := splitObject(data)
	if err != nil {
		return err
	}
	var out CompanyProfile
	for key, dst := range map[string]*string{
		"company_name": &out.CompanyName,
		"logo":         &out.Logo,
		"location":     &out.Location,
		"website":      &out.Website,
		"industry":     &out.Industry,
		"description":  &out.Description,
	} {
		if _, err = takeJSON(fields, key, dst); err != nil {
			return err
		}
	}
	if len(fields) > 0 {
		out.Extra = fields
	}
	*p = out
	return nil
}

func (p CompanyProfile) MarshalJSON() ([]byte, error) {
	out := extraToMap(p.Extra, 6)
	putString(out, "company_name", p.CompanyName)
	putString(out, "logo", p.Logo)
	putString(out, "location", p.Location)
	putString(out, "website", p.Website)
	putString(out, "industry", p.Industry)
	putString(out, "description", p.Description)
	return json.Marshal(out)
}

// PersonProfile is the profile of students, alumni, staff and admins.
type PersonProfile struct {
	FirstName      string
	LastName       string
	Phone          string
	ProfilePicture string
	Extra          map[string]json.RawMessage
}

func (PersonProfile) Kind() ProfileKind { return ProfileKindPerson }

func (p PersonProfile) clone() Profile {
	p.Extra = cloneExtra(p.Extra)
	return p
}

func (p *PersonProfile) UnmarshalJSON(data []byte) error {
	fields, err := splitObject(data)
	if err != nil {
		return err
	}
	var out PersonProfile
	for key, dst := range map[string]*string{
		"first_name":      &out.FirstName,
		"last_name":       &out.LastName,
		"phone":           &out.Phone,
		"profile_picture": &out.ProfilePicture,
	} {
		if _, err = takeJSON(fields, key, dst); err != nil {
			return err
		}
	}
	if len(fields) > 0 {
		out.Extra = fields
	}
	*p = out
	return nil
}

func (p PersonProfile) MarshalJSON() ([]byte, error) {
	out := extraToMap(p.Extra, 4)
	putString(out, "first_name", p.FirstName)
	putString(out, "last_name", p.LastName)
	putString(out, "phone", p.Phone)
	putString(out, "profile_picture", p.ProfilePicture)
	return json.Marshal(out)
}
