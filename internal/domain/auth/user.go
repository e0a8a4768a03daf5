package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// UserID is the backend identifier of a user. The backend sends numbers for
// most accounts and strings for some; both forms are kept as text and
// integers are written back as JSON numbers.
type UserID string

func (id UserID) MarshalJSON() ([]byte, error) {
	if isJSONInteger(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("user id: %w", err)
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

func isJSONInteger(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// UserRecord is the normalized identity of a portal account.
// Fields the backend sends that are not modelled here are kept in Extra so a
// cached record round-trips without loss.
type UserRecord struct {
	ID         UserID
	Role       Role
	Email      string
	IsVerified *bool
	IsApproved *bool
	// Profile is a CompanyProfile when Role is company and a PersonProfile otherwise.
	Profile Profile
	Extra   map[string]json.RawMessage
}

const (
	keyID         = "id"
	keyRole       = "role"
	keyEmail      = "email"
	keyIsVerified = "isVerified"
	keyIsApproved = "isApproved"
	keyProfile    = "profile"
)

func (u *UserRecord) UnmarshalJSON(data []byte) error {
	fields, err := splitObject(data)
	if err != nil {
		return fmt.Errorf("user record: %w", err)
	}

	var out UserRecord
	if _, err = takeJSON(fields, keyID, &out.ID); err != nil {
		return err
	}
	var role string
	if _, err = takeJSON(fields, keyRole, &role); err != nil {
		return err
	}
	out.Role = Role(role)
	if _, err = takeJSON(fields, keyEmail, &out.Email); err != nil {
		return err
	}
	var flag bool
	if ok, takeErr := takeJSON(fields, keyIsVerified, &flag); takeErr != nil {
		return takeErr
	} else if ok {
		out.IsVerified = boolPtr(flag)
	}
	if ok, takeErr := takeJSON(fields, keyIsApproved, &flag); takeErr != nil {
		return takeErr
	} else if ok {
		out.IsApproved = boolPtr(flag)
	}
	if raw, ok := fields[keyProfile]; ok {
		delete(fields, keyProfile)
		if !isNull(raw) {
			p, decErr := DecodeProfile(out.Role, raw)
			if decErr != nil {
				return decErr
			}
			out.Profile = p
		}
	}
	if len(fields) > 0 {
		out.Extra = fields
	}

	*u = out
	return nil
}

func (u UserRecord) MarshalJSON() ([]byte, error) {
	out := extraToMap(u.Extra, 6)
	if u.ID != "" {
		out[keyID] = u.ID
	}
	putString(out, keyRole, string(u.Role))
	putString(out, keyEmail, u.Email)
	if u.IsVerified != nil {
		out[keyIsVerified] = *u.IsVerified
	}
	if u.IsApproved != nil {
		out[keyIsApproved] = *u.IsApproved
	}
	if u.Profile != nil {
		out[keyProfile] = u.Profile
	}
	return json.Marshal(out)
}

// Clone returns a deep copy of u.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	if u.IsVerified != nil {
		c.IsVerified = boolPtr(*u.IsVerified)
	}
	if u.IsApproved != nil {
		c.IsApproved = boolPtr(*u.IsApproved)
	}
	if u.Profile != nil {
		c.Profile = u.Profile.clone()
	}
	c.Extra = cloneExtra(u.Extra)
	return &c
}

// WithCompanyProfile returns a copy of u carrying p as its profile.
// ID and Role are never touched.
func (u *UserRecord) WithCompanyProfile(p CompanyProfile) *UserRecord {
	c := u.Clone()
	c.Profile = p.clone()
	return c
}

// NeedsVerification reports whether the backend flagged the account as unverified.
func (u *UserRecord) NeedsVerification() bool {
	return u.IsVerified != nil && !*u.IsVerified
}

// PendingApproval reports whether a company account still awaits admin approval.
func (u *UserRecord) PendingApproval() bool {
	return u.Role == RoleCompany && u.IsApproved != nil && !*u.IsApproved
}

// DisplayName picks the most human-readable label available.
func (u *UserRecord) DisplayName() string {
	switch p := u.Profile.(type) {
	case CompanyProfile:
		if p.CompanyName != "" {
			return p.CompanyName
		}
	case PersonProfile:
		if name := strings.TrimSpace(p.FirstName + " " + p.LastName); name != "" {
			return name
		}
	}
	if u.Email != "" {
		return u.Email
	}
	return string(u.ID)
}

func boolPtr(b bool) *bool { return &b }

func splitObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("expected JSON object, got %s", bytes.TrimSpace(data))
	}
	return fields, nil
}

// takeJSON decodes fields[key] into dst and removes it. A null value counts as absent.
func takeJSON(fields map[string]json.RawMessage, key string, dst any) (bool, error) {
	raw, ok := fields[key]
	if !ok {
		return false, nil
	}
	delete(fields, key)
	if isNull(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("field %q: %w", key, err)
	}
	return true, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func putString(out map[string]any, key, v string) {
	if v != "" {
		out[key] = v
	}
}

func extraToMap(extra map[string]json.RawMessage, known int) map[string]any {
	out := make(map[string]any, len(extra)+known)
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func cloneExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		return nil
	}
	out := maps.Clone(extra)
	for k, v := range out {
		out[k] = bytes.Clone(v)
	}
	return out
}
