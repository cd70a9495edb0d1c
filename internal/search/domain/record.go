package domain

import (
	"maps"
	"slices"
	"strings"
)

// Normalized field names shared by every backend.
const (
	FieldID                     = "id"
	FieldDisplayName            = "displayName"
	FieldEmail                  = "email"
	FieldUserPrincipalName      = "userPrincipalName"
	FieldUsername               = "username"
	FieldGivenName              = "givenName"
	FieldFamilyName             = "familyName"
	FieldJobTitle               = "jobTitle"
	FieldDepartment             = "department"
	FieldManager                = "manager"
	FieldPhones                 = "phones"
	FieldPhoto                  = "photo"
	FieldHasPhoto               = "hasPhoto"
	FieldPhotoSource            = "photoSource"
	FieldPhotoID                = "photoId"
	FieldAccountEnabled         = "accountEnabled"
	FieldEmployeeID             = "employeeId"
	FieldDataSource             = "dataSource"
	FieldHasSecondarySourceData = "hasSecondarySourceData"
)

// Phone types used as keys of the FieldPhones map.
const (
	PhoneBusiness = "business"
	PhoneMobile   = "mobile"
	PhoneIP       = "ipPhone"
	PhoneWork     = "work"
	PhoneHome     = "home"
	PhoneOther    = "other"
)

// Record is the normalized representation of one person from one backend.
// Values are strings, bools, or map[string]string (phones). Field presence
// varies by backend.
type Record map[string]any

// Set stores value under key unless the value is empty.
func (r Record) Set(key string, value any) {
	if !IsPopulated(value) {
		return
	}
	r[key] = value
}

// SetPhone stores a phone number under the given type.
func (r Record) SetPhone(phoneType, number string) {
	number = strings.TrimSpace(number)
	if number == "" {
		return
	}
	phones, _ := r[FieldPhones].(map[string]string)
	if phones == nil {
		phones = make(map[string]string)
		r[FieldPhones] = phones
	}
	phones[phoneType] = number
}

// String returns the string value for key, or "".
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the bool value for key, or false.
func (r Record) Bool(key string) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return false
}

// Phones returns the phone map, or nil.
func (r Record) Phones() map[string]string {
	phones, _ := r[FieldPhones].(map[string]string)
	return phones
}

// ID returns the backend-specific identifier usable with FetchByID.
func (r Record) ID() string {
	return r.String(FieldID)
}

// Source returns the provenance tag, if any.
func (r Record) Source() string {
	return r.String(FieldDataSource)
}

// HasPhoto reports whether the record carries photo bytes or a lazy photo reference.
func (r Record) HasPhoto() bool {
	return r.String(FieldPhoto) != "" || r.Bool(FieldHasPhoto)
}

// PhotoRef returns the backend and identifier that serve the record's photo.
// ok is false when the record has no photo or no reference to fetch it by.
func (r Record) PhotoRef() (backend, id string, ok bool) {
	if !r.HasPhoto() {
		return "", "", false
	}
	backend, id = r.String(FieldPhotoSource), r.String(FieldPhotoID)
	return backend, id, backend != "" && id != ""
}

// Identifiers returns the unique identifiers used for cross-source matching,
// lower-cased and de-duplicated, primary email first.
func (r Record) Identifiers() []string {
	var ids []string
	for _, key := range []string{FieldEmail, FieldUserPrincipalName} {
		v := strings.ToLower(strings.TrimSpace(r.String(key)))
		if v != "" && !slices.Contains(ids, v) {
			ids = append(ids, v)
		}
	}
	return ids
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if phones, ok := v.(map[string]string); ok {
			out[k] = maps.Clone(phones)
			continue
		}
		out[k] = v
	}
	return out
}

// IsPopulated reports whether a field value carries information.
func IsPopulated(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case map[string]string:
		return len(v) > 0
	case []string:
		return len(v) > 0
	default:
		return true
	}
}
