package domain

import (
	"maps"
	"strings"
)

// Tag returns a copy of record labelled as coming from source alone. This is
// the "merge against an empty counterpart" path, so single-source results
// have the same shape as combined ones.
func Tag(record Record, source string) Record {
	out := record.Clone()
	if out == nil {
		out = Record{}
	}
	out[FieldDataSource] = source
	out[FieldHasSecondarySourceData] = false
	if record.HasPhoto() {
		setPhotoRef(out, source, record)
	}
	return out
}

// TagAll tags every record in the list with source.
func TagAll(records []Record, source string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, Tag(r, source))
	}
	return out
}

// Combine merges two single records field by field. Values from preferred
// win over base on every field both populate; fields only one side has pass
// through. Phone numbers are merged per phone type under the same rule.
//
// A photo carried by base is dropped whenever preferred has a photo or a lazy
// photo reference, even if base's bytes are the only ones available. The
// merged record's FieldID is the preferred side's, so FieldPhotoSource and
// FieldPhotoID name the side whose photo survived.
func Combine(base Record, baseSource string, preferred Record, preferredSource string) Record {
	out := base.Clone()
	if out == nil {
		out = Record{}
	}
	delete(out, FieldDataSource)
	delete(out, FieldHasSecondarySourceData)
	delete(out, FieldPhotoSource)
	delete(out, FieldPhotoID)

	if preferred.HasPhoto() {
		delete(out, FieldPhoto)
		delete(out, FieldHasPhoto)
	}

	for key, value := range preferred {
		switch key {
		case FieldDataSource, FieldHasSecondarySourceData, FieldPhotoSource, FieldPhotoID:
			continue
		}
		if !IsPopulated(value) {
			continue
		}
		if key == FieldPhones {
			out[FieldPhones] = mergePhones(out.Phones(), preferred.Phones())
			continue
		}
		out[key] = value
	}

	switch {
	case preferred.HasPhoto():
		setPhotoRef(out, preferredSource, preferred)
	case base.HasPhoto():
		setPhotoRef(out, baseSource, base)
	}

	out[FieldDataSource] = provenance(base, baseSource, preferred, preferredSource)
	out[FieldHasSecondarySourceData] = base != nil && preferred != nil
	return out
}

// setPhotoRef points out at the backend record that owns the photo. A record
// that already carries a reference keeps it.
func setPhotoRef(out Record, source string, from Record) {
	if backend, id, ok := from.PhotoRef(); ok {
		out[FieldPhotoSource] = backend
		out[FieldPhotoID] = id
		return
	}
	if id := from.ID(); id != "" {
		out[FieldPhotoSource] = source
		out[FieldPhotoID] = id
	}
}

func mergePhones(base, preferred map[string]string) map[string]string {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string, len(preferred))
	}
	for phoneType, number := range preferred {
		if strings.TrimSpace(number) != "" {
			out[phoneType] = number
		}
	}
	return out
}

func provenance(base Record, baseSource string, preferred Record, preferredSource string) string {
	switch {
	case base != nil && preferred != nil:
		return baseSource + "+" + preferredSource
	case preferred != nil:
		return preferredSource
	default:
		return baseSource
	}
}
