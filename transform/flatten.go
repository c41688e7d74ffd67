package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sam-berry/ecfr-lake/checksum"
	"github.com/sam-berry/ecfr-lake/data"
)

// Surrogate ids of child agencies are parentID*ChildBlock + childIndex, with
// childIndex in [1, MaxChildren]. Top-level ids stay below ChildBlock so they
// can never meet a child id.
const (
	ChildBlock  = 1000
	MaxChildren = ChildBlock - 1
	MaxTopLevel = ChildBlock - 1
)

// FlattenResult holds the rows produced from one agencies document, parents
// first and each followed by its children, in source order.
type FlattenResult struct {
	Raw        []data.AgencyRaw
	Agencies   []data.AgencyRow
	References []data.CfrReference
	Parents    int
	Children   int
}

// ChildID encodes the surrogate id of the index-th (1-based) child of parentID.
func ChildID(parentID int64, index int) (int64, error) {
	if parentID < 1 || parentID > MaxTopLevel {
		return 0, &CapacityError{Scope: "top-level agency ids", Count: int(parentID), Capacity: MaxTopLevel}
	}
	if index < 1 || index > MaxChildren {
		return 0, &CapacityError{
			Scope:    "children of agency",
			Key:      strconv.FormatInt(parentID, 10),
			Count:    index,
			Capacity: MaxChildren,
		}
	}
	return parentID*ChildBlock + int64(index), nil
}

// FlattenAgencies turns the two-level agency tree into rows. Every record must
// already carry its checksum. Slugs must be non-empty and unique across the
// whole tree.
func FlattenAgencies(records []data.RawRecord) (*FlattenResult, error) {
	if len(records) > MaxTopLevel {
		return nil, &CapacityError{Scope: "top-level agencies", Count: len(records), Capacity: MaxTopLevel}
	}

	f := &flattener{
		seen:   make(map[string]string),
		result: &FlattenResult{},
	}
	for i, record := range records {
		if err := f.addParent(i, record); err != nil {
			return nil, err
		}
	}
	return f.result, nil
}

type flattener struct {
	seen   map[string]string
	result *FlattenResult
}

func (f *flattener) addParent(index int, record map[string]any) error {
	id := int64(index + 1)

	slug, err := f.claimSlug(index, "", record)
	if err != nil {
		return err
	}
	children, err := childObjects(index, record)
	if err != nil {
		return err
	}
	if len(children) > MaxChildren {
		return &CapacityError{Scope: "children of agency", Key: slug, Count: len(children), Capacity: MaxChildren}
	}

	if err := f.emit(index, "", id, record, nil, nil, len(children)); err != nil {
		return err
	}
	f.result.Parents++

	for j, child := range children {
		path := fmt.Sprintf("children[%d]", j)
		childID, err := ChildID(id, j+1)
		if err != nil {
			return err
		}
		if _, err := f.claimSlug(index, path, child); err != nil {
			return err
		}
		parentID, parentSlug := id, slug
		if err := f.emit(index, path, childID, child, &parentID, &parentSlug, 0); err != nil {
			return err
		}
		f.result.Children++
	}
	return nil
}

func (f *flattener) claimSlug(index int, path string, record map[string]any) (string, error) {
	slug, _ := record["slug"].(string)
	if strings.TrimSpace(slug) == "" {
		return "", &RecordError{Entity: "agency", Index: index, Path: path, Reason: "missing slug"}
	}
	if first, dup := f.seen[slug]; dup {
		return "", &RecordError{
			Entity: "agency",
			Index:  index,
			Path:   path,
			Key:    slug,
			Reason: "duplicate slug, first seen at " + first,
		}
	}
	loc := fmt.Sprintf("record %d", index)
	if path != "" {
		loc += " " + path
	}
	f.seen[slug] = loc
	return slug, nil
}

func (f *flattener) emit(
	index int,
	path string,
	id int64,
	record map[string]any,
	parentID *int64,
	parentSlug *string,
	childCount int,
) error {
	slug := record["slug"].(string)
	sum, _ := record[checksum.FieldChecksum].(string)
	if sum == "" {
		return &RecordError{Entity: "agency", Index: index, Path: path, Key: slug, Reason: "missing checksum"}
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return &RecordError{Entity: "agency", Index: index, Path: path, Key: slug, Reason: "cannot encode record", Err: err}
	}

	var name string
	if s := optionalString(record["name"]); s != nil {
		name = *s
	}
	shortName := optionalString(record["short_name"])
	refs, err := referenceObjects(index, path, slug, record)
	if err != nil {
		return err
	}

	f.result.Raw = append(f.result.Raw, data.AgencyRaw{
		Id:         id,
		Slug:       slug,
		Name:       name,
		ShortName:  shortName,
		ParentSlug: parentSlug,
		Data:       string(encoded),
		Checksum:   sum,
	})
	f.result.Agencies = append(f.result.Agencies, data.AgencyRow{
		Id:                id,
		Slug:              slug,
		Name:              name,
		ShortName:         shortName,
		ParentId:          parentID,
		ParentSlug:        parentSlug,
		CfrReferenceCount: len(refs),
		ChildCount:        childCount,
		Checksum:          sum,
	})
	for _, ref := range refs {
		title, _ := optionalInt(ref["title"])
		f.result.References = append(f.result.References, data.CfrReference{
			AgencySlug: slug,
			Title:      title,
			Chapter:    optionalString(ref["chapter"]),
			Subtitle:   optionalString(ref["subtitle"]),
			Part:       optionalString(ref["part"]),
		})
	}
	return nil
}

// referenceObjects reads cfr_references. Every entry must be an object so
// the reference count matches the rows written.
func referenceObjects(index int, path, slug string, record map[string]any) ([]map[string]any, error) {
	v, ok := record["cfr_references"]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &RecordError{
			Entity: "agency",
			Index:  index,
			Path:   path,
			Key:    slug,
			Reason: fmt.Sprintf("cfr_references is %T, not a list", v),
		}
	}
	refs := make([]map[string]any, 0, len(list))
	for k, item := range list {
		ref, ok := item.(map[string]any)
		if !ok {
			return nil, &RecordError{
				Entity: "agency",
				Index:  index,
				Path:   path,
				Key:    slug,
				Reason: fmt.Sprintf("cfr_references[%d] is %T, not an object", k, item),
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func childObjects(index int, record map[string]any) ([]map[string]any, error) {
	v, ok := record["children"]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &RecordError{Entity: "agency", Index: index, Reason: fmt.Sprintf("children is %T, not a list", v)}
	}

	children := make([]map[string]any, 0, len(list))
	for j, item := range list {
		path := fmt.Sprintf("children[%d]", j)
		child, ok := item.(map[string]any)
		if !ok {
			return nil, &RecordError{Entity: "agency", Index: index, Path: path, Reason: fmt.Sprintf("child is %T, not an object", item)}
		}
		if nested, ok := child["children"].([]any); ok && len(nested) > 0 {
			return nil, &RecordError{Entity: "agency", Index: index, Path: path, Reason: "sub-agencies cannot have children"}
		}
		children = append(children, child)
	}
	return children, nil
}
