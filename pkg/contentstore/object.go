package contentstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// ObjectElementDescriptor is one element of an object: the template slot it
// fills, a copy of the slot's constraints, and the value.
type ObjectElementDescriptor struct {
	ID           int64           `json:"id"`
	TemplateCode int32           `json:"templateCode"`
	Type         ElementType     `json:"type"`
	Properties   json.RawMessage `json:"properties,omitempty"`
	Constraints  ConstraintSet   `json:"constraints"`
	Value        ElementValue    `json:"value"`
}

type objectElementDescriptorJSON struct {
	ID           int64           `json:"id"`
	TemplateCode int32           `json:"templateCode"`
	Type         ElementType     `json:"type"`
	Properties   json.RawMessage `json:"properties,omitempty"`
	Constraints  json.RawMessage `json:"constraints"`
	Value        json.RawMessage `json:"value"`
}

// UnmarshalJSON decodes constraints and value into the variants implied by the element type.
func (d *ObjectElementDescriptor) UnmarshalJSON(data []byte) error {
	var raw objectElementDescriptorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	constraints, err := decodeConstraintSet(raw.Type, raw.Constraints)
	if err != nil {
		return fmt.Errorf("element %d: %w", raw.ID, err)
	}
	value, err := decodeValue(raw.Type, raw.Value)
	if err != nil {
		return fmt.Errorf("element %d: %w", raw.ID, err)
	}
	*d = ObjectElementDescriptor{
		ID:           raw.ID,
		TemplateCode: raw.TemplateCode,
		Type:         raw.Type,
		Properties:   raw.Properties,
		Constraints:  constraints,
		Value:        value,
	}
	return nil
}

// ObjectDescriptor is the caller-supplied content of an object.
type ObjectDescriptor struct {
	TemplateID        int64                     `json:"templateId"`
	TemplateVersionID string                    `json:"templateVersionId"`
	Language          Language                  `json:"language"`
	Properties        json.RawMessage           `json:"properties"`
	Elements          []ObjectElementDescriptor `json:"elements"`
}

// Object is one reconstructed version of a stored object.
type Object struct {
	ID           int64      `json:"id"`
	VersionID    string     `json:"versionId"`
	LastModified time.Time  `json:"lastModified"`
	Author       AuthorInfo `json:"author"`
	ObjectDescriptor
}

// Element returns the element with the given id.
func (o *ObjectDescriptor) Element(id int64) (*ObjectElementDescriptor, bool) {
	for i := range o.Elements {
		if o.Elements[i].ID == id {
			return &o.Elements[i], true
		}
	}
	return nil, false
}

// ObjectMetadata is the listing view of an object's latest version.
type ObjectMetadata struct {
	ID                int64      `json:"id"`
	VersionID         string     `json:"versionId"`
	LastModified      time.Time  `json:"lastModified"`
	Author            AuthorInfo `json:"author"`
	TemplateID        int64      `json:"templateId"`
	TemplateVersionID string     `json:"templateVersionId"`
}

// ObjectVersionRecord describes one manifest version and the elements it changed.
type ObjectVersionRecord struct {
	ID               int64      `json:"id"`
	VersionID        string     `json:"versionId"`
	LastModified     time.Time  `json:"lastModified"`
	Author           AuthorInfo `json:"author"`
	ModifiedElements []int32    `json:"modifiedElements"`
}

// elementPointer references one element blob version from a manifest.
type elementPointer struct {
	Key       string `json:"key"`
	VersionID string `json:"versionId"`
}

// objectManifest is the body of the root manifest blob; it holds pointers, not content.
type objectManifest struct {
	TemplateID        int64            `json:"templateId"`
	TemplateVersionID string           `json:"templateVersionId"`
	Language          Language         `json:"language"`
	Properties        json.RawMessage  `json:"properties"`
	Elements          []elementPointer `json:"elements"`
}
