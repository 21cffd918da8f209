package contentstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// ElementDescriptor describes one element slot of a template.
type ElementDescriptor struct {
	Type         ElementType     `json:"type"`
	TemplateCode int32           `json:"templateCode"`
	Properties   json.RawMessage `json:"properties,omitempty"`
	Constraints  ConstraintSet   `json:"constraints"`
}

type elementDescriptorJSON struct {
	Type         ElementType     `json:"type"`
	TemplateCode int32           `json:"templateCode"`
	Properties   json.RawMessage `json:"properties,omitempty"`
	Constraints  json.RawMessage `json:"constraints"`
}

// UnmarshalJSON decodes constraints into the variant implied by the element type.
func (d *ElementDescriptor) UnmarshalJSON(data []byte) error {
	var raw elementDescriptorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	constraints, err := decodeConstraintSet(raw.Type, raw.Constraints)
	if err != nil {
		return fmt.Errorf("element %d: %w", raw.TemplateCode, err)
	}
	*d = ElementDescriptor{
		Type:         raw.Type,
		TemplateCode: raw.TemplateCode,
		Properties:   raw.Properties,
		Constraints:  constraints,
	}
	return nil
}

// TemplateDescriptor is the persisted body of a template version.
type TemplateDescriptor struct {
	Properties json.RawMessage     `json:"properties"`
	Elements   []ElementDescriptor `json:"elements"`
}

// Template is one immutable version of a template.
type Template struct {
	ID           int64      `json:"id"`
	VersionID    string     `json:"versionId"`
	LastModified time.Time  `json:"lastModified"`
	Author       AuthorInfo `json:"author"`
	TemplateDescriptor
}

// Element returns the element slot with the given template code.
func (t *Template) Element(templateCode int32) (*ElementDescriptor, bool) {
	for i := range t.Elements {
		if t.Elements[i].TemplateCode == templateCode {
			return &t.Elements[i], true
		}
	}
	return nil, false
}

// BinaryElementTemplateCodes returns the codes of elements whose values are uploaded files.
func (t *Template) BinaryElementTemplateCodes() []int32 {
	var codes []int32
	for _, e := range t.Elements {
		if e.Type.IsBinary() {
			codes = append(codes, e.TemplateCode)
		}
	}
	return codes
}

// TemplateMetadata is the listing view of a template's latest version.
type TemplateMetadata struct {
	ID           int64      `json:"id"`
	VersionID    string     `json:"versionId"`
	LastModified time.Time  `json:"lastModified"`
	Author       AuthorInfo `json:"author"`
}

// TemplateVersionRecord describes one entry of a template's version history.
type TemplateVersionRecord struct {
	ID           int64      `json:"id"`
	VersionID    string     `json:"versionId"`
	LastModified time.Time  `json:"lastModified"`
	Author       AuthorInfo `json:"author"`
}
