package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

func (s *service) CreateObject(ctx context.Context, req CreateObjectRequest) (*ObjectVersionRecord, error) {
	if err := checkObjectRequest(req.ID, &req.Descriptor); err != nil {
		return nil, err
	}

	var record *ObjectVersionRecord
	err := withLock(ctx, s.locks, s.logger, objectLockKey(req.ID), func(ctx context.Context) error {
		exists, err := s.IsObjectExists(ctx, req.ID)
		if err != nil {
			return err
		}
		if exists {
			return &ObjectAlreadyExistsError{ID: req.ID}
		}

		elements, err := s.prepareElements(ctx, "create", req.ID, &req.Descriptor)
		if err != nil {
			return err
		}

		pointers, err := s.writeElements(ctx, req.ID, elements)
		if err != nil {
			return err
		}

		codes := make([]int32, 0, len(elements))
		for _, e := range elements {
			codes = append(codes, e.TemplateCode)
		}
		record, err = s.commitManifest(ctx, req.ID, req.Author, &req.Descriptor, pointers, codes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "object created", "object_id", record.ID, "version_id", record.VersionID)
	s.fireObjectCommitted(ctx, record)
	return record, nil
}

func (s *service) ModifyObject(ctx context.Context, req ModifyObjectRequest) (*ObjectVersionRecord, error) {
	if err := checkObjectRequest(req.ID, &req.Descriptor); err != nil {
		return nil, err
	}
	if req.ExpectedVersionID == "" {
		return nil, &InvalidRequestError{Field: "expectedVersionId", Reason: "is required"}
	}

	var record *ObjectVersionRecord
	err := withLock(ctx, s.locks, s.logger, objectLockKey(req.ID), func(ctx context.Context) error {
		manifestKey := objectManifestKey(req.ID)
		current, err := s.objects.latestVersion(ctx, manifestKey)
		if err != nil {
			if errors.Is(err, ErrBlobNotFound) {
				return &ObjectNotFoundError{ID: req.ID}
			}
			return err
		}
		if current.VersionID != req.ExpectedVersionID {
			return &ConcurrencyError{ID: req.ID, ExpectedVersion: req.ExpectedVersionID, CurrentVersion: current.VersionID}
		}

		var manifest objectManifest
		if _, err := s.objects.getJSON(ctx, manifestKey, current.VersionID, &manifest); err != nil {
			if errors.Is(err, ErrBlobNotFound) {
				return &ObjectNotFoundError{ID: req.ID, VersionID: current.VersionID}
			}
			return err
		}

		previous := make(map[string]elementPointer, len(manifest.Elements))
		for _, p := range manifest.Elements {
			previous[p.Key] = p
		}
		for _, e := range req.Descriptor.Elements {
			if _, ok := previous[objectElementKey(req.ID, e.ID)]; !ok {
				return &InconsistentObjectError{ID: req.ID, Reason: fmt.Sprintf("element %d is not part of the object", e.ID)}
			}
		}

		elements, err := s.prepareElements(ctx, "modify", req.ID, &req.Descriptor)
		if err != nil {
			return err
		}

		changed, err := s.changedElements(ctx, req.ID, elements, previous)
		if err != nil {
			return err
		}

		written, err := s.writeElements(ctx, req.ID, changed)
		if err != nil {
			return err
		}

		pointers := make([]elementPointer, len(elements))
		for i, e := range elements {
			key := objectElementKey(req.ID, e.ID)
			if p, ok := written[key]; ok {
				pointers[i] = p
			} else {
				pointers[i] = previous[key]
			}
		}

		codes := make([]int32, 0, len(changed))
		for _, e := range changed {
			codes = append(codes, e.TemplateCode)
		}
		record, err = s.commitManifest(ctx, req.ID, req.Author, &req.Descriptor, pointerMap(pointers), codes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "object modified", "object_id", record.ID, "version_id", record.VersionID,
		"modified_elements", record.ModifiedElements)
	s.fireObjectCommitted(ctx, record)
	return record, nil
}

// prepareElements runs every pre-write check shared by create and modify and
// returns copies of the elements with binary metadata resolved from the upload store.
func (s *service) prepareElements(ctx context.Context, op string, id int64, desc *ObjectDescriptor) ([]*ObjectElementDescriptor, error) {
	template, err := s.GetTemplate(ctx, desc.TemplateID, "")
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, &InconsistentObjectError{ID: id, Reason: fmt.Sprintf("template %d does not exist", desc.TemplateID)}
		}
		return nil, err
	}
	if template.VersionID != desc.TemplateVersionID {
		return nil, &InvalidOperationError{
			Op:     op,
			Reason: fmt.Sprintf("template %d version %s is not the latest version %s", desc.TemplateID, desc.TemplateVersionID, template.VersionID),
		}
	}

	if err := checkConsistency(id, template, desc.Elements); err != nil {
		return nil, err
	}

	if results := s.validateElements(ctx, desc.Elements, desc.Language); len(results) > 0 {
		return nil, &InvalidObjectElementsError{ObjectID: id, Elements: results}
	}

	// binary values are enriched below; the caller's descriptor stays untouched
	elements := make([]*ObjectElementDescriptor, len(desc.Elements))
	for i := range desc.Elements {
		e := desc.Elements[i]
		if value, ok := e.Value.(*BinaryElementValue); ok && value != nil {
			enriched := *value
			e.Value = &enriched
		}
		elements[i] = &e
	}
	if err := s.resolveBinaries(ctx, id, elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// checkConsistency cross-checks object elements against the template slots.
func checkConsistency(id int64, template *Template, elements []ObjectElementDescriptor) error {
	if len(elements) != len(template.Elements) {
		return &InconsistentObjectError{
			ID:     id,
			Reason: fmt.Sprintf("object has %d elements, template %d has %d", len(elements), template.ID, len(template.Elements)),
		}
	}

	ids := make(map[int64]bool, len(elements))
	codes := make(map[int32]bool, len(elements))
	for _, e := range elements {
		if e.ID <= 0 {
			return &InvalidRequestError{Field: "elements.id", Reason: fmt.Sprintf("element id %d must be positive", e.ID)}
		}
		if ids[e.ID] {
			return &InconsistentObjectError{ID: id, Reason: fmt.Sprintf("element id %d is used more than once", e.ID)}
		}
		ids[e.ID] = true
		if codes[e.TemplateCode] {
			return &InconsistentObjectError{ID: id, Reason: fmt.Sprintf("template code %d is used more than once", e.TemplateCode)}
		}
		codes[e.TemplateCode] = true

		slot, ok := template.Element(e.TemplateCode)
		if !ok {
			return &InconsistentObjectError{ID: id, Reason: fmt.Sprintf("template has no element with code %d", e.TemplateCode)}
		}
		if slot.Type != e.Type {
			return &InconsistentObjectError{
				ID:     id,
				Reason: fmt.Sprintf("element %d has type %s, template expects %s", e.ID, e.Type, slot.Type),
			}
		}
		if !slot.Constraints.Equal(e.Constraints) {
			return &InconsistentObjectError{ID: id, Reason: fmt.Sprintf("element %d constraints differ from template", e.ID)}
		}
	}
	return nil
}

// validateElements runs the validation engine for every element in parallel
// and collects all failures. A panicking rule fails only its own element.
func (s *service) validateElements(ctx context.Context, elements []ObjectElementDescriptor, lang Language) []ElementValidationResult {
	results := make([]*ElementValidationResult, len(elements))
	g, _ := s.group(ctx)
	for i := range elements {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = &ElementValidationResult{
						ElementID:    elements[i].ID,
						TemplateCode: elements[i].TemplateCode,
						Errors: []*ValidationError{
							newValidationError(ErrKindElementValidationFailure, "validation failed: %v", r),
						},
					}
				}
			}()
			results[i] = ValidateElement(&elements[i], lang)
			return nil
		})
	}
	_ = g.Wait()

	var out []ElementValidationResult
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// resolveBinaries replaces caller-supplied filename and size of binary values
// with the metadata recorded when the file was uploaded.
func (s *service) resolveBinaries(ctx context.Context, id int64, elements []*ObjectElementDescriptor) error {
	var (
		mu      sync.Mutex
		missing []ElementValidationResult
	)
	g, gctx := s.group(ctx)
	for _, e := range elements {
		value, ok := e.Value.(*BinaryElementValue)
		if !ok || value.IsEmpty() {
			continue
		}
		g.Go(func() error {
			info, err := s.GetFileInfo(gctx, value.Raw)
			if err != nil {
				if errors.Is(err, ErrBlobNotFound) {
					mu.Lock()
					missing = append(missing, ElementValidationResult{
						ElementID:    e.ID,
						TemplateCode: e.TemplateCode,
						Errors: []*ValidationError{
							newValidationError(ErrKindBinaryNotFound, "file %q was not uploaded or has expired", value.Raw),
						},
					})
					mu.Unlock()
					return nil
				}
				return err
			}
			value.Filename = info.Filename
			value.Filesize = info.Size
			value.DownloadURI = ""
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i].ElementID < missing[j].ElementID })
		return &InvalidObjectElementsError{ObjectID: id, Elements: missing}
	}
	return nil
}

// changedElements returns the elements whose stored content differs from the
// version referenced by the previous manifest.
func (s *service) changedElements(ctx context.Context, id int64, elements []*ObjectElementDescriptor, previous map[string]elementPointer) ([]*ObjectElementDescriptor, error) {
	changed := make([]bool, len(elements))
	g, gctx := s.group(ctx)
	for i, e := range elements {
		p := previous[objectElementKey(id, e.ID)]
		g.Go(func() error {
			var old ObjectElementDescriptor
			if _, err := s.objects.getJSON(gctx, p.Key, p.VersionID, &old); err != nil {
				if errors.Is(err, ErrBlobNotFound) {
					changed[i] = true
					return nil
				}
				return err
			}
			changed[i] = !elementContentEqual(&old, e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*ObjectElementDescriptor
	for i, e := range elements {
		if changed[i] {
			out = append(out, e)
		}
	}
	return out, nil
}

func elementContentEqual(a, b *ObjectElementDescriptor) bool {
	return a.TemplateCode == b.TemplateCode &&
		a.Type == b.Type &&
		jsonEqual(a.Properties, b.Properties) &&
		a.Constraints.Equal(b.Constraints) &&
		valueContentEqual(a.Value, b.Value)
}

// writeElements writes element blobs in parallel and returns their pointers by key.
func (s *service) writeElements(ctx context.Context, id int64, elements []*ObjectElementDescriptor) (map[string]elementPointer, error) {
	pointers := make([]elementPointer, len(elements))
	g, gctx := s.group(ctx)
	for i, e := range elements {
		g.Go(func() error {
			key := objectElementKey(id, e.ID)
			version, err := s.objects.putJSON(gctx, key, e, nil)
			if err != nil {
				return err
			}
			pointers[i] = elementPointer{Key: key, VersionID: version.VersionID}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pointerMap(pointers), nil
}

func pointerMap(pointers []elementPointer) map[string]elementPointer {
	m := make(map[string]elementPointer, len(pointers))
	for _, p := range pointers {
		m[p.Key] = p
	}
	return m
}

// commitManifest writes the manifest, the commit point of an object version.
func (s *service) commitManifest(ctx context.Context, id int64, author AuthorInfo, desc *ObjectDescriptor, pointers map[string]elementPointer, modified []int32) (*ObjectVersionRecord, error) {
	manifest := objectManifest{
		TemplateID:        desc.TemplateID,
		TemplateVersionID: desc.TemplateVersionID,
		Language:          desc.Language,
		Properties:        desc.Properties,
		Elements:          make([]elementPointer, 0, len(desc.Elements)),
	}
	for _, e := range desc.Elements {
		key := objectElementKey(id, e.ID)
		p, ok := pointers[key]
		if !ok {
			return nil, fmt.Errorf("object %d: no version written for element %d", id, e.ID)
		}
		manifest.Elements = append(manifest.Elements, p)
	}

	sorted := append([]int32(nil), modified...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	metadata := authorMetadata(author)
	metadata[metaModifiedElements] = formatTemplateCodes(sorted)
	metadata[metaTemplateID] = strconv.FormatInt(desc.TemplateID, 10)
	metadata[metaTemplateVersion] = desc.TemplateVersionID

	version, err := s.objects.putJSON(ctx, objectManifestKey(id), manifest, metadata)
	if err != nil {
		return nil, err
	}
	if sorted == nil {
		sorted = []int32{}
	}
	return &ObjectVersionRecord{
		ID:               id,
		VersionID:        version.VersionID,
		LastModified:     version.LastModified,
		Author:           author,
		ModifiedElements: sorted,
	}, nil
}

// GetObjectDescriptor reconstructs an object version; an empty versionID selects the latest.
func (s *service) GetObjectDescriptor(ctx context.Context, id int64, versionID string) (*Object, error) {
	var manifest objectManifest
	meta, err := s.objects.getJSON(ctx, objectManifestKey(id), versionID, &manifest)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, &ObjectNotFoundError{ID: id, VersionID: versionID}
		}
		return nil, err
	}

	if _, err := s.GetTemplate(ctx, manifest.TemplateID, manifest.TemplateVersionID); err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, &InconsistentObjectError{
				ID:     id,
				Reason: fmt.Sprintf("template %d version %s cannot be resolved", manifest.TemplateID, manifest.TemplateVersionID),
			}
		}
		return nil, err
	}

	elements := make([]ObjectElementDescriptor, len(manifest.Elements))
	g, gctx := s.group(ctx)
	for i, p := range manifest.Elements {
		g.Go(func() error {
			if _, err := s.objects.getJSON(gctx, p.Key, p.VersionID, &elements[i]); err != nil {
				if errors.Is(err, ErrBlobNotFound) {
					return &InconsistentObjectError{ID: id, Reason: fmt.Sprintf("element %s version %s is missing", p.Key, p.VersionID)}
				}
				return err
			}
			if v, ok := elements[i].Value.(*BinaryElementValue); ok && !v.IsEmpty() {
				v.DownloadURI = s.downloadURI(v.Raw)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Object{
		ID:           id,
		VersionID:    meta.VersionID,
		LastModified: meta.LastModified,
		Author:       authorFromMetadata(meta.Metadata),
		ObjectDescriptor: ObjectDescriptor{
			TemplateID:        manifest.TemplateID,
			TemplateVersionID: manifest.TemplateVersionID,
			Language:          manifest.Language,
			Properties:        manifest.Properties,
			Elements:          elements,
		},
	}, nil
}

func (s *service) IsObjectExists(ctx context.Context, id int64) (bool, error) {
	if _, err := s.objects.latestVersion(ctx, objectManifestKey(id)); err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListObjectMetadata returns one page of latest object versions. Element keys
// share the listing with manifests, so a page may hold fewer items than keys.
func (s *service) ListObjectMetadata(ctx context.Context, continuationToken string) (*ObjectMetadataPage, error) {
	page, err := s.objects.store.List(ctx, ListParams{ContinuationToken: continuationToken, MaxKeys: s.listPageSize})
	if err != nil {
		return nil, &StorageError{Bucket: s.objects.name, Op: "list", Err: err}
	}

	var ids []int64
	for _, item := range page.Items {
		if id, ok := parseObjectManifestKey(item.Key); ok {
			ids = append(ids, id)
		}
	}

	items := make([]ObjectMetadata, len(ids))
	g, gctx := s.group(ctx)
	for i, id := range ids {
		g.Go(func() error {
			meta, err := s.objects.getMeta(gctx, objectManifestKey(id), "")
			if err != nil {
				return err
			}
			items[i] = objectMetadataFrom(id, meta)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ObjectMetadataPage{Items: items, ContinuationToken: page.ContinuationToken}, nil
}

func objectMetadataFrom(id int64, meta *BlobMeta) ObjectMetadata {
	templateID, _ := strconv.ParseInt(meta.Metadata[metaTemplateID], 10, 64)
	return ObjectMetadata{
		ID:                id,
		VersionID:         meta.VersionID,
		LastModified:      meta.LastModified,
		Author:            authorFromMetadata(meta.Metadata),
		TemplateID:        templateID,
		TemplateVersionID: meta.Metadata[metaTemplateVersion],
	}
}

// GetAllRootVersions returns the manifest history of an object, newest first,
// each entry annotated with the template codes it changed.
func (s *service) GetAllRootVersions(ctx context.Context, id int64) ([]ObjectVersionRecord, error) {
	key := objectManifestKey(id)
	versions, err := s.objects.versions(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &ObjectNotFoundError{ID: id}
	}

	records := make([]ObjectVersionRecord, len(versions))
	g, gctx := s.group(ctx)
	for i, v := range versions {
		g.Go(func() error {
			meta, err := s.objects.getMeta(gctx, key, v.VersionID)
			if err != nil {
				return err
			}
			records[i] = ObjectVersionRecord{
				ID:               id,
				VersionID:        v.VersionID,
				LastModified:     v.LastModified,
				Author:           authorFromMetadata(meta.Metadata),
				ModifiedElements: parseTemplateCodes(meta.Metadata[metaModifiedElements]),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastModified.After(records[j].LastModified)
	})
	return records, nil
}

// ValidateElements checks element values without writing. With a template,
// the elements must also be consistent with its latest version.
func (s *service) ValidateElements(ctx context.Context, req ValidateElementsRequest) ([]ElementValidationResult, error) {
	if req.Language == "" {
		return nil, &InvalidRequestError{Field: "language", Reason: "is required"}
	}
	if req.TemplateID > 0 {
		template, err := s.GetTemplate(ctx, req.TemplateID, "")
		if err != nil {
			return nil, err
		}
		if err := checkConsistency(0, template, req.Elements); err != nil {
			return nil, err
		}
	}
	return s.validateElements(ctx, req.Elements, req.Language), nil
}

func checkObjectRequest(id int64, desc *ObjectDescriptor) error {
	switch {
	case id <= 0:
		return &InvalidRequestError{Field: "id", Reason: "must be positive"}
	case desc.Language == "" || desc.Language == LanguageUnspecified:
		return &InvalidRequestError{Field: "language", Reason: "must be specified"}
	case desc.TemplateID <= 0:
		return &InvalidRequestError{Field: "templateId", Reason: "must be positive"}
	case desc.TemplateVersionID == "":
		return &InvalidRequestError{Field: "templateVersionId", Reason: "is required"}
	case isEmptyJSON(desc.Properties):
		return &InvalidRequestError{Field: "properties", Reason: "is required"}
	}
	for i := range desc.Elements {
		if desc.Elements[i].Value == nil {
			return &InvalidRequestError{Field: "elements.value", Reason: fmt.Sprintf("element %d has no value", desc.Elements[i].ID)}
		}
	}
	return nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func jsonEqual(a, b json.RawMessage) bool {
	if isEmptyJSON(a) || isEmptyJSON(b) {
		return isEmptyJSON(a) == isEmptyJSON(b)
	}
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return bytes.Equal(a, b)
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return bytes.Equal(ab, bb)
}
