package contentstore

import (
	"context"
	"errors"
	"sort"
)

// GetTemplate returns a template version; an empty versionID selects the latest.
func (s *service) GetTemplate(ctx context.Context, id int64, versionID string) (*Template, error) {
	var desc TemplateDescriptor
	meta, err := s.templates.getJSON(ctx, templateKey(id), versionID, &desc)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, &TemplateNotFoundError{ID: id, VersionID: versionID}
		}
		return nil, err
	}
	return &Template{
		ID:                 id,
		VersionID:          meta.VersionID,
		LastModified:       meta.LastModified,
		Author:             authorFromMetadata(meta.Metadata),
		TemplateDescriptor: desc,
	}, nil
}

func (s *service) GetTemplateLatestVersion(ctx context.Context, id int64) (string, error) {
	latest, err := s.templates.latestVersion(ctx, templateKey(id))
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return "", &TemplateNotFoundError{ID: id}
		}
		return "", err
	}
	return latest.VersionID, nil
}

func (s *service) TemplateExists(ctx context.Context, id int64) (bool, error) {
	if _, err := s.templates.latestVersion(ctx, templateKey(id)); err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListTemplateMetadata returns one page of latest template versions.
func (s *service) ListTemplateMetadata(ctx context.Context, continuationToken string) (*TemplateMetadataPage, error) {
	page, err := s.templates.store.List(ctx, ListParams{ContinuationToken: continuationToken, MaxKeys: s.listPageSize})
	if err != nil {
		return nil, &StorageError{Bucket: s.templates.name, Op: "list", Err: err}
	}

	var ids []int64
	for _, item := range page.Items {
		if id, ok := parseTemplateKey(item.Key); ok {
			ids = append(ids, id)
		}
	}

	items := make([]TemplateMetadata, len(ids))
	g, gctx := s.group(ctx)
	for i, id := range ids {
		g.Go(func() error {
			meta, err := s.templates.getMeta(gctx, templateKey(id), "")
			if err != nil {
				return err
			}
			items[i] = TemplateMetadata{
				ID:           id,
				VersionID:    meta.VersionID,
				LastModified: meta.LastModified,
				Author:       authorFromMetadata(meta.Metadata),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &TemplateMetadataPage{Items: items, ContinuationToken: page.ContinuationToken}, nil
}

// GetTemplateVersions returns the version history of a template, newest first.
func (s *service) GetTemplateVersions(ctx context.Context, id int64) ([]TemplateVersionRecord, error) {
	key := templateKey(id)
	versions, err := s.templates.versions(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &TemplateNotFoundError{ID: id}
	}

	records := make([]TemplateVersionRecord, len(versions))
	g, gctx := s.group(ctx)
	for i, v := range versions {
		g.Go(func() error {
			meta, err := s.templates.getMeta(gctx, key, v.VersionID)
			if err != nil {
				return err
			}
			records[i] = TemplateVersionRecord{
				ID:           id,
				VersionID:    v.VersionID,
				LastModified: v.LastModified,
				Author:       authorFromMetadata(meta.Metadata),
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

func (s *service) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*Template, error) {
	if err := checkTemplateRequest(req.ID, &req.Descriptor); err != nil {
		return nil, err
	}

	var template *Template
	err := withLock(ctx, s.locks, s.logger, templateLockKey(req.ID), func(ctx context.Context) error {
		exists, err := s.TemplateExists(ctx, req.ID)
		if err != nil {
			return err
		}
		if exists {
			return &TemplateAlreadyExistsError{ID: req.ID}
		}
		template, err = s.writeTemplate(ctx, req.ID, req.Author, &req.Descriptor)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "template created", "template_id", template.ID, "version_id", template.VersionID)
	s.fireTemplateCommitted(ctx, templateMetadata(template))
	return template, nil
}

func (s *service) ModifyTemplate(ctx context.Context, req ModifyTemplateRequest) (*Template, error) {
	if err := checkTemplateRequest(req.ID, &req.Descriptor); err != nil {
		return nil, err
	}
	if req.ExpectedVersionID == "" {
		return nil, &InvalidRequestError{Field: "expectedVersionId", Reason: "is required"}
	}

	var template *Template
	err := withLock(ctx, s.locks, s.logger, templateLockKey(req.ID), func(ctx context.Context) error {
		current, err := s.GetTemplateLatestVersion(ctx, req.ID)
		if err != nil {
			return err
		}
		if current != req.ExpectedVersionID {
			return &ConcurrencyError{ID: req.ID, ExpectedVersion: req.ExpectedVersionID, CurrentVersion: current}
		}
		template, err = s.writeTemplate(ctx, req.ID, req.Author, &req.Descriptor)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "template modified", "template_id", template.ID, "version_id", template.VersionID)
	s.fireTemplateCommitted(ctx, templateMetadata(template))
	return template, nil
}

func (s *service) writeTemplate(ctx context.Context, id int64, author AuthorInfo, desc *TemplateDescriptor) (*Template, error) {
	version, err := s.templates.putJSON(ctx, templateKey(id), desc, authorMetadata(author))
	if err != nil {
		return nil, err
	}
	return &Template{
		ID:                 id,
		VersionID:          version.VersionID,
		LastModified:       version.LastModified,
		Author:             author,
		TemplateDescriptor: *desc,
	}, nil
}

func checkTemplateRequest(id int64, desc *TemplateDescriptor) error {
	if id <= 0 {
		return &InvalidRequestError{Field: "id", Reason: "must be positive"}
	}
	if isEmptyJSON(desc.Properties) {
		return &InvalidRequestError{Field: "properties", Reason: "is required"}
	}
	if results := ValidateTemplateElements(desc.Elements); len(results) > 0 {
		return &InvalidTemplateError{ID: id, Elements: results}
	}
	return nil
}

func templateMetadata(t *Template) *TemplateMetadata {
	return &TemplateMetadata{ID: t.ID, VersionID: t.VersionID, LastModified: t.LastModified, Author: t.Author}
}
