package contentstore

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful when no downstream consumer needs change notifications, and in tests
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// TemplateCommitted does nothing and returns nil
func (n *NoopEventSink) TemplateCommitted(ctx context.Context, template *TemplateMetadata) error {
	return nil
}

// ObjectCommitted does nothing and returns nil
func (n *NoopEventSink) ObjectCommitted(ctx context.Context, record *ObjectVersionRecord) error {
	return nil
}

// FileUploaded does nothing and returns nil
func (n *NoopEventSink) FileUploaded(ctx context.Context, file *UploadedFile) error {
	return nil
}

// LoggingEventSink writes every event to a structured logger
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs to logger
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) TemplateCommitted(ctx context.Context, template *TemplateMetadata) error {
	l.logger.InfoContext(ctx, "template committed",
		"template_id", template.ID, "version_id", template.VersionID, "author", template.Author.Author)
	return nil
}

func (l *LoggingEventSink) ObjectCommitted(ctx context.Context, record *ObjectVersionRecord) error {
	l.logger.InfoContext(ctx, "object committed",
		"object_id", record.ID, "version_id", record.VersionID,
		"author", record.Author.Author, "modified_elements", record.ModifiedElements)
	return nil
}

func (l *LoggingEventSink) FileUploaded(ctx context.Context, file *UploadedFile) error {
	l.logger.InfoContext(ctx, "file uploaded",
		"session_id", file.SessionID, "template_code", file.TemplateCode,
		"key", file.Key, "size", file.Size)
	return nil
}
