// Package contentstore provides a versioned content-object store layered over
// a versioned blob store and a distributed lock coordinator.
//
// Objects are decomposed into independently versioned element blobs plus a
// root manifest blob holding {key, versionId} pointers to them. Every object
// is bound to a template that fixes the shape of the object (element codes and
// types) and the constraints its element values must satisfy.
//
// Write Ordering
//
// Mutations of one object run under a per-object lock. Element blobs are
// written first and the manifest last; the manifest write is the single commit
// point. Superseded element versions stay reachable from older manifest
// versions and are never reclaimed by this package.
//
// Version Read-back
//
// The blob store contract does not report the version id produced by a write,
// so every write path performs a follow-up version listing to learn it.
//
// Binary Uploads
//
// Binary element values (bitmap and vector images, CHM articles) are staged
// through upload sessions: the payload is streamed as a multipart upload,
// sniffed on the first chunk, validated in full on completion and copied to a
// content-addressed key that objects then reference.
package contentstore
