package sniff

import (
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"
)

// CHM (ITSF) layout offsets.
const (
	itsfMinHeaderLen   = 0x58
	itsfDirOffsetPos   = 0x48
	itsfDirLengthPos   = 0x50
	itspHeaderLen      = 0x54
	itspChunkSizePos   = 0x10
	itspFirstPMGLPos   = 0x20
	itspLastPMGLPos    = 0x24
	itspNumChunksPos   = 0x2C
	pmglHeaderLen      = 0x14
	pmglFreeSpacePos   = 0x04
	pmglNextChunkPos   = 0x10
	maxCHMChunkSize    = 1 << 20
	maxCHMEntryNameLen = 1 << 12
)

// CHMIndexEntry is the base name of the page a help article opens with.
const CHMIndexEntry = "index.html"

// InspectCHM reads the directory of a CHM archive and returns its entry names.
func InspectCHM(r io.ReaderAt, size int64) ([]string, error) {
	header := make([]byte, itsfMinHeaderLen)
	if err := readAt(r, size, header, 0); err != nil {
		return nil, err
	}
	if string(header[:4]) != "ITSF" {
		return nil, fmt.Errorf("%w: missing ITSF signature", ErrNotCHM)
	}
	dirOffset := int64(binary.LittleEndian.Uint64(header[itsfDirOffsetPos:]))
	dirLength := int64(binary.LittleEndian.Uint64(header[itsfDirLengthPos:]))
	if dirOffset <= 0 || dirLength < itspHeaderLen || dirOffset+dirLength > size {
		return nil, fmt.Errorf("%w: directory section out of range", ErrNotCHM)
	}

	dir := make([]byte, itspHeaderLen)
	if err := readAt(r, size, dir, dirOffset); err != nil {
		return nil, err
	}
	if string(dir[:4]) != "ITSP" {
		return nil, fmt.Errorf("%w: missing ITSP signature", ErrNotCHM)
	}
	headerLen := int64(binary.LittleEndian.Uint32(dir[0x08:]))
	chunkSize := int64(binary.LittleEndian.Uint32(dir[itspChunkSizePos:]))
	firstPMGL := int32(binary.LittleEndian.Uint32(dir[itspFirstPMGLPos:]))
	lastPMGL := int32(binary.LittleEndian.Uint32(dir[itspLastPMGLPos:]))
	numChunks := int32(binary.LittleEndian.Uint32(dir[itspNumChunksPos:]))
	if chunkSize <= pmglHeaderLen || chunkSize > maxCHMChunkSize {
		return nil, fmt.Errorf("%w: invalid chunk size %d", ErrNotCHM, chunkSize)
	}
	if firstPMGL < 0 || lastPMGL < firstPMGL || lastPMGL >= numChunks {
		return nil, fmt.Errorf("%w: invalid listing chunk range", ErrNotCHM)
	}

	chunksStart := dirOffset + headerLen
	chunk := make([]byte, chunkSize)
	visited := make(map[int32]bool)
	var names []string
	for index := firstPMGL; index >= 0; {
		if visited[index] || index >= numChunks {
			return nil, fmt.Errorf("%w: broken listing chain", ErrNotCHM)
		}
		visited[index] = true

		if err := readAt(r, size, chunk, chunksStart+int64(index)*chunkSize); err != nil {
			return nil, err
		}
		if string(chunk[:4]) != "PMGL" {
			return nil, fmt.Errorf("%w: chunk %d is not a listing chunk", ErrNotCHM, index)
		}
		entries, err := parsePMGL(chunk)
		if err != nil {
			return nil, err
		}
		names = append(names, entries...)

		if index == lastPMGL {
			break
		}
		index = int32(binary.LittleEndian.Uint32(chunk[pmglNextChunkPos:]))
	}
	return names, nil
}

// HasEntry reports whether any of names has the base name name, ignoring case.
// Directory entries (ending in "/") never match.
func HasEntry(names []string, name string) bool {
	for _, n := range names {
		if strings.HasSuffix(n, "/") {
			continue
		}
		if strings.EqualFold(path.Base(n), name) {
			return true
		}
	}
	return false
}

func parsePMGL(chunk []byte) ([]string, error) {
	free := int(binary.LittleEndian.Uint32(chunk[pmglFreeSpacePos:]))
	end := len(chunk) - free
	if end < pmglHeaderLen {
		return nil, fmt.Errorf("%w: invalid free space", ErrNotCHM)
	}

	var names []string
	pos := pmglHeaderLen
	for pos < end {
		nameLen, n := readEncInt(chunk[pos:end])
		if n == 0 || nameLen == 0 || nameLen > maxCHMEntryNameLen || pos+n+int(nameLen) > end {
			return nil, fmt.Errorf("%w: malformed directory entry", ErrNotCHM)
		}
		pos += n
		names = append(names, string(chunk[pos:pos+int(nameLen)]))
		pos += int(nameLen)

		// section, offset, length
		for i := 0; i < 3; i++ {
			_, n := readEncInt(chunk[pos:end])
			if n == 0 {
				return nil, fmt.Errorf("%w: malformed directory entry", ErrNotCHM)
			}
			pos += n
		}
	}
	return names, nil
}

// readEncInt decodes a big-endian base-128 integer and returns the bytes consumed, 0 on failure.
func readEncInt(b []byte) (uint64, int) {
	var v uint64
	for i, c := range b {
		if i == 9 {
			return 0, 0
		}
		v = v<<7 | uint64(c&0x7F)
		if c&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}

func readAt(r io.ReaderAt, size int64, buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > size {
		return fmt.Errorf("%w: truncated archive", ErrNotCHM)
	}
	if _, err := r.ReadAt(buf, off); err != nil && err != io.EOF {
		return fmt.Errorf("read chm at %d: %w", off, err)
	}
	return nil
}
