package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"arr/internal/errors"
	"arr/internal/probe"
)

// State-file layout, little-endian:
//
//	magic(4) | version(u8) | entries(u32) |
//	{ path_len(u16), path_utf8, mtime_i64, probe_len(u32), probe_blob }*
//
// probe_blob is the zstd-compressed JSON encoding of the probe result.
var stateMagic = [4]byte{'A', 'R', 'S', 'C'}

const stateVersion uint8 = 1

// Load replaces the cache contents with the snapshot at path. A corrupt
// or version-mismatched file yields a CacheUnreadable error; callers
// treat that as advisory and start empty.
func (c *ResolutionCache) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return errors.New(errors.CacheUnreadable, fmt.Sprintf("cannot read state file %s", path), err)
	}
	entries, err := decodeState(data)
	if err != nil {
		return errors.New(errors.CacheUnreadable, fmt.Sprintf("state file %s discarded", path), err)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	c.dirty.Store(false)

	c.logger.Debug("Loaded state file", map[string]interface{}{
		"path":    path,
		"entries": len(entries),
	})
	return nil
}

// Flush atomically replaces the state file at path with a snapshot of
// the cache. It writes to a temp file in the same directory and renames.
// Flushing clears the dirty flag.
func (c *ResolutionCache) Flush(path string) error {
	c.mu.RLock()
	snapshot := make(map[string]entry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	data, err := encodeState(snapshot)
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".arr-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}

	c.dirty.Store(false)
	c.logger.Debug("Flushed state file", map[string]interface{}{
		"path":    path,
		"entries": len(snapshot),
	})
	return nil
}

func encodeState(entries map[string]entry) ([]byte, error) {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	var buf bytes.Buffer
	buf.Write(stateMagic[:])
	buf.WriteByte(stateVersion)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(paths))); err != nil {
		return nil, err
	}

	for _, p := range paths {
		e := entries[p]
		if len(p) > int(^uint16(0)) {
			return nil, fmt.Errorf("path too long: %s", p)
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint16(len(p))); err != nil {
			return nil, err
		}
		buf.WriteString(p)
		if err := binary.Write(&buf, binary.LittleEndian, e.mtime); err != nil {
			return nil, err
		}
		blob, err := encodeBlob(enc, e.result)
		if err != nil {
			return nil, fmt.Errorf("encode probe blob for %s: %w", p, err)
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(blob))); err != nil {
			return nil, err
		}
		buf.Write(blob)
	}
	return buf.Bytes(), nil
}

func decodeState(data []byte) (map[string]entry, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("truncated header")
	}
	if magic != stateMagic {
		return nil, fmt.Errorf("bad magic %q", magic[:])
	}
	ver, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("truncated header")
	}
	if ver != stateVersion {
		return nil, fmt.Errorf("unsupported state version %d", ver)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("truncated entry count")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	entries := make(map[string]entry, count)
	for i := uint32(0); i < count; i++ {
		var pathLen uint16
		if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
			return nil, fmt.Errorf("entry %d: truncated path length", i)
		}
		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBytes); err != nil {
			return nil, fmt.Errorf("entry %d: truncated path", i)
		}
		var mtime int64
		if err := binary.Read(r, binary.LittleEndian, &mtime); err != nil {
			return nil, fmt.Errorf("entry %d: truncated mtime", i)
		}
		var blobLen uint32
		if err := binary.Read(r, binary.LittleEndian, &blobLen); err != nil {
			return nil, fmt.Errorf("entry %d: truncated blob length", i)
		}
		blob := make([]byte, blobLen)
		if _, err := io.ReadFull(r, blob); err != nil {
			return nil, fmt.Errorf("entry %d: truncated blob", i)
		}
		result, err := decodeBlob(dec, blob)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries[string(pathBytes)] = entry{mtime: mtime, result: result}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return entries, nil
}

func encodeBlob(enc *zstd.Encoder, result *probe.Result) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, nil), nil
}

func decodeBlob(dec *zstd.Decoder, blob []byte) (*probe.Result, error) {
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress probe blob: %w", err)
	}
	var result probe.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode probe blob: %w", err)
	}
	return &result, nil
}
