package lexicon

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rdsm-lab/disease-mapper/internal/tokenizer"
)

// Snapshot file layout: a fixed header, a JSON body and a CRC32 footer over
// the body. Version 2 added the lemmatizer name to the body.
const (
	MagicBytes    uint32 = 0x52444c58 // "RDLX"
	FormatVersion uint32 = 2
	HeaderSize    int    = 32
	FooterSize    int    = 8
)

// SnapshotHeader is the fixed-size header at the start of a snapshot file,
// plus the lemmatizer recorded in the body. Documents matched against the
// lexicon must be normalized with that lemmatizer.
type SnapshotHeader struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	IDCount      uint32
	CreatedAt    int64
	BodySize     int64
	MaxPhraseLen uint32
	Lemmatizer   string
}

type snapshotBody struct {
	Lemmatizer string              `json:"lemmatizer"`
	Terms      map[string]Entry    `json:"terms"`
	Names      map[string]string   `json:"names"`
	Display    map[string]string   `json:"display"`
	Synonyms   map[string][]string `json:"synonyms"`
}

// WriteSnapshot atomically writes lex, built with the named lemmatizer, to
// path. It writes to a .tmp file first and renames on success; on failure
// the .tmp file is removed and any previous snapshot is left alone.
func WriteSnapshot(path string, lex *Lexicon, lemmatizer string) error {
	body, err := json.Marshal(snapshotBody{
		Lemmatizer: lemmatizer,
		Terms:      lex.terms,
		Names:      lex.names,
		Display:    lex.display,
		Synonyms:   lex.synonyms,
	})
	if err != nil {
		return fmt.Errorf("marshaling lexicon: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	err = writeSnapshot(f, lex, body)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing snapshot file: %w", cerr)
	}
	if err == nil {
		if rerr := os.Rename(tmpPath, path); rerr != nil {
			err = fmt.Errorf("renaming snapshot file: %w", rerr)
		}
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func writeSnapshot(w io.Writer, lex *Lexicon, body []byte) error {
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(lex.terms)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(lex.names)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(body)))
	binary.LittleEndian.PutUint32(header[28:32], uint32(lex.maxPhraseLen))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(body))
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	if _, err := w.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	if f, ok := w.(*os.File); ok {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("syncing snapshot file: %w", err)
		}
	}
	return nil
}

// ReadSnapshot loads a lexicon written by WriteSnapshot, verifying the magic
// bytes, format version and body checksum.
func ReadSnapshot(path string) (*Lexicon, SnapshotHeader, error) {
	var hdr SnapshotHeader
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, hdr, fmt.Errorf("reading snapshot file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, hdr, fmt.Errorf("invalid snapshot file: %d bytes is too short", len(data))
	}
	hdr = SnapshotHeader{
		Magic:        binary.LittleEndian.Uint32(data[0:4]),
		Version:      binary.LittleEndian.Uint32(data[4:8]),
		TermCount:    binary.LittleEndian.Uint32(data[8:12]),
		IDCount:      binary.LittleEndian.Uint32(data[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(data[16:24])),
		BodySize:     int64(binary.LittleEndian.Uint32(data[24:28])),
		MaxPhraseLen: binary.LittleEndian.Uint32(data[28:32]),
	}
	if hdr.Magic != MagicBytes {
		return nil, hdr, fmt.Errorf("invalid snapshot file: bad magic bytes %x", hdr.Magic)
	}
	if hdr.Version != FormatVersion {
		return nil, hdr, fmt.Errorf("unsupported snapshot version %d", hdr.Version)
	}
	if int64(len(data)) != int64(HeaderSize)+hdr.BodySize+int64(FooterSize) {
		return nil, hdr, fmt.Errorf("invalid snapshot file: size mismatch")
	}
	body := data[HeaderSize : int64(HeaderSize)+hdr.BodySize]
	footer := data[int64(HeaderSize)+hdr.BodySize:]
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(body) {
		return nil, hdr, fmt.Errorf("invalid snapshot file: checksum mismatch")
	}

	var sb snapshotBody
	if err := json.Unmarshal(body, &sb); err != nil {
		return nil, hdr, fmt.Errorf("parsing snapshot body: %w", err)
	}
	hdr.Lemmatizer = sb.Lemmatizer
	lex := newLexicon()
	if sb.Terms != nil {
		lex.terms = sb.Terms
	}
	if sb.Names != nil {
		lex.names = sb.Names
	}
	if sb.Display != nil {
		lex.display = sb.Display
	}
	if sb.Synonyms != nil {
		lex.synonyms = sb.Synonyms
	}
	for id, name := range lex.names {
		if key := tokenizer.Key(name); key != "" {
			lex.nameIndex[key] = append(lex.nameIndex[key], id)
		}
	}
	lex.reindex()
	return lex, hdr, nil
}
