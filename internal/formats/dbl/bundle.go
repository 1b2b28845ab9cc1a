// Package dbl reads Digital Bible Library bundles: a zip archive holding
// license.xml, metadata.xml and one USX document per book.
package dbl

import (
	"archive/zip"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
)

// Required bundle entries.
const (
	LicenseFile  = "license.xml"
	MetadataFile = "metadata.xml"
)

// xzMagic starts every xz stream.
var xzMagic = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}

// Bundle is an opened DBL bundle.
type Bundle struct {
	Metadata *Metadata

	// SourceHash is the hex BLAKE3 digest of the bundle as given.
	SourceHash string

	prefix string
	files  map[string]*zip.File
}

// Open opens a bundle from memory. xz-compressed archives are unwrapped
// first. license.xml and metadata.xml must be present at the archive root,
// or under a single top-level directory.
func Open(data []byte) (*Bundle, error) {
	sum := blake3.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if bytes.HasPrefix(data, xzMagic) {
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, &errors.FormatError{Source: "bundle", Message: "invalid xz stream", Err: err}
		}
		data, err = io.ReadAll(r)
		if err != nil {
			return nil, &errors.FormatError{Source: "bundle", Message: "invalid xz stream", Err: err}
		}
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &errors.FormatError{Source: "bundle", Message: "not a zip archive", Err: err}
	}

	b := &Bundle{
		SourceHash: hash,
		files:      make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		b.files[path.Clean(strings.TrimPrefix(f.Name, "/"))] = f
	}
	b.prefix = b.findPrefix()

	for _, name := range []string{LicenseFile, MetadataFile} {
		if !b.Has(name) {
			return nil, errors.NewFormat("bundle", fmt.Sprintf("missing required entry %s", name))
		}
	}

	raw, err := b.ReadFile(MetadataFile)
	if err != nil {
		return nil, err
	}
	b.Metadata, err = ParseMetadata(raw)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// findPrefix returns the directory holding metadata.xml when the archive
// wraps everything in one top-level directory.
func (b *Bundle) findPrefix() string {
	if _, ok := b.files[MetadataFile]; ok {
		return ""
	}
	prefix := ""
	for name := range b.files {
		dir, _, found := strings.Cut(name, "/")
		if !found {
			return ""
		}
		if prefix != "" && dir != prefix {
			return ""
		}
		prefix = dir
	}
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// Has reports whether the bundle contains name.
func (b *Bundle) Has(name string) bool {
	_, ok := b.files[b.key(name)]
	return ok
}

// ReadFile returns the contents of a bundle entry.
func (b *Bundle) ReadFile(name string) ([]byte, error) {
	f, ok := b.files[b.key(name)]
	if !ok {
		return nil, errors.NewNotFound("bundle entry", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &errors.FormatError{Source: name, Message: "cannot open entry", Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &errors.FormatError{Source: name, Message: "cannot read entry", Err: err}
	}
	return data, nil
}

// Names lists the entries of the bundle relative to its root.
func (b *Bundle) Names() []string {
	out := make([]string, 0, len(b.files))
	for name := range b.files {
		out = append(out, strings.TrimPrefix(name, b.prefix))
	}
	return out
}

func (b *Bundle) key(name string) string {
	return b.prefix + path.Clean(strings.TrimPrefix(name, "/"))
}
