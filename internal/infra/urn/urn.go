// Package urn implements the minimal rad:<hash_algo>:<hash>[/path] URN
// scheme used to name identity and project documents. General URI handling
// is out of scope; this is a scheme-specific parser, not a net/url
// replacement. Grounded on
// original_source/librad/src/git/types/namespace.rs.
package urn

import (
	"fmt"
	"strings"
)

const scheme = "rad"

// URN identifies a document by content hash, optionally scoped to a path
// within it (e.g. a ref under a project's git namespace).
type URN struct {
	HashAlgo string
	Hash     string
	Path     string // empty if unscoped
}

// Parse decodes s as a rad:<algo>:<hash>[/path] URN.
func Parse(s string) (URN, error) {
	rest, ok := strings.CutPrefix(s, scheme+":")
	if !ok {
		return URN{}, fmt.Errorf("urn: missing %q scheme in %q", scheme, s)
	}
	body, path, _ := strings.Cut(rest, "/")
	algo, hash, ok := strings.Cut(body, ":")
	if !ok || algo == "" || hash == "" {
		return URN{}, fmt.Errorf("urn: malformed body %q", body)
	}
	return URN{HashAlgo: algo, Hash: hash, Path: path}, nil
}

// String renders the URN back to its canonical text form.
func (u URN) String() string {
	s := fmt.Sprintf("%s:%s:%s", scheme, u.HashAlgo, u.Hash)
	if u.Path != "" {
		s += "/" + u.Path
	}
	return s
}

// Namespace strips any path, yielding the URN that names the document
// itself rather than a location within it. Grounded on namespace.rs's
// Namespace<R>(Urn<R>), which does exactly this for a git namespace.
func (u URN) Namespace() URN {
	return URN{HashAlgo: u.HashAlgo, Hash: u.Hash}
}

// IsNamespace reports whether u carries no path.
func (u URN) IsNamespace() bool { return u.Path == "" }
