package resource

import (
	"path"
	"path/filepath"
	"strings"
)

// Domain is a logical category of managed resource, each backed by its own
// directory directly under the engine root.
type Domain string

const (
	DomainMods          Domain = "mods"
	DomainResourcePacks Domain = "resourcepacks"
	DomainShaderPacks   Domain = "shaderpacks"
	DomainSaves         Domain = "saves"
	DomainModpacks      Domain = "modpacks"
	DomainUnclassified  Domain = "unclassified"
)

// Domains lists every known domain in a stable order.
var Domains = []Domain{
	DomainMods,
	DomainResourcePacks,
	DomainShaderPacks,
	DomainSaves,
	DomainModpacks,
	DomainUnclassified,
}

// ParseDomain returns the Domain named by s, or false if s is not a known domain.
func ParseDomain(s string) (Domain, bool) {
	for _, d := range Domains {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

// Prefix returns the domained-path prefix that matches everything in the domain.
func (d Domain) Prefix() string { return string(d) + "/" }

// DomainedPath returns p relative to root using forward slashes.
// The second result is false when p is not strictly inside root.
func DomainedPath(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// DomainOf returns the domain encoded in the first segment of a domained path.
func DomainOf(domainedPath string) Domain {
	first, _, _ := strings.Cut(domainedPath, "/")
	if d, ok := ParseDomain(first); ok {
		return d
	}
	return DomainUnclassified
}

// JoinDomained builds a domained path from a domain and a file name.
func JoinDomained(d Domain, name string) string {
	return path.Join(string(d), name)
}

// AbsPath converts a domained path back to an absolute path under root.
func AbsPath(root, domainedPath string) string {
	return filepath.Join(root, filepath.FromSlash(domainedPath))
}
