package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"resdex/internal/resource"
)

// fabric.mod.json

type fabricDescriptor struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Authors     []json.RawMessage `json:"authors"`
	Icon        json.RawMessage   `json:"icon"`
	Environment string            `json:"environment"`
}

func detectFabric(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	data, err := readFile(fsys, "fabric.mod.json")
	if err != nil {
		return false, nil
	}
	var d fabricDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return false, fmt.Errorf("decoding fabric.mod.json: %w", err)
	}
	result.Metadata.Set(&resource.FabricMetadata{
		ModInfo: resource.ModInfo{
			ID:          d.ID,
			Name:        d.Name,
			Version:     d.Version,
			Description: d.Description,
			Authors:     people(d.Authors),
		},
		Environment: d.Environment,
	})
	setName(result, d.Name)
	addIcon(fsys, iconPath(d.Icon), result)
	return true, nil
}

// people accepts both "name" and {"name": "..."} person entries.
func people(raw []json.RawMessage) []string {
	var out []string
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		var p struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(r, &p); err == nil && p.Name != "" {
			out = append(out, p.Name)
		}
	}
	return out
}

// iconPath accepts a single path or a size-keyed map, preferring the largest.
func iconPath(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var sized map[string]string
	if err := json.Unmarshal(raw, &sized); err != nil {
		return ""
	}
	best, bestSize := "", -1
	for k, v := range sized {
		var n int
		fmt.Sscanf(k, "%d", &n)
		if n > bestSize {
			best, bestSize = v, n
		}
	}
	return best
}

// quilt.mod.json

type quiltDescriptor struct {
	QuiltLoader struct {
		Group    string `json:"group"`
		ID       string `json:"id"`
		Version  string `json:"version"`
		Metadata struct {
			Name         string            `json:"name"`
			Description  string            `json:"description"`
			Contributors map[string]string `json:"contributors"`
			Icon         json.RawMessage   `json:"icon"`
		} `json:"metadata"`
	} `json:"quilt_loader"`
}

func detectQuilt(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	data, err := readFile(fsys, "quilt.mod.json")
	if err != nil {
		return false, nil
	}
	var d quiltDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return false, fmt.Errorf("decoding quilt.mod.json: %w", err)
	}
	l := d.QuiltLoader
	var authors []string
	for name := range l.Metadata.Contributors {
		authors = append(authors, name)
	}
	sort.Strings(authors)
	result.Metadata.Set(&resource.QuiltMetadata{
		ModInfo: resource.ModInfo{
			ID:          l.ID,
			Name:        l.Metadata.Name,
			Version:     l.Version,
			Description: l.Metadata.Description,
			Authors:     authors,
		},
		Group: l.Group,
	})
	setName(result, l.Metadata.Name)
	addIcon(fsys, iconPath(l.Metadata.Icon), result)
	return true, nil
}

// META-INF/mods.toml and META-INF/neoforge.mods.toml

type modsToml struct {
	LoaderVersion string `toml:"loaderVersion"`
	LogoFile      string `toml:"logoFile"`
	Mods          []struct {
		ModID       string `toml:"modId"`
		Version     string `toml:"version"`
		DisplayName string `toml:"displayName"`
		Description string `toml:"description"`
		Authors     any    `toml:"authors"`
		LogoFile    string `toml:"logoFile"`
	} `toml:"mods"`
}

func decodeModsToml(fsys fs.FS, name string) (*resource.ModInfo, string, string, bool, error) {
	data, err := readFile(fsys, name)
	if err != nil {
		return nil, "", "", false, nil
	}
	var d modsToml
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&d); err != nil {
		return nil, "", "", false, fmt.Errorf("decoding %s: %w", name, err)
	}
	if len(d.Mods) == 0 {
		return nil, "", "", false, nil
	}
	m := d.Mods[0]
	version := m.Version
	if strings.Contains(version, "${file.jarVersion}") {
		version = strings.ReplaceAll(version, "${file.jarVersion}", jarVersion(fsys))
	}
	info := &resource.ModInfo{
		ID:          m.ModID,
		Name:        m.DisplayName,
		Version:     version,
		Description: strings.TrimSpace(m.Description),
		Authors:     tomlAuthors(m.Authors),
	}
	logo := m.LogoFile
	if logo == "" {
		logo = d.LogoFile
	}
	return info, d.LoaderVersion, logo, true, nil
}

func tomlAuthors(v any) []string {
	switch a := v.(type) {
	case string:
		var out []string
		for _, s := range strings.Split(a, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		var out []string
		for _, s := range a {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// jarVersion reads Implementation-Version from the jar manifest.
func jarVersion(fsys fs.FS) string {
	data, err := readFile(fsys, "META-INF/MANIFEST.MF")
	if err != nil {
		return ""
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "Implementation-Version:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func detectForge(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	info, loader, logo, ok, err := decodeModsToml(fsys, "META-INF/mods.toml")
	if !ok || err != nil {
		return false, err
	}
	result.Metadata.Set(&resource.ForgeMetadata{ModInfo: *info, LoaderVersion: loader})
	setName(result, info.Name)
	addIcon(fsys, logo, result)
	return true, nil
}

func detectNeoforge(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	info, loader, logo, ok, err := decodeModsToml(fsys, "META-INF/neoforge.mods.toml")
	if !ok || err != nil {
		return false, err
	}
	result.Metadata.Set(&resource.NeoforgeMetadata{ModInfo: *info, LoaderVersion: loader})
	setName(result, info.Name)
	addIcon(fsys, logo, result)
	return true, nil
}

// mcmod.info, used by pre-1.13 forge mods.

type mcmodEntry struct {
	ModID       string   `json:"modid"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	MCVersion   string   `json:"mcversion"`
	AuthorList  []string `json:"authorList"`
	Authors     []string `json:"authors"`
	LogoFile    string   `json:"logoFile"`
}

func detectLegacyForge(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	if result.Metadata.Variant(resource.TypeForge) != nil {
		return false, nil
	}
	data, err := readFile(fsys, "mcmod.info")
	if err != nil {
		return false, nil
	}
	var entries []mcmodEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		var wrapped struct {
			ModList []mcmodEntry `json:"modList"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return false, fmt.Errorf("decoding mcmod.info: %w", err)
		}
		entries = wrapped.ModList
	}
	if len(entries) == 0 {
		return false, nil
	}
	e := entries[0]
	authors := e.AuthorList
	if len(authors) == 0 {
		authors = e.Authors
	}
	result.Metadata.Set(&resource.ForgeMetadata{ModInfo: resource.ModInfo{
		ID:          e.ModID,
		Name:        e.Name,
		Version:     e.Version,
		Description: e.Description,
		Authors:     authors,
	}})
	setName(result, e.Name)
	addIcon(fsys, e.LogoFile, result)
	return true, nil
}

// litemod.json

type liteDescriptor struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	MCVersion   string `json:"mcversion"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

func detectLiteloader(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	data, err := readFile(fsys, "litemod.json")
	if err != nil {
		return false, nil
	}
	var d liteDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return false, fmt.Errorf("decoding litemod.json: %w", err)
	}
	var authors []string
	if d.Author != "" {
		authors = []string{d.Author}
	}
	result.Metadata.Set(&resource.LiteloaderMetadata{
		ModInfo: resource.ModInfo{
			ID:          d.Name,
			Name:        d.Name,
			Version:     d.Version,
			Description: d.Description,
			Authors:     authors,
		},
		MinecraftVersion: d.MCVersion,
	})
	setName(result, d.Name)
	return true, nil
}
