package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"resdex/internal/resource"
)

func decodeJSON(fsys fs.FS, name string, v any) (bool, error) {
	data, err := readFile(fsys, name)
	if err != nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", name, err)
	}
	return true, nil
}

func setModpack(result *resource.ParseResult, m *resource.ModpackMetadata) {
	result.Metadata.Set(m)
	setName(result, m.Name)
}

func detectModrinthModpack(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	var d struct {
		Name         string            `json:"name"`
		VersionID    string            `json:"versionId"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if ok, err := decodeJSON(fsys, "modrinth.index.json", &d); !ok {
		return false, err
	}
	setModpack(result, &resource.ModpackMetadata{
		Format:           resource.TypeModrinthModpack,
		Name:             d.Name,
		Version:          d.VersionID,
		MinecraftVersion: d.Dependencies["minecraft"],
	})
	return true, nil
}

func detectCurseforgeModpack(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	var d struct {
		ManifestType string `json:"manifestType"`
		Name         string `json:"name"`
		Version      string `json:"version"`
		Author       string `json:"author"`
		Minecraft    struct {
			Version string `json:"version"`
		} `json:"minecraft"`
	}
	if ok, err := decodeJSON(fsys, "manifest.json", &d); !ok {
		return false, err
	}
	if d.ManifestType != "minecraftModpack" {
		return false, nil
	}
	setModpack(result, &resource.ModpackMetadata{
		Format:           resource.TypeCurseforgeModpack,
		Name:             d.Name,
		Version:          d.Version,
		Author:           d.Author,
		MinecraftVersion: d.Minecraft.Version,
	})
	return true, nil
}

func detectMcbbsModpack(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	var d struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Author  string `json:"author"`
		Addons  []struct {
			ID      string `json:"id"`
			Version string `json:"version"`
		} `json:"addons"`
	}
	if ok, err := decodeJSON(fsys, "mcbbs.packmeta", &d); !ok {
		return false, err
	}
	m := &resource.ModpackMetadata{
		Format:  resource.TypeMcbbsModpack,
		Name:    d.Name,
		Version: d.Version,
		Author:  d.Author,
	}
	for _, a := range d.Addons {
		if a.ID == "game" {
			m.MinecraftVersion = a.Version
		}
	}
	setModpack(result, m)
	return true, nil
}

func detectMMCModpack(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	var d struct {
		Components []struct {
			UID     string `json:"uid"`
			Version string `json:"version"`
		} `json:"components"`
	}
	if ok, err := decodeJSON(fsys, "mmc-pack.json", &d); !ok {
		return false, err
	}
	m := &resource.ModpackMetadata{Format: resource.TypeMMCModpack}
	for _, c := range d.Components {
		if c.UID == "net.minecraft" {
			m.MinecraftVersion = c.Version
		}
	}
	if data, err := readFile(fsys, "instance.cfg"); err == nil {
		m.Name = iniValue(data, "name")
	}
	setModpack(result, m)
	return true, nil
}

// iniValue returns the first key=value assignment for key.
func iniValue(data []byte, key string) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// detectModpack reads the launcher's own modpack.json.
func detectModpack(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	var d struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Author  string `json:"author"`
		Runtime struct {
			Minecraft string `json:"minecraft"`
		} `json:"runtime"`
	}
	if ok, err := decodeJSON(fsys, "modpack.json", &d); !ok {
		return false, err
	}
	setModpack(result, &resource.ModpackMetadata{
		Format:           resource.TypeModpack,
		Name:             d.Name,
		Version:          d.Version,
		Author:           d.Author,
		MinecraftVersion: d.Runtime.Minecraft,
	})
	return true, nil
}
