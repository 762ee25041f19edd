package parser

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"resdex/internal/resource"
)

type packMcmeta struct {
	Pack struct {
		PackFormat  int             `json:"pack_format"`
		Description json.RawMessage `json:"description"`
	} `json:"pack"`
}

func detectResourcePack(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	data, err := readFile(fsys, "pack.mcmeta")
	if err != nil {
		return false, nil
	}
	var d packMcmeta
	if err := json.Unmarshal(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), &d); err != nil {
		return false, fmt.Errorf("decoding pack.mcmeta: %w", err)
	}
	result.Metadata.Set(&resource.ResourcePackMetadata{
		PackFormat:  d.Pack.PackFormat,
		Description: textComponent(d.Pack.Description),
	})
	addIcon(fsys, "pack.png", result)
	return true, nil
}

// textComponent flattens a chat component (string, object or array) to text.
func textComponent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var b strings.Builder
		for _, part := range list {
			b.WriteString(textComponent(part))
		}
		return b.String()
	}
	var obj struct {
		Text  string            `json:"text"`
		Extra []json.RawMessage `json:"extra"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(obj.Text)
	for _, part := range obj.Extra {
		b.WriteString(textComponent(part))
	}
	return b.String()
}

func detectShaderPack(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	info, err := fs.Stat(fsys, "shaders")
	if err != nil || !info.IsDir() {
		return false, nil
	}
	result.Metadata.Set(&resource.ShaderPackMetadata{})
	return true, nil
}

// detectSave accepts a world at the root or inside a single top-level folder,
// which is how worlds are usually zipped.
func detectSave(fsys fs.FS, result *resource.ParseResult) (bool, error) {
	root := "."
	if !exists(fsys, "level.dat") {
		entries, err := fs.ReadDir(fsys, ".")
		if err != nil {
			return false, nil
		}
		root = ""
		for _, e := range entries {
			if e.IsDir() && exists(fsys, e.Name()+"/level.dat") {
				root = e.Name()
				break
			}
		}
		if root == "" {
			return false, nil
		}
	}
	join := func(name string) string {
		if root == "." {
			return name
		}
		return root + "/" + name
	}

	save := &resource.SaveMetadata{}
	if data, err := readFile(fsys, join("level.dat")); err == nil {
		save.LevelName = levelName(data)
	}
	result.Metadata.Set(save)
	setName(result, save.LevelName)
	addIcon(fsys, join("icon.png"), result)
	return true, nil
}

// levelNameTag is the NBT header of the string tag named LevelName.
var levelNameTag = []byte("\x08\x00\x09LevelName")

// levelName pulls Data.LevelName out of a gzipped level.dat without decoding
// the whole NBT tree.
func levelName(compressed []byte) string {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return ""
	}
	defer zr.Close()
	data, err := io.ReadAll(io.LimitReader(zr, maxDescriptorSize))
	if err != nil && len(data) == 0 {
		return ""
	}
	i := bytes.Index(data, levelNameTag)
	if i < 0 {
		return ""
	}
	rest := data[i+len(levelNameTag):]
	if len(rest) < 2 {
		return ""
	}
	n := int(binary.BigEndian.Uint16(rest))
	if len(rest) < 2+n {
		return ""
	}
	return string(rest[2 : 2+n])
}
