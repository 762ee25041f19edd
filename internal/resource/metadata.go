package resource

import (
	"encoding/json"
	"fmt"
)

// ResourceType names one variant of the metadata union.
type ResourceType string

const (
	TypeForge             ResourceType = "forge"
	TypeNeoforge          ResourceType = "neoforge"
	TypeFabric            ResourceType = "fabric"
	TypeQuilt             ResourceType = "quilt"
	TypeLiteloader        ResourceType = "liteloader"
	TypeResourcePack      ResourceType = "resourcepack"
	TypeShaderPack        ResourceType = "shaderpack"
	TypeSave              ResourceType = "save"
	TypeModpack           ResourceType = "modpack"
	TypeCurseforgeModpack ResourceType = "curseforge-modpack"
	TypeMcbbsModpack      ResourceType = "mcbbs-modpack"
	TypeMMCModpack        ResourceType = "mmc-modpack"
	TypeModrinthModpack   ResourceType = "modrinth-modpack"
)

// ResourceTypes lists every variant type in storage column order.
var ResourceTypes = []ResourceType{
	TypeForge,
	TypeNeoforge,
	TypeFabric,
	TypeQuilt,
	TypeLiteloader,
	TypeResourcePack,
	TypeShaderPack,
	TypeSave,
	TypeModpack,
	TypeCurseforgeModpack,
	TypeMcbbsModpack,
	TypeMMCModpack,
	TypeModrinthModpack,
}

// Variant is one arm of the metadata union. Each concrete type reports the
// ResourceType it is stored under.
type Variant interface {
	Type() ResourceType
}

// ModInfo holds the fields shared by every mod loader descriptor.
type ModInfo struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Authors     []string `json:"authors,omitempty"`
}

type ForgeMetadata struct {
	ModInfo
	LoaderVersion string `json:"loaderVersion,omitempty"`
}

type NeoforgeMetadata struct {
	ModInfo
	LoaderVersion string `json:"loaderVersion,omitempty"`
}

type FabricMetadata struct {
	ModInfo
	Environment string `json:"environment,omitempty"`
}

type QuiltMetadata struct {
	ModInfo
	Group string `json:"group,omitempty"`
}

type LiteloaderMetadata struct {
	ModInfo
	MinecraftVersion string `json:"mcversion,omitempty"`
}

type ResourcePackMetadata struct {
	PackFormat  int    `json:"packFormat,omitempty"`
	Description string `json:"description,omitempty"`
}

type ShaderPackMetadata struct {
	Name string `json:"name,omitempty"`
}

type SaveMetadata struct {
	LevelName string `json:"levelName,omitempty"`
}

// ModpackMetadata covers every modpack format. Format selects the variant it
// is stored under and defaults to TypeModpack.
type ModpackMetadata struct {
	Format           ResourceType `json:"-"`
	Name             string       `json:"name,omitempty"`
	Version          string       `json:"version,omitempty"`
	Author           string       `json:"author,omitempty"`
	MinecraftVersion string       `json:"minecraftVersion,omitempty"`
}

func (*ForgeMetadata) Type() ResourceType        { return TypeForge }
func (*NeoforgeMetadata) Type() ResourceType     { return TypeNeoforge }
func (*FabricMetadata) Type() ResourceType       { return TypeFabric }
func (*QuiltMetadata) Type() ResourceType        { return TypeQuilt }
func (*LiteloaderMetadata) Type() ResourceType   { return TypeLiteloader }
func (*ResourcePackMetadata) Type() ResourceType { return TypeResourcePack }
func (*ShaderPackMetadata) Type() ResourceType   { return TypeShaderPack }
func (*SaveMetadata) Type() ResourceType         { return TypeSave }

func (m *ModpackMetadata) Type() ResourceType {
	if m.Format == "" {
		return TypeModpack
	}
	return m.Format
}

// GitSource records a GitHub or GitLab origin.
type GitSource struct {
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	Artifact string `json:"artifact,omitempty"`
	URL      string `json:"url,omitempty"`
}

type CurseforgeSource struct {
	ProjectID int `json:"projectId"`
	FileID    int `json:"fileId"`
}

type ModrinthSource struct {
	ProjectID string `json:"projectId"`
	VersionID string `json:"versionId"`
}

// InstanceSource records the launcher instance a file was first seen in.
type InstanceSource struct {
	Instance string `json:"instance"`
	File     string `json:"file,omitempty"`
}

// Metadata is the content-addressed description of a resource. Variants holds
// at most one entry per ResourceType.
type Metadata struct {
	Name       string
	Variants   []Variant
	Github     *GitSource
	Gitlab     *GitSource
	Curseforge *CurseforgeSource
	Modrinth   *ModrinthSource
	Instance   *InstanceSource
}

// Variant returns the variant stored under t, or nil.
func (m *Metadata) Variant(t ResourceType) Variant {
	for _, v := range m.Variants {
		if v.Type() == t {
			return v
		}
	}
	return nil
}

// Set stores v, replacing any existing variant of the same type.
func (m *Metadata) Set(v Variant) {
	for i, existing := range m.Variants {
		if existing.Type() == v.Type() {
			m.Variants[i] = v
			return
		}
	}
	m.Variants = append(m.Variants, v)
}

// IsEmpty reports whether no field carries information.
func (m *Metadata) IsEmpty() bool {
	return m.Name == "" && len(m.Variants) == 0 && m.Github == nil && m.Gitlab == nil &&
		m.Curseforge == nil && m.Modrinth == nil && m.Instance == nil
}

// HasLoader reports whether any mod loader variant is present.
func (m *Metadata) HasLoader() bool {
	for _, t := range []ResourceType{TypeForge, TypeNeoforge, TypeFabric, TypeQuilt, TypeLiteloader} {
		if m.Variant(t) != nil {
			return true
		}
	}
	return false
}

// Merge returns base with every non-empty field of over applied on top.
// Nothing in base is ever cleared.
func Merge(base, over Metadata) Metadata {
	out := base
	out.Variants = append([]Variant(nil), base.Variants...)
	if over.Name != "" {
		out.Name = over.Name
	}
	for _, v := range over.Variants {
		out.Set(v)
	}
	if over.Github != nil {
		out.Github = over.Github
	}
	if over.Gitlab != nil {
		out.Gitlab = over.Gitlab
	}
	if over.Curseforge != nil {
		out.Curseforge = over.Curseforge
	}
	if over.Modrinth != nil {
		out.Modrinth = over.Modrinth
	}
	if over.Instance != nil {
		out.Instance = over.Instance
	}
	return out
}

// ResolveDomain picks the domain a resource belongs to from its metadata.
func ResolveDomain(m Metadata) Domain {
	switch {
	case m.HasLoader():
		return DomainMods
	case m.Variant(TypeResourcePack) != nil:
		return DomainResourcePacks
	case m.Variant(TypeShaderPack) != nil:
		return DomainShaderPacks
	case m.Variant(TypeSave) != nil:
		return DomainSaves
	}
	for _, t := range []ResourceType{TypeModpack, TypeCurseforgeModpack, TypeMcbbsModpack, TypeMMCModpack, TypeModrinthModpack} {
		if m.Variant(t) != nil {
			return DomainModpacks
		}
	}
	return DomainUnclassified
}

// DecodeVariant decodes the stored JSON form of a variant of type t.
func DecodeVariant(t ResourceType, data []byte) (Variant, error) {
	var v Variant
	switch t {
	case TypeForge:
		v = &ForgeMetadata{}
	case TypeNeoforge:
		v = &NeoforgeMetadata{}
	case TypeFabric:
		v = &FabricMetadata{}
	case TypeQuilt:
		v = &QuiltMetadata{}
	case TypeLiteloader:
		v = &LiteloaderMetadata{}
	case TypeResourcePack:
		v = &ResourcePackMetadata{}
	case TypeShaderPack:
		v = &ShaderPackMetadata{}
	case TypeSave:
		v = &SaveMetadata{}
	case TypeModpack, TypeCurseforgeModpack, TypeMcbbsModpack, TypeMMCModpack, TypeModrinthModpack:
		v = &ModpackMetadata{Format: t}
	default:
		return nil, fmt.Errorf("unknown resource type: %s", t)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decoding %s metadata: %w", t, err)
	}
	return v, nil
}
