package parser

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"resdex/internal/resource"
	"resdex/internal/testutil"
)

func parse(t *testing.T, path string, kind resource.FileKind, domain resource.Domain) *resource.ParseResult {
	t.Helper()
	got, err := New(nil).Parse(context.Background(), path, kind, domain)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return got
}

func TestParse_Fabric(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.WriteZip(t, dir, "sodium.jar", map[string]string{
		"fabric.mod.json": `{
			"id": "sodium", "version": "0.5.3", "name": "Sodium",
			"description": "Rendering engine",
			"authors": ["jellysquid3", {"name": "IMS"}],
			"icon": {"16": "small.png", "128": "assets/sodium/icon.png"},
			"environment": "client"
		}`,
		"assets/sodium/icon.png": "big-icon",
		"small.png":              "small-icon",
	})

	got := parse(t, jar, resource.KindZip, resource.DomainMods)

	fabric, ok := got.Metadata.Variant(resource.TypeFabric).(*resource.FabricMetadata)
	if !ok {
		t.Fatalf("fabric variant missing, got %+v", got.Metadata.Variants)
	}
	if fabric.ID != "sodium" || fabric.Version != "0.5.3" || fabric.Environment != "client" {
		t.Errorf("fabric = %+v", fabric)
	}
	if len(fabric.Authors) != 2 || fabric.Authors[1] != "IMS" {
		t.Errorf("Authors = %v, want [jellysquid3 IMS]", fabric.Authors)
	}
	if got.Name != "Sodium" || got.Metadata.Name != "Sodium" {
		t.Errorf("Name = %q / %q, want Sodium", got.Name, got.Metadata.Name)
	}
	if len(got.Icons) != 1 || string(got.Icons[0]) != "big-icon" {
		t.Errorf("Icons = %q, want [big-icon]", got.Icons)
	}
}

func TestParse_ForgeModsToml(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.WriteZip(t, dir, "jei.jar", map[string]string{
		"META-INF/mods.toml": `
modLoader="javafml"
loaderVersion="[47,)"
[[mods]]
modId="jei"
version="${file.jarVersion}"
displayName="Just Enough Items"
authors="mezz, others"
description='''
Item viewer
'''
logoFile="logo.png"
`,
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\nImplementation-Version: 15.2.0\n",
		"logo.png":             "logo",
	})

	got := parse(t, jar, resource.KindZip, resource.DomainMods)

	forge, ok := got.Metadata.Variant(resource.TypeForge).(*resource.ForgeMetadata)
	if !ok {
		t.Fatalf("forge variant missing, got %+v", got.Metadata.Variants)
	}
	if forge.ID != "jei" || forge.Version != "15.2.0" || forge.LoaderVersion != "[47,)" {
		t.Errorf("forge = %+v", forge)
	}
	if forge.Description != "Item viewer" {
		t.Errorf("Description = %q", forge.Description)
	}
	if len(forge.Authors) != 2 {
		t.Errorf("Authors = %v, want 2", forge.Authors)
	}
	if len(got.Icons) != 1 {
		t.Errorf("len(Icons) = %d, want 1", len(got.Icons))
	}
}

func TestParse_MultiLoaderJar(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.WriteZip(t, dir, "multi.jar", map[string]string{
		"fabric.mod.json":             `{"id": "multi", "name": "Multi"}`,
		"quilt.mod.json":              `{"quilt_loader": {"id": "multi", "group": "dev.multi", "metadata": {"name": "Multi Q"}}}`,
		"META-INF/neoforge.mods.toml": "[[mods]]\nmodId=\"multi\"\n",
		"mcmod.info":                  `[{"modid": "multi", "name": "Multi Legacy"}]`,
	})

	got := parse(t, jar, resource.KindZip, resource.DomainMods)

	for _, typ := range []resource.ResourceType{resource.TypeFabric, resource.TypeQuilt, resource.TypeNeoforge, resource.TypeForge} {
		if got.Metadata.Variant(typ) == nil {
			t.Errorf("variant %s missing", typ)
		}
	}
	if got.Name != "Multi" {
		t.Errorf("Name = %q, want first detector's name", got.Name)
	}
}

func TestParse_Liteloader(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.WriteZip(t, dir, "voxel.litemod", map[string]string{
		"litemod.json": `{"name": "VoxelMap", "version": "1.7", "mcversion": "1.12.2", "author": "MamiyaOtaru"}`,
	})

	got := parse(t, jar, resource.KindZip, resource.DomainMods)

	lite, ok := got.Metadata.Variant(resource.TypeLiteloader).(*resource.LiteloaderMetadata)
	if !ok {
		t.Fatal("liteloader variant missing")
	}
	if lite.MinecraftVersion != "1.12.2" {
		t.Errorf("MinecraftVersion = %q", lite.MinecraftVersion)
	}
}

func TestParse_ResourcePack(t *testing.T) {
	tests := []struct {
		name        string
		mcmeta      string
		description string
	}{
		{"plain description", `{"pack": {"pack_format": 15, "description": "Faithful"}}`, "Faithful"},
		{"component description", `{"pack": {"pack_format": 15, "description": {"text": "Fai", "extra": [{"text": "thful"}]}}}`, "Faithful"},
		{"list description", `{"pack": {"pack_format": 15, "description": ["Fai", {"text": "thful"}]}}`, "Faithful"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			pack := testutil.WriteZip(t, dir, "faithful.zip", map[string]string{
				"pack.mcmeta": tt.mcmeta,
				"pack.png":    "png",
			})

			got := parse(t, pack, resource.KindZip, resource.DomainResourcePacks)

			rp, ok := got.Metadata.Variant(resource.TypeResourcePack).(*resource.ResourcePackMetadata)
			if !ok {
				t.Fatal("resourcepack variant missing")
			}
			if rp.PackFormat != 15 || rp.Description != tt.description {
				t.Errorf("resourcepack = %+v, want format 15 description %q", rp, tt.description)
			}
			if len(got.Icons) != 1 {
				t.Errorf("len(Icons) = %d, want 1", len(got.Icons))
			}
		})
	}
}

func TestParse_ShaderPackDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "BSL")
	testutil.WriteFile(t, dir, "shaders/composite.fsh", []byte("void main() {}"))

	got := parse(t, dir, resource.KindDirectory, resource.DomainShaderPacks)

	if got.Metadata.Variant(resource.TypeShaderPack) == nil {
		t.Error("shaderpack variant missing")
	}
}

func levelDat(t *testing.T, name string) []byte {
	t.Helper()
	var raw bytes.Buffer
	raw.Write([]byte{10, 0, 0}) // root compound
	raw.Write([]byte{10, 0, 4}) // Data compound
	raw.WriteString("Data")
	raw.Write(levelNameTag)
	binary.Write(&raw, binary.BigEndian, uint16(len(name)))
	raw.WriteString(name)
	raw.Write([]byte{0, 0})

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return gz.Bytes()
}

func TestParse_Save(t *testing.T) {
	t.Run("world directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "New World")
		testutil.WriteFile(t, dir, "level.dat", levelDat(t, "My Survival"))
		testutil.WriteFile(t, dir, "icon.png", []byte("icon"))

		got := parse(t, dir, resource.KindDirectory, resource.DomainSaves)

		save, ok := got.Metadata.Variant(resource.TypeSave).(*resource.SaveMetadata)
		if !ok {
			t.Fatal("save variant missing")
		}
		if save.LevelName != "My Survival" {
			t.Errorf("LevelName = %q, want My Survival", save.LevelName)
		}
		if got.Name != "My Survival" {
			t.Errorf("Name = %q", got.Name)
		}
		if len(got.Icons) != 1 {
			t.Errorf("len(Icons) = %d, want 1", len(got.Icons))
		}
	})

	t.Run("zipped world in a folder", func(t *testing.T) {
		dir := t.TempDir()
		archive := testutil.WriteZip(t, dir, "world.zip", map[string]string{
			"World1/level.dat": string(levelDat(t, "Zipped")),
		})

		got := parse(t, archive, resource.KindZip, resource.DomainSaves)

		save, ok := got.Metadata.Variant(resource.TypeSave).(*resource.SaveMetadata)
		if !ok {
			t.Fatal("save variant missing")
		}
		if save.LevelName != "Zipped" {
			t.Errorf("LevelName = %q, want Zipped", save.LevelName)
		}
	})
}

func TestParse_Modpacks(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
		format  resource.ResourceType
		mc      string
		pack    string
	}{
		{
			name:    "modrinth",
			entries: map[string]string{"modrinth.index.json": `{"name": "Fabulously Optimized", "versionId": "5.0", "dependencies": {"minecraft": "1.20.1"}}`},
			format:  resource.TypeModrinthModpack, mc: "1.20.1", pack: "Fabulously Optimized",
		},
		{
			name:    "curseforge",
			entries: map[string]string{"manifest.json": `{"manifestType": "minecraftModpack", "name": "RLCraft", "minecraft": {"version": "1.12.2"}}`},
			format:  resource.TypeCurseforgeModpack, mc: "1.12.2", pack: "RLCraft",
		},
		{
			name:    "mcbbs",
			entries: map[string]string{"mcbbs.packmeta": `{"name": "Pack", "addons": [{"id": "game", "version": "1.16.5"}]}`},
			format:  resource.TypeMcbbsModpack, mc: "1.16.5", pack: "Pack",
		},
		{
			name: "multimc",
			entries: map[string]string{
				"mmc-pack.json": `{"components": [{"uid": "net.minecraft", "version": "1.19.2"}]}`,
				"instance.cfg":  "InstanceType=OneSix\nname=Create Above\n",
			},
			format: resource.TypeMMCModpack, mc: "1.19.2", pack: "Create Above",
		},
		{
			name:    "launcher",
			entries: map[string]string{"modpack.json": `{"name": "Mine", "author": "me", "runtime": {"minecraft": "1.21"}}`},
			format:  resource.TypeModpack, mc: "1.21", pack: "Mine",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := testutil.WriteZip(t, t.TempDir(), "pack.zip", tt.entries)

			got := parse(t, archive, resource.KindZip, resource.DomainModpacks)

			m, ok := got.Metadata.Variant(tt.format).(*resource.ModpackMetadata)
			if !ok {
				t.Fatalf("variant %s missing, got %+v", tt.format, got.Metadata.Variants)
			}
			if m.MinecraftVersion != tt.mc {
				t.Errorf("MinecraftVersion = %q, want %q", m.MinecraftVersion, tt.mc)
			}
			if m.Name != tt.pack {
				t.Errorf("Name = %q, want %q", m.Name, tt.pack)
			}
		})
	}
}

func TestParse_CurseforgeManifestTypeMustMatch(t *testing.T) {
	archive := testutil.WriteZip(t, t.TempDir(), "x.zip", map[string]string{
		"manifest.json": `{"manifestType": "somethingElse"}`,
	})
	_, err := New(nil).Parse(context.Background(), archive, resource.KindZip, resource.DomainModpacks)
	if !errors.Is(err, ErrUnrecognized) {
		t.Errorf("Parse() error = %v, want ErrUnrecognized", err)
	}
}

func TestParse_Unclassified(t *testing.T) {
	archive := testutil.WriteZip(t, t.TempDir(), "thing.zip", map[string]string{
		"pack.mcmeta": `{"pack": {"pack_format": 4}}`,
	})

	got := parse(t, archive, resource.KindZip, resource.DomainUnclassified)

	if resource.ResolveDomain(got.Metadata) != resource.DomainResourcePacks {
		t.Errorf("ResolveDomain() = %v, want resourcepacks", resource.ResolveDomain(got.Metadata))
	}
}

func TestParse_Failures(t *testing.T) {
	t.Run("unknown kind", func(t *testing.T) {
		p := testutil.WriteFile(t, t.TempDir(), "readme.bin", []byte("data"))
		_, err := New(nil).Parse(context.Background(), p, resource.KindUnknown, resource.DomainMods)
		if !errors.Is(err, ErrUnrecognized) {
			t.Errorf("Parse() error = %v, want ErrUnrecognized", err)
		}
	})

	t.Run("malformed descriptor", func(t *testing.T) {
		jar := testutil.WriteZip(t, t.TempDir(), "bad.jar", map[string]string{
			"fabric.mod.json": `{not json`,
		})
		_, err := New(nil).Parse(context.Background(), jar, resource.KindZip, resource.DomainMods)
		if !errors.Is(err, ErrUnrecognized) {
			t.Errorf("Parse() error = %v, want ErrUnrecognized", err)
		}
	})

	t.Run("corrupt archive", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "corrupt.jar")
		if err := os.WriteFile(p, []byte("PK\x03\x04garbage"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := New(nil).Parse(context.Background(), p, resource.KindZip, resource.DomainMods)
		if err == nil {
			t.Error("Parse() expected error for corrupt archive")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		jar := testutil.WriteZip(t, t.TempDir(), "a.jar", map[string]string{"fabric.mod.json": `{}`})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(nil).Parse(ctx, jar, resource.KindZip, resource.DomainMods)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Parse() error = %v, want context.Canceled", err)
		}
	})
}
