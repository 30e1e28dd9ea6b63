package manifest

import (
	"path"
	"strings"
	"unicode"
)

// SetupManifest is the parsed setup section of the project manifest
type SetupManifest struct {
	AssetGroups []AssetGroup `yaml:"asset_group_table"`
	Patches     PatchSpec    `yaml:"patch_matrix"`
}

// AssetGroup is one category of vendored files sharing a destination
type AssetGroup struct {
	DestDir string      `yaml:"dest_dir_str"`
	DestExt string      `yaml:"dest_ext_str,omitempty"` // Unused for directory copies
	DirCopy bool        `yaml:"do_dir_copy,omitempty"`
	Assets  []AssetSpec `yaml:"asset_list"`
	Exclude []string    `yaml:"exclude_glob_list,omitempty"` // doublestar patterns skipped in directory copies
}

// AssetSpec identifies one file or directory to vend from an installed package
type AssetSpec struct {
	SrcPackage string `yaml:"src_pkg_name"`
	SrcDir     string `yaml:"src_dir_str,omitempty"`
	SrcAsset   string `yaml:"src_asset_name"`
	DestName   string `yaml:"dest_name,omitempty"`
}

// PatchSpec lists the patches to apply and where their files live
type PatchSpec struct {
	PatchDir string       `yaml:"patch_dir_str"`
	Entries  []PatchEntry `yaml:"patch_map_list"`
}

// PatchEntry is one idempotent patch application unit
type PatchEntry struct {
	CheckFile string `yaml:"check_filename"`
	Marker    string `yaml:"match_str"`
	PatchFile string `yaml:"patch_filename"`
}

// DependencyVersionIndex maps package name to declared version
type DependencyVersionIndex map[string]string

// Lookup returns the version of pkg suitable for use in a file name.
// Range operators are stripped so "^2.7.3" yields "2.7.3". Versions that
// would not form a single path element, such as "github:user/repo" or
// ">=1 <2", are treated as unknown.
func (d DependencyVersionIndex) Lookup(pkg string) (string, bool) {
	raw, ok := d[pkg]
	if !ok {
		return "", false
	}
	v := strings.TrimLeft(strings.TrimSpace(raw), "^~=<>v ")
	if v == "" || !usableVersion(v) {
		return "", false
	}
	return v, true
}

func usableVersion(v string) bool {
	if v == "." || v == ".." {
		return false
	}
	for _, r := range v {
		if r == '/' || r == '\\' || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Name returns the destination base name, defaulting to the package name
func (a AssetSpec) Name() string {
	if a.DestName != "" {
		return a.DestName
	}
	return a.SrcPackage
}

// SourceRel returns the asset path relative to the dependency root
func (a AssetSpec) SourceRel() string {
	parts := []string{a.SrcPackage}
	if a.SrcDir != "" {
		parts = append(parts, a.SrcDir)
	}
	parts = append(parts, a.SrcAsset)
	return path.Join(parts...)
}

// DestBase returns "<name>-<version>[.<ext>]" for an asset of this group
func (g AssetGroup) DestBase(asset AssetSpec, version string) string {
	base := asset.Name() + "-" + version
	if !g.DirCopy && g.DestExt != "" {
		base += "." + g.DestExt
	}
	return base
}

// RelPatch returns the patch file path relative to the project root
func (p PatchSpec) RelPatch(entry PatchEntry) string {
	if p.PatchDir == "" {
		return entry.PatchFile
	}
	return path.Join(p.PatchDir, entry.PatchFile)
}

// AssetCount returns the number of assets across all groups
func (m *SetupManifest) AssetCount() int {
	n := 0
	for _, g := range m.AssetGroups {
		n += len(g.Assets)
	}
	return n
}
