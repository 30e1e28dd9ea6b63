package manifest

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrManifestUnreadable  = errors.New("manifest unreadable")
	ErrManifestInvalid     = errors.New("manifest invalid")
	ErrSetupSectionMissing = errors.New("setup section missing")
)

// Manifest is the loaded project manifest
type Manifest struct {
	Path     string
	Setup    *SetupManifest
	Versions DependencyVersionIndex
}

// Load reads the manifest at path and extracts the setup section stored
// under setupKey (or the first alias present). The file may be JSON, as in
// package.json, or YAML.
func Load(manifestPath, setupKey string, aliases ...string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestUnreadable, err)
	}
	return Parse(manifestPath, data, setupKey, aliases...)
}

// Parse decodes manifest content; name is used only in error messages
func Parse(name string, data []byte, setupKey string, aliases ...string) (*Manifest, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestInvalid, name, err)
	}

	versions, err := dependencyVersions(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestInvalid, name, err)
	}

	node, key := findSection(doc, setupKey, aliases)
	if node == nil {
		return nil, fmt.Errorf("%w: %s not set in %s", ErrSetupSectionMissing, setupKey, name)
	}

	var setup SetupManifest
	if err := node.Decode(&setup); err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrManifestInvalid, name, key, err)
	}
	if err := setup.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrManifestInvalid, name, key, err)
	}

	return &Manifest{
		Path:     name,
		Setup:    &setup,
		Versions: versions,
	}, nil
}

func findSection(doc map[string]yaml.Node, key string, aliases []string) (*yaml.Node, string) {
	for _, k := range append([]string{key}, aliases...) {
		if n, ok := doc[k]; ok && n.Kind != 0 && n.Tag != "!!null" {
			return &n, k
		}
	}
	return nil, ""
}

// dependencyVersions merges devDependencies over dependencies
func dependencyVersions(doc map[string]yaml.Node) (DependencyVersionIndex, error) {
	index := make(DependencyVersionIndex)
	for _, key := range []string{"dependencies", "devDependencies"} {
		n, ok := doc[key]
		if !ok || n.Tag == "!!null" {
			continue
		}
		var deps map[string]string
		if err := n.Decode(&deps); err != nil {
			return nil, fmt.Errorf("%s: %v", key, err)
		}
		for name, version := range deps {
			index[name] = version
		}
	}
	return index, nil
}

// Validate rejects groups and entries that could not be processed safely
func (m *SetupManifest) Validate() error {
	for i, g := range m.AssetGroups {
		if err := validateRelPath(g.DestDir); err != nil {
			return fmt.Errorf("asset group %d: dest_dir_str: %w", i, err)
		}
		for j, a := range g.Assets {
			if a.SrcPackage == "" {
				return fmt.Errorf("asset group %d, asset %d: src_pkg_name is required", i, j)
			}
			if a.SrcAsset == "" {
				return fmt.Errorf("asset group %d, asset %d: src_asset_name is required", i, j)
			}
			if strings.ContainsAny(a.Name(), `/\`) {
				return fmt.Errorf("asset group %d, asset %d: dest_name %q must not contain a path separator", i, j, a.Name())
			}
		}
	}
	for i, p := range m.Patches.Entries {
		if p.CheckFile == "" || p.PatchFile == "" {
			return fmt.Errorf("patch %d: check_filename and patch_filename are required", i)
		}
		if p.Marker == "" {
			return fmt.Errorf("patch %d: match_str is required", i)
		}
	}
	return nil
}

func validateRelPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("must not be empty")
	}
	if path.IsAbs(p) || strings.HasPrefix(p, `\`) {
		return fmt.Errorf("%q must be relative to the project root", p)
	}
	clean := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%q must stay inside the project root", p)
	}
	return nil
}
