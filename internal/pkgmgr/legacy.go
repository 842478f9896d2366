package pkgmgr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
)

// syncLegacyPlugins keeps pawn.legacy_plugins of the server config in step
// with the plugin binaries placed under plugins/.
func (s *Session) syncLegacyPlugins(added, dropped []string) error {
	add := legacyPluginNames(added)
	remove := subtract(legacyPluginNames(dropped), add)
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	changed, err := UpdateLegacyPlugins(s.Paths.ServerConfig, add, remove)
	if err != nil {
		return err
	}
	if changed {
		s.logf("updated legacy_plugins in %s (+%v -%v)", s.Paths.Rel(s.Paths.ServerConfig), add, remove)
	}
	return nil
}

// legacyPluginNames returns the load names of project files under plugins/:
// the file name without its extension.
func legacyPluginNames(files []string) []string {
	var names []string
	for _, f := range files {
		if !strings.HasPrefix(f, "plugins/") {
			continue
		}
		base := path.Base(f)
		names = append(names, strings.TrimSuffix(base, path.Ext(base)))
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// UpdateLegacyPlugins merges add into, and drops remove from, the
// pawn.legacy_plugins array of the open.mp config at configPath. The file is
// read leniently (comments and trailing commas are accepted) and rewritten
// as indented JSON. A missing file is created only when there is something
// to add. It reports whether the file was written.
func UpdateLegacyPlugins(configPath string, add, remove []string) (bool, error) {
	doc := map[string]any{}
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if len(add) == 0 {
			return false, nil
		}
	case err != nil:
		return false, fmt.Errorf("read %s: %w", configPath, err)
	default:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return false, fmt.Errorf("parse %s: %w", configPath, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	}

	raw, ok := doc["pawn"]
	if !ok || raw == nil {
		if len(add) == 0 {
			return false, nil
		}
		raw = map[string]any{
			"legacy_plugins": []any{},
			"main_scripts":   []any{},
			"side_scripts":   []any{},
		}
		doc["pawn"] = raw
	}
	pawn, ok := raw.(map[string]any)
	if !ok {
		return false, fmt.Errorf("%s: pawn is not an object", configPath)
	}

	current := stringList(pawn["legacy_plugins"])
	next := append(slices.Clone(current), add...)
	next = slices.DeleteFunc(next, func(name string) bool { return slices.Contains(remove, name) })
	slices.Sort(next)
	next = slices.Compact(next)
	if _, present := pawn["legacy_plugins"]; present && slices.Equal(current, next) {
		return false, nil
	}

	list := make([]any, len(next))
	for i, name := range next {
		list[i] = name
	}
	pawn["legacy_plugins"] = list

	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", configPath, err)
	}
	if err := writeFileAtomic(configPath, append(out, '\n')); err != nil {
		return false, err
	}
	return true, nil
}

// stringList keeps the string elements of a decoded JSON array in order.
func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".opencli-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", target, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("replace %s: %w", target, err)
	}
	return nil
}
