package routerconfig

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the model document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schemas.WrapError(schemas.KindConfigInvalid, err, "reading model document %s", path)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading model document %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a model document. Unknown top-level keys (application settings
// sharing the same file) are ignored.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, schemas.WrapError(schemas.KindConfigInvalid, err, "decoding yaml")
	}
	if len(doc.Models) == 0 {
		return nil, schemas.NewError(schemas.KindConfigInvalid, "document has no models section")
	}
	if doc.Routers == nil {
		doc.Routers = make(map[string]*Group)
	}
	return &doc, nil
}

// GroupNames returns the group keys of the models section in sorted order.
func (d *Document) GroupNames() []string {
	names := make([]string, 0, len(d.Models))
	for name := range d.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Matches returns every group whose member list contains model, sorted.
func (d *Document) Matches(model string) []string {
	var groups []string
	for _, name := range d.GroupNames() {
		for _, member := range d.Models[name] {
			if member == model {
				groups = append(groups, name)
				break
			}
		}
	}
	return groups
}

// Resolve maps a device model name to its group key. A model that no group
// claims, or that more than one group claims, is a config resolution failure.
func (d *Document) Resolve(model string) (string, error) {
	groups := d.Matches(model)
	switch len(groups) {
	case 0:
		return "", schemas.NewError(schemas.KindConfigResolution, "model not found")
	case 1:
		return groups[0], nil
	default:
		return "", schemas.NewError(schemas.KindConfigResolution,
			fmt.Sprintf("model %s matches multiple groups: %s", model, strings.Join(groups, ", ")))
	}
}

// Group returns the phase scripts of a resolved group.
func (d *Document) Group(key string) (*Group, error) {
	g, ok := d.Routers[key]
	if !ok || g == nil {
		return nil, schemas.NewError(schemas.KindConfigResolution,
			fmt.Sprintf("group %s has no routers section", key))
	}
	return g, nil
}

// ResolveGroup combines Resolve and Group.
func (d *Document) ResolveGroup(model string) (string, *Group, error) {
	key, err := d.Resolve(model)
	if err != nil {
		return "", nil, err
	}
	g, err := d.Group(key)
	if err != nil {
		return key, nil, err
	}
	return key, g, nil
}
