package weapon

import (
	"fmt"
	"strings"
)

// WeaponClasses is the taxonomy reported by the service, in the class-index
// order of the custom weapon model.
var WeaponClasses = []string{
	"automatic_rifle",
	"bazooka",
	"grenade_launcher",
	"handgun",
	"knife",
	"shotgun",
	"smg",
	"sniper",
	"sword",
}

// WeaponColors are the RGB box colours used when rendering annotated images.
var WeaponColors = map[string][3]uint8{
	"automatic_rifle":  {0xdc, 0x26, 0x26},
	"bazooka":          {0xb9, 0x1c, 0x1c},
	"grenade_launcher": {0x99, 0x1b, 0x1b},
	"handgun":          {0xf5, 0x9e, 0x0b},
	"knife":            {0xd9, 0x77, 0x06},
	"shotgun":          {0xdc, 0x26, 0x26},
	"smg":              {0xb9, 0x1c, 0x1c},
	"sniper":           {0x99, 0x1b, 0x1b},
	"sword":            {0xb4, 0x53, 0x09},
}

var CriticalClasses = map[string]struct{}{
	"automatic_rifle":  {},
	"bazooka":          {},
	"grenade_launcher": {},
	"sniper":           {},
	"smg":              {},
}

var HighClasses = map[string]struct{}{
	"shotgun": {},
}

// DefaultClassOverrides maps model class names outside the taxonomy. An empty
// value means the class is ignored.
var DefaultClassOverrides = map[string]string{
	"scissors": "knife",
	"person":   "",
	"bottle":   "",
}

// ClassMap resolves model class indices to weapon categories. It is built once
// and never mutated.
type ClassMap struct {
	taxonomy  []string
	overrides map[string]string
}

func NewClassMap(taxonomy []string, overrides map[string]string) ClassMap {
	t := make([]string, len(taxonomy))
	copy(t, taxonomy)

	o := make(map[string]string, len(overrides))
	for k, v := range overrides {
		o[k] = v
	}

	return ClassMap{taxonomy: t, overrides: o}
}

func DefaultClassMap() ClassMap {
	return NewClassMap(WeaponClasses, DefaultClassOverrides)
}

// Resolve returns the weapon category for classIndex. Indices inside the
// taxonomy range map directly; other indices go through the model's own class
// name and the override table. ok is false when the detection must be dropped.
func (m ClassMap) Resolve(classIndex int, modelNames []string) (string, bool) {
	if classIndex >= 0 && classIndex < len(m.taxonomy) {
		return m.taxonomy[classIndex], true
	}

	if classIndex < 0 || classIndex >= len(modelNames) {
		return "", false
	}

	mapped, ok := m.overrides[modelNames[classIndex]]
	if !ok || mapped == "" {
		return "", false
	}

	return mapped, true
}

func (m ClassMap) Taxonomy() []string {
	t := make([]string, len(m.taxonomy))
	copy(t, m.taxonomy)
	return t
}

// ParseClassOverrides reads "name=category,name=" pairs. An empty category
// marks the class as ignored.
func ParseClassOverrides(raw string) (map[string]string, error) {
	overrides := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return overrides, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, category, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid class override %q", pair)
		}
		overrides[strings.TrimSpace(name)] = strings.TrimSpace(category)
	}

	return overrides, nil
}
