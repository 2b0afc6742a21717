package training

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"sort"
	"strconv"
)

// Manifest is the dataset configuration read by the training toolkit.
type Manifest struct {
	Path  string     `yaml:"path"`
	Train string     `yaml:"train"`
	Val   string     `yaml:"val"`
	Test  string     `yaml:"test"`
	NC    int        `yaml:"nc"`
	Names ClassNames `yaml:"names"`
}

// ClassNames accepts both the list and the id map form of "names".
type ClassNames map[int]string

func (n *ClassNames) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		out := make(ClassNames, len(list))
		for i, name := range list {
			out[i] = name
		}
		*n = out
	case yaml.MappingNode:
		var m map[int]string
		if err := value.Decode(&m); err != nil {
			return err
		}
		*n = ClassNames(m)
	default:
		return fmt.Errorf("names: expected list or mapping, got %v", value.Tag)
	}
	return nil
}

// Ordered lists the names by class id. Missing ids are filled with the id.
func (n ClassNames) Ordered() []string {
	if len(n) == 0 {
		return nil
	}
	ids := make([]int, 0, len(n))
	for id := range n {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	if ids[len(ids)-1] < 0 {
		return nil
	}

	out := make([]string, ids[len(ids)-1]+1)
	for i := range out {
		if name, ok := n[i]; ok {
			out[i] = name
		} else {
			out[i] = strconv.Itoa(i)
		}
	}
	return out
}

func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
