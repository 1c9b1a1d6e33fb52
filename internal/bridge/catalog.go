package bridge

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML layout of a binding catalog.
type catalogFile struct {
	Bindings []catalogEntry `yaml:"bindings"`
}

type catalogEntry struct {
	ModelCode     string                    `yaml:"model_code"`
	Bridge        string                    `yaml:"bridge"`
	Init          map[string]any            `yaml:"init"`
	Match         map[string]any            `yaml:"match"`
	Connect       map[string]any            `yaml:"connect"`
	SkipDiscovery bool                      `yaml:"skip_discovery"`
	Bands         map[string]map[string]any `yaml:"bands"`
}

// LoadCatalog reads a YAML binding catalog from path.
//
// factories maps the catalog's "bridge" field to adapter constructors.
// A catalog entry naming an unregistered kind fails the whole load.
func LoadCatalog(path string, factories map[string]Factory) (*StaticRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrCatalog, path, err)
	}
	return ParseCatalog(data, factories)
}

// ParseCatalog builds a registry from YAML catalog content.
//
//	bindings:
//	  - model_code: lamp-v1
//	    bridge: mqtt
//	    init: {protocol: zigbee}
//	    match: {"iot:vendor": acme}
//	    bands:
//	      model: {attributes: {on: {type: boolean}}}
func ParseCatalog(data []byte, factories map[string]Factory) (*StaticRegistry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}

	reg := &StaticRegistry{}
	for i, e := range file.Bindings {
		factory, ok := factories[e.Bridge]
		if !ok {
			return nil, fmt.Errorf("%w: bindings[%d] (%s) uses %q, known: %v",
				ErrUnknownBridge, i, e.ModelCode, e.Bridge, factoryNames(factories))
		}
		err := reg.Register(Binding{
			ModelCode:     e.ModelCode,
			Bridge:        e.Bridge,
			New:           factory,
			Init:          e.Init,
			Match:         e.Match,
			ConnectParams: e.Connect,
			SkipDiscovery: e.SkipDiscovery,
			Bands:         e.Bands,
		})
		if err != nil {
			return nil, fmt.Errorf("bindings[%d]: %w", i, err)
		}
	}
	return reg, nil
}

func factoryNames(factories map[string]Factory) []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
