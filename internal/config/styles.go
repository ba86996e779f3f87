package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
)

// StylesFile is the YAML layout of OVERLAY_STYLES_FILE:
//
//	styles:
//	  hline:
//	    line: {color: "#ff9800", size: 2}
//	  rectangle:
//	    fill: {color: "rgba(33,150,243,0.2)"}
type StylesFile struct {
	Styles map[overlay.OverlayType]overlay.OverlayStyle `yaml:"styles"`
}

// LoadStyles reads per-type default style overrides. Unknown overlay types
// are rejected so a typo does not silently do nothing. An empty path
// returns no overrides.
func LoadStyles(path string) (map[overlay.OverlayType]overlay.OverlayStyle, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("styles config: %w", err)
	}
	var file StylesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("styles config: %w", err)
	}
	for t := range file.Styles {
		if _, ok := overlay.KnownTypes[t]; !ok {
			return nil, fmt.Errorf("styles config: unknown overlay type %q", t)
		}
	}
	return file.Styles, nil
}
