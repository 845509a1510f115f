package localization

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pitabwire/util"
)

// loadSeeds reads bundled messages.<lang>.toml files. Seed tables are
// optional; a missing or unreadable file only narrows the fallback chain
// for that language.
func loadSeeds(dir string, languages []string) map[string]map[string]string {
	seeds := make(map[string]map[string]string)
	if dir == "" {
		return seeds
	}

	log := util.Log(context.Background())

	for _, lang := range languages {
		path := filepath.Join(dir, fmt.Sprintf("messages.%s.toml", lang))

		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.WithError(err).WithField("path", path).Warn("could not read seed translations")
			}
			continue
		}

		raw := map[string]any{}
		if err = toml.Unmarshal(data, &raw); err != nil {
			log.WithError(err).WithField("path", path).Warn("could not parse seed translations")
			continue
		}

		entries := map[string]string{}
		flattenSeed("", raw, entries)
		seeds[lang] = entries
	}

	return seeds
}

// flattenSeed turns nested toml tables into dotted keys matching the
// server table format.
func flattenSeed(prefix string, raw map[string]any, out map[string]string) {
	for key, value := range raw {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case string:
			out[full] = v
		case map[string]any:
			flattenSeed(full, v, out)
		}
	}
}
