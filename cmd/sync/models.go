package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fenixflow/ff-storage-sub000/model"
)

// loadModels reads every descriptor in paths. A directory contributes its
// *.yaml and *.yml files in name order.
func loadModels(paths []string) ([]*model.Descriptor, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read model path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, err
			}
			found = append(found, matches...)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no model files found in %v", paths)
	}

	var models []*model.Descriptor
	seen := make(map[string]string)
	for _, f := range files {
		loaded, err := model.LoadFile(f)
		if err != nil {
			return nil, err
		}
		for _, d := range loaded {
			if prev, ok := seen[d.ModelName()]; ok {
				return nil, fmt.Errorf("model %s is defined in both %s and %s", d.ModelName(), prev, f)
			}
			seen[d.ModelName()] = f
			models = append(models, d)
		}
	}
	return models, nil
}
