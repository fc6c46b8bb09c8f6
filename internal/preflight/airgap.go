package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// checkWheelDir verifies the local dependency cache exists and holds at
// least one package artifact.
func checkWheelDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dependency cache directory not configured")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.whl"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no package artifacts in %s", dir)
	}
	return nil
}

// checkModel queries the inference runtime's model list and verifies the
// named model is registered. Names may carry a tag suffix ("llama3:8b"), so
// both the exact name and the untagged base name count as a match.
func (v *Validator) checkModel(ctx context.Context) error {
	if v.Artifacts.Model == "" {
		return fmt.Errorf("model name not configured")
	}

	url := strings.TrimSuffix(v.Artifacts.RuntimeURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := v.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("inference runtime unreachable at %s: %w", v.Artifacts.RuntimeURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model list: HTTP %d", resp.StatusCode)
	}

	var list struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("decode model list: %w", err)
	}

	want := v.Artifacts.Model
	for _, m := range list.Models {
		if m.Name == want || strings.SplitN(m.Name, ":", 2)[0] == want {
			return nil
		}
	}
	return fmt.Errorf("model %q not registered with the inference runtime", want)
}
