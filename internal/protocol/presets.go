package protocol

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/parser"
)

// ErrPresetNotFound indicates the preferences dataset has no workflow with the requested name.
var ErrPresetNotFound = errors.New("planning structure workflow not found")

// Evaluator runs JMESPath expressions against generic data.
type Evaluator interface {
	Evaluate(expr string, data any) (any, error)
}

type jmespathEvaluator struct{}

func (jmespathEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// PresetSource loads planning-structure workflow presets from preferences files.
type PresetSource struct {
	root  string
	eval  Evaluator
	mu    sync.Mutex
	cache map[string]parser.Preferences
}

// NewPresetSource creates a source whose relative folders resolve against root.
func NewPresetSource(root string) *PresetSource {
	return &PresetSource{root: root, eval: jmespathEvaluator{}, cache: map[string]parser.Preferences{}}
}

// Preset returns the workflow row named workflow from folder/file.
func (s *PresetSource) Preset(ctx context.Context, folder, file, workflow string) (models.StructurePreset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefs, err := s.load(folder, file)
	if err != nil {
		return nil, err
	}
	return SelectPreset(s.eval, prefs, workflow)
}

// Workflows lists the workflow names defined in folder/file, in file order.
// Rows without a name are left out.
func (s *PresetSource) Workflows(folder, file string) ([]string, error) {
	prefs, err := s.load(folder, file)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, row := range prefs.Workflows() {
		if name, ok := row["name"]; ok && name != nil {
			names = append(names, fmt.Sprint(name))
		}
	}
	return names, nil
}

// SelectPreset picks the first workflow row whose name equals workflow.
func SelectPreset(eval Evaluator, prefs parser.Preferences, workflow string) (models.StructurePreset, error) {
	expr := fmt.Sprintf("%s[?name == %s] | [0]", parser.PreferencesKey, rawString(workflow))
	res, err := eval.Evaluate(expr, map[string]any(prefs))
	if err != nil {
		return nil, fmt.Errorf("select workflow %s: %w", workflow, err)
	}
	row, ok := res.(map[string]any)
	if !ok || row == nil {
		return nil, fmt.Errorf("%w: %s", ErrPresetNotFound, workflow)
	}
	return models.StructurePreset(row), nil
}

// rawString quotes s as a JMESPath raw string literal.
func rawString(s string) string {
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func (s *PresetSource) load(folder, file string) (parser.Preferences, error) {
	path := filepath.Join(folder, file)
	if !filepath.IsAbs(folder) && s.root != "" {
		path = filepath.Join(s.root, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prefs, ok := s.cache[path]; ok {
		return prefs, nil
	}
	prefs, err := parser.ReadPreferencesFile(path)
	if err != nil {
		return nil, err
	}
	s.cache[path] = prefs
	return prefs, nil
}
