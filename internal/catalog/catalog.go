// Package catalog holds the read-only set of SRL reflection prompts.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/pavelanni/reflector/internal/model"
	"github.com/pavelanni/reflector/internal/validator"
)

//go:embed prompts.json
var defaultCatalog []byte

// Lookup resolves prompts by id. A false result means the id is unknown;
// a non-nil error means the catalog itself could not be consulted.
type Lookup interface {
	Lookup(id string) (model.Prompt, bool, error)
}

type weekTheme struct {
	Week        int    `json:"week"`
	Theme       string `json:"theme"`
	Description string `json:"description"`
}

type catalogFile struct {
	Weeks   []weekTheme    `json:"weeks"`
	Prompts []model.Prompt `json:"prompts"`
}

// Catalog is an immutable in-memory prompt catalog.
type Catalog struct {
	prompts []model.Prompt
	byID    map[string]int
	themes  map[int]weekTheme
}

// Default returns the catalog bundled with the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from a JSON file. An empty path yields the bundled catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse builds a catalog from its JSON representation and validates every prompt.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		byID:   make(map[string]int, len(f.Prompts)),
		themes: make(map[int]weekTheme, len(f.Weeks)),
	}
	for _, w := range f.Weeks {
		c.themes[w.Week] = w
	}
	for i, p := range f.Prompts {
		if err := validatePrompt(p); err != nil {
			return nil, fmt.Errorf("prompt %d (%s): %w", i, p.ID, err)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate prompt id %q", p.ID)
		}
		c.byID[p.ID] = len(c.prompts)
		c.prompts = append(c.prompts, p)
	}
	return c, nil
}

func validatePrompt(p model.Prompt) error {
	if err := validator.Struct(p); err != nil {
		return err
	}
	switch p.Type {
	case model.TypeMultipleChoice:
		if len(p.Options) < 2 {
			return fmt.Errorf("multiple-choice prompt needs at least 2 options, has %d", len(p.Options))
		}
		for _, o := range p.Options {
			if strings.TrimSpace(o) == "" {
				return fmt.Errorf("multiple-choice prompt has a blank option")
			}
		}
	case model.TypeSlider:
		if p.MinValue == nil || p.MaxValue == nil {
			return fmt.Errorf("slider prompt needs minValue and maxValue")
		}
		if *p.MinValue >= *p.MaxValue {
			return fmt.Errorf("slider minValue %v must be below maxValue %v", *p.MinValue, *p.MaxValue)
		}
	}
	return nil
}

// Lookup returns the prompt with the given id.
func (c *Catalog) Lookup(id string) (model.Prompt, bool, error) {
	i, ok := c.byID[id]
	if !ok {
		return model.Prompt{}, false, nil
	}
	return c.prompts[i], true, nil
}

// Len returns the number of prompts.
func (c *Catalog) Len() int {
	return len(c.prompts)
}

// ByWeek returns the prompts of a week in catalog order.
func (c *Catalog) ByWeek(week int) []model.Prompt {
	var out []model.Prompt
	for _, p := range c.prompts {
		if p.Week == week {
			out = append(out, p)
		}
	}
	return out
}

// Weeks returns every week that has prompts or a theme, ascending.
func (c *Catalog) Weeks() []model.WeekData {
	var weeks []int
	seen := make(map[int]bool)
	add := func(w int) {
		if !seen[w] {
			seen[w] = true
			weeks = append(weeks, w)
		}
	}
	for w := range c.themes {
		add(w)
	}
	for _, p := range c.prompts {
		add(p.Week)
	}
	slices.Sort(weeks)

	out := make([]model.WeekData, 0, len(weeks))
	for _, w := range weeks {
		t := c.themes[w]
		out = append(out, model.WeekData{
			Week:        w,
			Theme:       t.Theme,
			Description: t.Description,
			Prompts:     c.ByWeek(w),
		})
	}
	return out
}

// ValidateAnswer checks that response is an acceptable answer to p.
func ValidateAnswer(p model.Prompt, response string) error {
	trimmed := strings.TrimSpace(response)
	switch p.Type {
	case model.TypeMultipleChoice:
		if !slices.Contains(p.Options, response) {
			return fmt.Errorf("%q is not one of the options for %s", response, p.ID)
		}
	case model.TypeSlider:
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(v) {
			return fmt.Errorf("slider answer for %s must be a number, got %q", p.ID, response)
		}
		if (p.MinValue != nil && v < *p.MinValue) || (p.MaxValue != nil && v > *p.MaxValue) {
			return fmt.Errorf("slider answer %v for %s is out of range", v, p.ID)
		}
	case model.TypeYesNo:
		switch strings.ToLower(trimmed) {
		case "yes", "no":
		default:
			return fmt.Errorf("answer for %s must be yes or no, got %q", p.ID, response)
		}
	case model.TypeOpenEnded:
		if trimmed == "" {
			return fmt.Errorf("answer for %s cannot be blank", p.ID)
		}
	}
	return nil
}
