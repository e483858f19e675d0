// Package survey holds the static survey definition: the ordered questions,
// the region catalog and the texts shown to users. A definition is loaded once
// at startup and never mutated afterwards.
package survey

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ibroh-tech/Omonat-bot/models"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidDefinition is wrapped by every validation failure.
var ErrInvalidDefinition = errors.New("invalid survey definition")

// Texts are the user-facing strings of a deployment. Fields documented with a
// verb take one fmt argument.
type Texts struct {
	ChooseRegion      string `yaml:"choose_region"`
	ChooseSubregion   string `yaml:"choose_subregion"` // %s region name
	RegionSaved       string `yaml:"region_saved"`     // %s region label
	OpenTextHint      string `yaml:"open_text_hint"`
	YourAnswer        string `yaml:"your_answer"`
	Back              string `yaml:"back"`
	Saved             string `yaml:"saved"`
	AlreadyCompleted  string `yaml:"already_completed"`
	Completed         string `yaml:"completed"`
	SelectRegionFirst string `yaml:"select_region_first"`
	SaveFailed        string `yaml:"save_failed"`
	InvalidAction     string `yaml:"invalid_action"`
	NoRegion          string `yaml:"no_region"`
	CurrentRegion     string `yaml:"current_region"` // %s region label
	UnknownCommand    string `yaml:"unknown_command"`
}

var fallbackTexts = Texts{
	ChooseRegion:      "Please select your region:",
	ChooseSubregion:   "Selected region: %s. Now choose your district:",
	RegionSaved:       "✅ Region saved: %s.",
	OpenTextHint:      "Please type your answer.",
	YourAnswer:        "Your answer",
	Back:              "◀️ Back",
	Saved:             "Saved!",
	AlreadyCompleted:  "You have already completed the survey this month. Please come back next month.",
	Completed:         "🎉 Thank you! You have answered all questions.",
	SelectRegionFirst: "Please select your region first.",
	SaveFailed:        "Could not save, please try again.",
	InvalidAction:     "Invalid choice.",
	NoRegion:          "No region saved for this month.",
	CurrentRegion:     "Current month region: %s",
	UnknownCommand:    "Unknown command. Use /start to begin.",
}

// Definition is a complete survey.
type Definition struct {
	Texts     Texts             `yaml:"texts"`
	Regions   []models.Region   `yaml:"regions"`
	Questions []models.Question `yaml:"questions"`
}

// Load reads a definition from path. An empty path loads the built-in default.
func Load(path string) (*Definition, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read survey: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in survey.
func Default() (*Definition, error) {
	return Parse(defaultYAML)
}

// Parse decodes and validates a YAML definition. Missing texts fall back to
// English defaults.
func Parse(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	for i := range d.Questions {
		d.Questions[i].Index = i
	}
	d.Texts.fillDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (t *Texts) fillDefaults() {
	set := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	set(&t.ChooseRegion, fallbackTexts.ChooseRegion)
	set(&t.ChooseSubregion, fallbackTexts.ChooseSubregion)
	set(&t.RegionSaved, fallbackTexts.RegionSaved)
	set(&t.OpenTextHint, fallbackTexts.OpenTextHint)
	set(&t.YourAnswer, fallbackTexts.YourAnswer)
	set(&t.Back, fallbackTexts.Back)
	set(&t.Saved, fallbackTexts.Saved)
	set(&t.AlreadyCompleted, fallbackTexts.AlreadyCompleted)
	set(&t.Completed, fallbackTexts.Completed)
	set(&t.SelectRegionFirst, fallbackTexts.SelectRegionFirst)
	set(&t.SaveFailed, fallbackTexts.SaveFailed)
	set(&t.InvalidAction, fallbackTexts.InvalidAction)
	set(&t.NoRegion, fallbackTexts.NoRegion)
	set(&t.CurrentRegion, fallbackTexts.CurrentRegion)
	set(&t.UnknownCommand, fallbackTexts.UnknownCommand)
}

// Validate checks that the definition has at least one question and one
// region, and that names are non-empty and unique where they are looked up.
func (d *Definition) Validate() error {
	if len(d.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidDefinition)
	}
	if len(d.Regions) == 0 {
		return fmt.Errorf("%w: no regions", ErrInvalidDefinition)
	}
	for i, q := range d.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrInvalidDefinition, i)
		}
		for j, o := range q.Options {
			if strings.TrimSpace(o) == "" {
				return fmt.Errorf("%w: question %d option %d is empty", ErrInvalidDefinition, i, j)
			}
		}
	}
	seen := make(map[string]bool, len(d.Regions))
	for i, r := range d.Regions {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%w: region %d has no name", ErrInvalidDefinition, i)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate region %q", ErrInvalidDefinition, r.Name)
		}
		seen[r.Name] = true
		for j, s := range r.Subregions {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%w: region %q subregion %d is empty", ErrInvalidDefinition, r.Name, j)
			}
		}
	}
	return nil
}

// Len returns the number of questions.
func (d *Definition) Len() int {
	return len(d.Questions)
}

// Question returns the question at index i.
func (d *Definition) Question(i int) (models.Question, bool) {
	if i < 0 || i >= len(d.Questions) {
		return models.Question{}, false
	}
	return d.Questions[i], true
}

// Region returns the catalog region at index i.
func (d *Definition) Region(i int) (models.Region, bool) {
	if i < 0 || i >= len(d.Regions) {
		return models.Region{}, false
	}
	return d.Regions[i], true
}

// Subregion resolves a (region, subregion) index pair against the catalog.
func (d *Definition) Subregion(regionID, subID int) (models.Region, string, bool) {
	r, ok := d.Region(regionID)
	if !ok || subID < 0 || subID >= len(r.Subregions) {
		return models.Region{}, "", false
	}
	return r, r.Subregions[subID], true
}
