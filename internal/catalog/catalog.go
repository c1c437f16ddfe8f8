package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/coachline/coachline-backend/internal/logger"
)

// ErrDayNotFound is returned by Lookup when the requested day does not exist
// in the edition. For the training engine this is the completion signal, not
// a failure: there is no scenario past the catalog's last day.
var ErrDayNotFound = errors.New("scenario day not found")

// ErrEditionNotFound indicates a misconfigured edition name, which unlike a
// missing day is a real error.
var ErrEditionNotFound = errors.New("course edition not found")

const (
	KindTeaching   = "teaching"
	KindAssessment = "assessment"
)

// ScenarioDay is one day's training content. Immutable after load.
type ScenarioDay struct {
	Day             int      `yaml:"day"`
	Title           string   `yaml:"title"`
	Goal            string   `yaml:"goal"`
	Kind            string   `yaml:"kind"`
	TeachingContent string   `yaml:"teaching_content"`
	OpeningA        string   `yaml:"opening_a"`
	OpeningB        string   `yaml:"opening_b"`
	PassCriteria    []string `yaml:"pass_criteria"`
	MinRounds       int      `yaml:"min_rounds"`
	MaxRounds       int      `yaml:"max_rounds"`
}

// Opening returns the opening line for the given persona variant, falling
// back to variant A when the persona is unknown or its opening is empty.
func (d *ScenarioDay) Opening(persona string) string {
	if persona == "B" && d.OpeningB != "" {
		return d.OpeningB
	}
	return d.OpeningA
}

type edition struct {
	name   string
	days   map[int]*ScenarioDay
	maxDay int
}

// Catalog is the read-only lookup of per-day training content, keyed by
// (edition, day).
type Catalog struct {
	editions map[string]*edition
	log      *logger.Logger
}

func (c *Catalog) Lookup(editionName string, day int) (*ScenarioDay, error) {
	ed, ok := c.editions[editionName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEditionNotFound, editionName)
	}
	d, ok := ed.days[day]
	if !ok {
		return nil, fmt.Errorf("%w: edition %q day %d", ErrDayNotFound, editionName, day)
	}
	return d, nil
}

func (c *Catalog) MaxDay(editionName string) (int, error) {
	ed, ok := c.editions[editionName]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrEditionNotFound, editionName)
	}
	return ed.maxDay, nil
}

func (c *Catalog) HasDay(editionName string, day int) bool {
	_, err := c.Lookup(editionName, day)
	return err == nil
}

// Days returns the edition's days ordered by day number.
func (c *Catalog) Days(editionName string) ([]*ScenarioDay, error) {
	ed, ok := c.editions[editionName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEditionNotFound, editionName)
	}
	out := make([]*ScenarioDay, 0, len(ed.days))
	for _, d := range ed.days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (c *Catalog) Editions() []string {
	names := make([]string, 0, len(c.editions))
	for name := range c.editions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
