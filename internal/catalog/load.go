package catalog

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coachline/coachline-backend/internal/logger"
)

//go:embed editions/*.yaml
var embeddedEditions embed.FS

type editionFile struct {
	Edition string        `yaml:"edition"`
	Days    []ScenarioDay `yaml:"days"`
}

// Load builds the catalog from every *.yaml file in dir. An empty dir loads
// the editions embedded in the binary, so the service boots without any
// content files on disk.
func Load(dir string, log *logger.Logger) (*Catalog, error) {
	c := &Catalog{
		editions: map[string]*edition{},
		log:      log.With("service", "Catalog"),
	}

	if dir == "" {
		entries, err := embeddedEditions.ReadDir("editions")
		if err != nil {
			return nil, fmt.Errorf("read embedded editions: %w", err)
		}
		for _, e := range entries {
			raw, err := embeddedEditions.ReadFile("editions/" + e.Name())
			if err != nil {
				return nil, fmt.Errorf("read embedded edition %s: %w", e.Name(), err)
			}
			if err := c.addEditionFile(e.Name(), raw); err != nil {
				return nil, err
			}
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read catalog dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("read edition file %s: %w", e.Name(), err)
			}
			if err := c.addEditionFile(e.Name(), raw); err != nil {
				return nil, err
			}
		}
	}

	if len(c.editions) == 0 {
		return nil, fmt.Errorf("catalog has no editions")
	}
	for name, ed := range c.editions {
		c.log.Info("Edition loaded", "edition", name, "days", len(ed.days), "max_day", ed.maxDay)
	}
	return c, nil
}

func (c *Catalog) addEditionFile(filename string, raw []byte) error {
	var ef editionFile
	if err := yaml.Unmarshal(raw, &ef); err != nil {
		return fmt.Errorf("parse edition file %s: %w", filename, err)
	}
	if ef.Edition == "" {
		return fmt.Errorf("edition file %s: missing edition name", filename)
	}
	if _, exists := c.editions[ef.Edition]; exists {
		return fmt.Errorf("edition %q defined twice", ef.Edition)
	}

	ed := &edition{name: ef.Edition, days: map[int]*ScenarioDay{}}
	for i := range ef.Days {
		d := ef.Days[i]
		if err := validateDay(&d); err != nil {
			return fmt.Errorf("edition %q day %d: %w", ef.Edition, d.Day, err)
		}
		if _, dup := ed.days[d.Day]; dup {
			return fmt.Errorf("edition %q: duplicate day %d", ef.Edition, d.Day)
		}
		ed.days[d.Day] = &d
		if d.Day > ed.maxDay {
			ed.maxDay = d.Day
		}
	}
	if len(ed.days) == 0 {
		return fmt.Errorf("edition %q has no days", ef.Edition)
	}
	c.editions[ef.Edition] = ed
	return nil
}

func validateDay(d *ScenarioDay) error {
	if d.Day < 0 {
		return fmt.Errorf("negative day number")
	}
	switch d.Kind {
	case KindTeaching:
		if d.TeachingContent == "" {
			return fmt.Errorf("teaching day without teaching_content")
		}
	case KindAssessment:
		if d.OpeningA == "" || d.OpeningB == "" {
			return fmt.Errorf("assessment day needs both opening variants")
		}
		if len(d.PassCriteria) == 0 {
			return fmt.Errorf("assessment day needs pass criteria")
		}
		if d.MinRounds <= 0 || d.MaxRounds < d.MinRounds {
			return fmt.Errorf("invalid round bounds min=%d max=%d", d.MinRounds, d.MaxRounds)
		}
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	return nil
}
