package knowledge

import (
	"context"
	_ "embed"
	"os"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"techsupport.dev/assistant/internal/store"
)

//go:embed defaults.yaml
var defaultDataset []byte

// PatternRule binds a regular expression over the raw query to one question.
type PatternRule struct {
	Name       string `yaml:"name"`
	Expr       string `yaml:"expr"`
	QuestionID int64  `yaml:"question_id"`
}

// Dataset is a static, read-only knowledge base held in memory.
type Dataset struct {
	Categories []store.Category `yaml:"categories"`
	Questions  []store.Question `yaml:"questions"`
	Solutions  []store.Solution `yaml:"solutions"`
	Patterns   []PatternRule    `yaml:"patterns"`

	steps map[int64][]store.Solution
}

// DefaultDataset returns the embedded sample knowledge base.
func DefaultDataset() *Dataset {
	ds, err := ParseDataset(defaultDataset)
	if err != nil {
		// The embedded file is part of the binary; failing here is a build defect.
		panic(errors.Wrap(err, "embedded dataset is invalid"))
	}
	return ds
}

// LoadDataset reads a YAML dataset from path, or returns the embedded one
// when path is empty.
func LoadDataset(path string) (*Dataset, error) {
	if path == "" {
		return DefaultDataset(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dataset %s", path)
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %s", path)
	}
	log.WithField("path", path).Infof("loaded knowledge dataset with %d questions", len(ds.Questions))
	return ds, nil
}

func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal dataset")
	}
	if err := ds.index(); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (d *Dataset) index() error {
	d.steps = make(map[int64][]store.Solution)
	for _, sol := range d.Solutions {
		if sol.Step < 1 {
			return errors.Errorf("solution %d has non-positive step %d", sol.ID, sol.Step)
		}
		if sol.Type == "" {
			sol.Type = store.SolutionText
		}
		if !sol.Type.Valid() {
			return errors.Errorf("solution %d has unknown type %q", sol.ID, sol.Type)
		}
		d.steps[sol.QuestionID] = append(d.steps[sol.QuestionID], sol)
	}
	for qid := range d.steps {
		steps := d.steps[qid]
		sort.SliceStable(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })
	}
	return nil
}

// PatternRules returns the dataset's pattern rules. A dataset that leaves out
// the patterns key gets the embedded defaults; an explicit empty list turns
// the override layer off.
func (d *Dataset) PatternRules() []PatternRule {
	if d.Patterns != nil {
		return append([]PatternRule(nil), d.Patterns...)
	}
	log.Info("dataset has no patterns, using the built-in pattern rules")
	return DefaultDataset().Patterns
}

func (d *Dataset) ListCategories() []store.Category {
	return append([]store.Category(nil), d.Categories...)
}

func (d *Dataset) ListQuestions() []store.Question {
	return append([]store.Question(nil), d.Questions...)
}

// ListSolutions returns a question's steps sorted by step, or every solution
// when questionID is 0.
func (d *Dataset) ListSolutions(questionID int64) []store.Solution {
	if questionID == 0 {
		var all []store.Solution
		ids := make([]int64, 0, len(d.steps))
		for qid := range d.steps {
			ids = append(ids, qid)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, qid := range ids {
			all = append(all, d.steps[qid]...)
		}
		return all
	}
	return append([]store.Solution(nil), d.steps[questionID]...)
}

func (d *Dataset) GetSolutionStep(questionID int64, step int) *store.Solution {
	for _, sol := range d.steps[questionID] {
		if sol.Step == step {
			found := sol
			return &found
		}
	}
	return nil
}

// Seed copies the dataset into s, keeping its ids so pattern bindings stay
// valid. It does nothing when s already holds questions.
func (d *Dataset) Seed(ctx context.Context, s store.Store) (int, error) {
	existing, err := s.ListQuestions(ctx)
	if err != nil {
		return 0, errors.WithMessage(err, "could not check existing questions")
	}
	if len(existing) > 0 {
		log.Infof("store already holds %d questions, skipping seed", len(existing))
		return 0, nil
	}

	for _, c := range d.Categories {
		c := c
		if err := s.CreateCategory(ctx, &c); err != nil {
			return 0, errors.WithMessagef(err, "seeding category %q", c.Name)
		}
	}
	for _, q := range d.Questions {
		q := q
		if err := s.CreateQuestion(ctx, &q); err != nil {
			return 0, errors.WithMessagef(err, "seeding question %q", q.Title)
		}
	}
	count := 0
	for _, sol := range d.ListSolutions(0) {
		sol := sol
		if err := s.CreateSolution(ctx, &sol); err != nil {
			return count, errors.WithMessagef(err, "seeding step %d of question %d", sol.Step, sol.QuestionID)
		}
		count++
	}
	log.Infof("seeded %d categories, %d questions and %d solution steps", len(d.Categories), len(d.Questions), count)
	return len(d.Questions), nil
}
