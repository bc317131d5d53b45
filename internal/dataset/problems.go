package dataset

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/23skdu/longbow-lens/internal/analysis"
)

// Problem is one causal word problem phrased two ways.
type Problem struct {
	ID       int    `yaml:"id"`
	Symbolic string `yaml:"symbolic"`
	Verbal   string `yaml:"verbal"`
}

// Text returns the phrasing for t, or "" for an unrecognized tag.
func (p Problem) Text(t analysis.InputType) string {
	switch t {
	case analysis.Symbolic:
		return p.Symbolic
	case analysis.Verbal:
		return p.Verbal
	default:
		return ""
	}
}

const alarmSymbolic = `DAG:
H → W → A
H ----→ A
Where:
H=1: husband sets alarm
H=0: husband doesn't set alarm
W=1: wife sets alarm
W=0: wife doesn't set alarm
A=1: alarm rings
A=0: alarm doesn't ring
Probability distribution:
P(A=1|H=0,W=0) = 0.08
P(A=1|H=0,W=1) = 0.54
P(A=1|H=1,W=0) = 0.41
P(A=1|H=1,W=1) = 0.86
P(W=1|H=0) = 0.74
P(W=1|H=1) = 0.24
Question: Is the direct effect H → A positive, disregarding the mediated effect through W?`

const alarmVerbal = "Imagine a self-contained, hypothetical world with only the following conditions, " +
	"and without any unmentioned factors or causal relationships: Husband has a direct effect on wife and alarm clock. " +
	"Wife has a direct effect on alarm clock. " +
	"For husbands that don't set the alarm and wives that don't set the alarm, the probability of ringing alarm is 8%. " +
	"For husbands that don't set the alarm and wives that set the alarm, the probability of ringing alarm is 54%. " +
	"For husbands that set the alarm and wives that don't set the alarm, the probability of ringing alarm is 41%. " +
	"For husbands that set the alarm and wives that set the alarm, the probability of ringing alarm is 86%. " +
	"For husbands that don't set the alarm, the probability of alarm set by wife is 74%. " +
	"For husbands that set the alarm, the probability of alarm set by wife is 24%. " +
	"If we disregard the mediation effect through wife, would husband positively affect alarm clock?"

// Builtin returns the default problem set: the husband/wife/alarm mediation problem.
func Builtin() []Problem {
	return []Problem{
		{ID: 1, Symbolic: alarmSymbolic, Verbal: alarmVerbal},
	}
}

type problemFile struct {
	Problems []Problem `yaml:"problems"`
}

// Load reads a problem set from a YAML file with a top-level "problems" list.
func Load(path string) ([]Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f problemFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := Validate(f.Problems); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Problems, nil
}

// Validate checks that ids are unique and every problem has both phrasings.
func Validate(problems []Problem) error {
	if len(problems) == 0 {
		return errors.New("no problems defined")
	}
	seen := make(map[int]struct{}, len(problems))
	for _, p := range problems {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate problem id %d", p.ID)
		}
		seen[p.ID] = struct{}{}
		for _, t := range analysis.InputTypes {
			if strings.TrimSpace(p.Text(t)) == "" {
				return fmt.Errorf("problem %d has empty %s text", p.ID, t)
			}
		}
	}
	return nil
}
