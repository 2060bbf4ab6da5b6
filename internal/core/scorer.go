package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"missionhub/pkg/models"
)

// ActivityPassPercentage is the fixed per-activity pass bar
const ActivityPassPercentage = 70

// Scorer grades one activity response. Implementations must be pure.
type Scorer interface {
	Score(def models.ActivityDefinition, response json.RawMessage) (models.ActivityScore, error)
}

type activityScorer struct{}

// NewScorer returns the scorer for the closed set of activity kinds
func NewScorer() Scorer {
	return activityScorer{}
}

// choice quiz

type choiceQuestion struct {
	Prompt       string   `json:"prompt,omitempty"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correct_index"`
}

type choiceContent struct {
	Questions []choiceQuestion `json:"questions"`
	// single-question shorthand
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correct_index"`
}

type choiceResponse struct {
	Selected      []*int `json:"selected"`
	SelectedIndex *int   `json:"selected_index"`
}

// fill in the blank

type blank struct {
	Answer       string   `json:"answer"`
	Alternatives []string `json:"alternatives,omitempty"`
}

type blankContent struct {
	Blanks []blank `json:"blanks"`
}

type blankResponse struct {
	Answers []*string `json:"answers"`
}

// matching pairs

type pair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type matchingContent struct {
	Pairs []pair `json:"pairs"`
}

type matchingResponse struct {
	Matches map[string]string `json:"matches"`
}

// Score computes correct/total for the activity kind and applies the
// common pass rule
func (activityScorer) Score(def models.ActivityDefinition, response json.RawMessage) (models.ActivityScore, error) {
	var correct, total int
	var err error

	switch def.Kind {
	case models.ActivityChoiceQuiz:
		correct, total, err = scoreChoice(def.Content, response)
	case models.ActivityFillInBlank:
		correct, total, err = scoreBlanks(def.Content, response)
	case models.ActivityMatchingPairs:
		correct, total, err = scoreMatching(def.Content, response)
	default:
		return models.ActivityScore{}, fmt.Errorf("activity %s: unknown kind %q: %w", def.ID, def.Kind, models.ErrInvalidInput)
	}
	if err != nil {
		return models.ActivityScore{}, fmt.Errorf("activity %s: %w", def.ID, err)
	}
	return grade(def.PointValue, correct, total), nil
}

// grade keeps the threshold in integer arithmetic so exactly 70% passes
func grade(pointValue, correct, total int) models.ActivityScore {
	s := models.ActivityScore{Correct: correct, Total: total}
	if total <= 0 {
		return s
	}
	s.ScorePercentage = float64(correct) * 100 / float64(total)
	s.IsCorrect = correct*100 >= ActivityPassPercentage*total
	if s.IsCorrect {
		s.PointsEarned = pointValue * correct / total
	}
	return s
}

func decodeStrict(raw json.RawMessage, v interface{}, what string) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("empty %s: %w", what, models.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed %s: %v: %w", what, err, models.ErrInvalidInput)
	}
	return nil
}

func scoreChoice(content, response json.RawMessage) (int, int, error) {
	var c choiceContent
	if err := decodeStrict(content, &c, "choice quiz content"); err != nil {
		return 0, 0, err
	}
	questions := c.Questions
	if len(questions) == 0 && c.CorrectIndex != nil {
		questions = []choiceQuestion{{Options: c.Options, CorrectIndex: c.CorrectIndex}}
	}
	if len(questions) == 0 {
		return 0, 0, fmt.Errorf("choice quiz has no questions: %w", models.ErrInvalidInput)
	}
	for i, q := range questions {
		if q.CorrectIndex == nil || *q.CorrectIndex < 0 {
			return 0, 0, fmt.Errorf("question %d has no answer key: %w", i, models.ErrInvalidInput)
		}
	}

	var r choiceResponse
	if err := decodeStrict(response, &r, "choice quiz response"); err != nil {
		return 0, 0, err
	}
	selected := r.Selected
	if len(selected) == 0 && r.SelectedIndex != nil {
		selected = []*int{r.SelectedIndex}
	}
	if len(selected) > len(questions) {
		return 0, 0, fmt.Errorf("%d answers for %d questions: %w", len(selected), len(questions), models.ErrInvalidInput)
	}

	correct := 0
	for i, q := range questions {
		if i < len(selected) && selected[i] != nil && *selected[i] == *q.CorrectIndex {
			correct++
		}
	}
	return correct, len(questions), nil
}

// normalizeAnswer trims, collapses inner whitespace and case-folds
func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func answerMatches(given string, b blank) bool {
	g := normalizeAnswer(given)
	if g == "" {
		return false
	}
	if strings.EqualFold(g, normalizeAnswer(b.Answer)) {
		return true
	}
	for _, alt := range b.Alternatives {
		if strings.EqualFold(g, normalizeAnswer(alt)) {
			return true
		}
	}
	return false
}

func scoreBlanks(content, response json.RawMessage) (int, int, error) {
	var c blankContent
	if err := decodeStrict(content, &c, "fill-in-blank content"); err != nil {
		return 0, 0, err
	}
	if len(c.Blanks) == 0 {
		return 0, 0, fmt.Errorf("fill-in-blank has no blanks: %w", models.ErrInvalidInput)
	}

	var r blankResponse
	if err := decodeStrict(response, &r, "fill-in-blank response"); err != nil {
		return 0, 0, err
	}
	if len(r.Answers) > len(c.Blanks) {
		return 0, 0, fmt.Errorf("%d answers for %d blanks: %w", len(r.Answers), len(c.Blanks), models.ErrInvalidInput)
	}

	correct := 0
	for i, b := range c.Blanks {
		if i < len(r.Answers) && r.Answers[i] != nil && answerMatches(*r.Answers[i], b) {
			correct++
		}
	}
	return correct, len(c.Blanks), nil
}

func scoreMatching(content, response json.RawMessage) (int, int, error) {
	var c matchingContent
	if err := decodeStrict(content, &c, "matching content"); err != nil {
		return 0, 0, err
	}
	if len(c.Pairs) == 0 {
		return 0, 0, fmt.Errorf("matching activity has no pairs: %w", models.ErrInvalidInput)
	}

	var r matchingResponse
	if err := decodeStrict(response, &r, "matching response"); err != nil {
		return 0, 0, err
	}

	correct := 0
	for _, p := range c.Pairs {
		if got, ok := r.Matches[p.Left]; ok && strings.TrimSpace(got) == strings.TrimSpace(p.Right) {
			correct++
		}
	}
	return correct, len(c.Pairs), nil
}
