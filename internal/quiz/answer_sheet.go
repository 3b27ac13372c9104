package quiz

import (
	"errors"
	"sort"
	"sync"

	"github.com/stemsi/exstem-quiz/internal/model"
)

var (
	ErrUnknownQuestion = errors.New("question does not belong to this test")
	ErrUnknownAnswer   = errors.New("answer does not belong to this question")
)

// AnswerSheet is the mutable answer state of one quiz session. It is shared
// between the answer-recording path and the cheat monitor, which reads it
// at delivery time.
type AnswerSheet struct {
	token string
	name  string

	mu      sync.RWMutex
	order   []int
	options map[int]map[int]bool
	chosen  map[int]int
}

// NewAnswerSheet builds an empty sheet for the given questions, ordered by
// their display order.
func NewAnswerSheet(token, studentName string, questions []model.Question) *AnswerSheet {
	sorted := append([]model.Question(nil), questions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	s := &AnswerSheet{
		token:   token,
		name:    studentName,
		order:   make([]int, 0, len(sorted)),
		options: make(map[int]map[int]bool, len(sorted)),
		chosen:  make(map[int]int),
	}
	for _, q := range sorted {
		if _, dup := s.options[q.ID]; dup {
			continue
		}
		s.order = append(s.order, q.ID)
		opts := make(map[int]bool, len(q.Answers))
		for _, a := range q.Answers {
			opts[a.ID] = true
		}
		s.options[q.ID] = opts
	}
	return s
}

func (s *AnswerSheet) Token() string { return s.token }

func (s *AnswerSheet) StudentName() string { return s.name }

// Answer records answerID for questionID, replacing any earlier choice.
func (s *AnswerSheet) Answer(questionID, answerID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts, ok := s.options[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if !opts[answerID] {
		return ErrUnknownAnswer
	}
	s.chosen[questionID] = answerID
	return nil
}

// Restore reloads previously persisted choices, skipping any that no longer
// match the question set.
func (s *AnswerSheet) Restore(chosen map[int]int) int {
	restored := 0
	for qid, aid := range chosen {
		if s.Answer(qid, aid) == nil {
			restored++
		}
	}
	return restored
}

// AnswerIDs returns the chosen answer ids in question order.
func (s *AnswerSheet) AnswerIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.chosen))
	for _, qid := range s.order {
		if aid, ok := s.chosen[qid]; ok {
			ids = append(ids, aid)
		}
	}
	return ids
}

// UnansweredQuestionIDs returns the ids of questions without a choice, in
// question order.
func (s *AnswerSheet) UnansweredQuestionIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.order)-len(s.chosen))
	for _, qid := range s.order {
		if _, ok := s.chosen[qid]; !ok {
			ids = append(ids, qid)
		}
	}
	return ids
}

// Submission builds the upstream submit body from the current state.
func (s *AnswerSheet) Submission() model.SubmitPayload {
	return model.SubmitPayload{
		Token:                 s.token,
		StudentName:           s.StudentName(),
		AnswerIDs:             s.AnswerIDs(),
		UnansweredQuestionIDs: s.UnansweredQuestionIDs(),
	}
}
