package quiz

import (
	"sync"
	"testing"

	"github.com/stemsi/exstem-quiz/internal/cheat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ cheat.State = (*AnswerSheet)(nil)

func TestAnswerSheetOrdering(t *testing.T) {
	s := NewAnswerSheet("T-1", "Ali", sampleQuestions())

	assert.Equal(t, []int{}, s.AnswerIDs())
	assert.Equal(t, []int{1, 2, 3}, s.UnansweredQuestionIDs())

	require.NoError(t, s.Answer(2, 21))
	require.NoError(t, s.Answer(1, 11))
	assert.Equal(t, []int{11, 21}, s.AnswerIDs())
	assert.Equal(t, []int{3}, s.UnansweredQuestionIDs())

	require.NoError(t, s.Answer(1, 10))
	assert.Equal(t, []int{10, 21}, s.AnswerIDs())
}

func TestAnswerSheetRejectsForeignIDs(t *testing.T) {
	s := NewAnswerSheet("T-1", "Ali", sampleQuestions())

	assert.ErrorIs(t, s.Answer(99, 10), ErrUnknownQuestion)
	assert.ErrorIs(t, s.Answer(1, 20), ErrUnknownAnswer)
	assert.Empty(t, s.AnswerIDs())
}

func TestAnswerSheetRestore(t *testing.T) {
	s := NewAnswerSheet("T-1", "Ali", sampleQuestions())

	n := s.Restore(map[int]int{1: 10, 3: 30, 4: 40, 2: 99})
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{10, 30}, s.AnswerIDs())
}

func TestAnswerSheetSubmission(t *testing.T) {
	s := NewAnswerSheet("T-1", "Ali", sampleQuestions())
	require.NoError(t, s.Answer(3, 30))

	sub := s.Submission()
	assert.Equal(t, "T-1", sub.Token)
	assert.Equal(t, "Ali", sub.StudentName)
	assert.Equal(t, []int{30}, sub.AnswerIDs)
	assert.Equal(t, []int{1, 2}, sub.UnansweredQuestionIDs)
}

func TestAnswerSheetConcurrentAccess(t *testing.T) {
	s := NewAnswerSheet("T-1", "Ali", sampleQuestions())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.Answer(1, 10+i%2)
		}(i)
		go func() {
			defer wg.Done()
			assert.LessOrEqual(t, len(s.AnswerIDs()), 1)
			assert.GreaterOrEqual(t, len(s.UnansweredQuestionIDs()), 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, []int{2, 3}, s.UnansweredQuestionIDs())
}
