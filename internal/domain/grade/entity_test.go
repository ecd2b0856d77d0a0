package grade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

const (
	testExamID    = shared.ExamID("11111111-1111-1111-1111-111111111111")
	testStudentID = shared.StudentID("22222222-2222-2222-2222-222222222222")
)

func TestWeightedScore(t *testing.T) {
	scores := []CategoryScore{
		{Category: "tecnica", Score: 80, Weight: 40},
		{Category: "combate", Score: 90, Weight: 30},
		{Category: "teoria", Score: 78, Weight: 30},
	}

	final, err := WeightedScore(scores)
	require.NoError(t, err)
	assert.Equal(t, shared.Score(82.4), final)
}

func TestWeightedScore_FourCategories(t *testing.T) {
	scores := []CategoryScore{
		{Category: "tecnica", Score: 80, Weight: 40},
		{Category: "poomsae", Score: 90, Weight: 30},
		{Category: "combate", Score: 70, Weight: 20},
		{Category: "actitud", Score: 100, Weight: 10},
	}

	final, err := WeightedScore(scores)
	require.NoError(t, err)

	// 80*0.4 + 90*0.3 + 70*0.2 + 100*0.1 = 32 + 27 + 14 + 10
	assert.Equal(t, shared.Score(83), final)
}

func TestWeightedScore_RoundsToTwoDecimals(t *testing.T) {
	scores := []CategoryScore{
		{Category: "tecnica", Score: 85.55, Weight: 33},
		{Category: "combate", Score: 71.33, Weight: 33},
		{Category: "teoria", Score: 90.1, Weight: 34},
	}

	final, err := WeightedScore(scores)
	require.NoError(t, err)

	// 85.55*33 + 71.33*33 + 90.1*34 = 8240.44 → 82.4044 → 82.40
	assert.Equal(t, shared.Score(82.4), final)
}

func TestWeightedScore_NormalizesDriftedWeights(t *testing.T) {
	// Weights sum to 80: historical records where a category was dropped.
	// The sum becomes the divisor instead of 100.
	scores := []CategoryScore{
		{Category: "tecnica", Score: 80, Weight: 40},
		{Category: "combate", Score: 90, Weight: 40},
	}

	final, err := WeightedScore(scores)
	require.NoError(t, err)
	assert.Equal(t, shared.Score(85), final)
}

func TestWeightedScore_WeightSumWithinTolerance(t *testing.T) {
	// 99.995 is within the ±0.01 tolerance of 100, so the divisor stays 100.
	scores := []CategoryScore{
		{Category: "tecnica", Score: 100, Weight: 49.995},
		{Category: "combate", Score: 100, Weight: 50},
	}

	final, err := WeightedScore(scores)
	require.NoError(t, err)
	assert.InDelta(t, 100, final.Float64(), 0.011)
}

func TestWeightedScore_EmptyScores(t *testing.T) {
	_, err := WeightedScore(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestWeightedScore_ZeroWeightSum(t *testing.T) {
	scores := []CategoryScore{
		{Category: "tecnica", Score: 80, Weight: 0},
		{Category: "combate", Score: 90, Weight: 0},
	}

	_, err := WeightedScore(scores)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCategoryWeight)
}

func TestWeightedScore_InvalidCategoryScore(t *testing.T) {
	tests := []struct {
		name   string
		scores []CategoryScore
	}{
		{
			name:   "score above 100",
			scores: []CategoryScore{{Category: "tecnica", Score: 101, Weight: 100}},
		},
		{
			name:   "negative score",
			scores: []CategoryScore{{Category: "tecnica", Score: -1, Weight: 100}},
		},
		{
			name:   "weight above 100",
			scores: []CategoryScore{{Category: "tecnica", Score: 50, Weight: 101}},
		},
		{
			name:   "empty category name",
			scores: []CategoryScore{{Category: "  ", Score: 50, Weight: 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WeightedScore(tt.scores)
			assert.Error(t, err)
		})
	}
}

func TestNewGrade(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)

	assert.Equal(t, "grade-1", g.ID)
	assert.Equal(t, StateDraft, g.State)
	assert.Equal(t, ResultPending, g.Result)
	assert.True(t, g.FinalizedAt.IsZero())
	assert.False(t, g.Passed())
}

func TestNewGrade_Validation(t *testing.T) {
	_, err := NewGrade("", testExamID, testStudentID)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = NewGrade("grade-1", "not-a-uuid", testStudentID)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = NewGrade("grade-1", testExamID, "not-a-uuid")
	assert.ErrorIs(t, err, shared.ErrInvalidStudentID)
}

func TestGrade_Finalize_Pass(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)

	scores := []CategoryScore{
		{Category: "tecnica", Score: 90, Weight: 60},
		{Category: "combate", Score: 70, Weight: 40},
	}

	require.NoError(t, g.Finalize(scores, 70))

	assert.Equal(t, StateFinalized, g.State)
	assert.Equal(t, ResultPass, g.Result)
	assert.Equal(t, shared.Score(82), g.FinalScore)
	assert.False(t, g.FinalizedAt.IsZero())
	assert.True(t, g.Passed())
}

func TestGrade_Finalize_FailBelowThreshold(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)

	scores := []CategoryScore{
		{Category: "tecnica", Score: 60, Weight: 100},
	}

	require.NoError(t, g.Finalize(scores, 70))

	assert.Equal(t, ResultFail, g.Result)
	assert.False(t, g.Passed())
}

func TestGrade_Finalize_ExactThresholdPasses(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)

	scores := []CategoryScore{
		{Category: "tecnica", Score: 70, Weight: 100},
	}

	require.NoError(t, g.Finalize(scores, 70))
	assert.Equal(t, ResultPass, g.Result)
}

func TestGrade_Refinalize_Recomputes(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)

	require.NoError(t, g.Finalize([]CategoryScore{
		{Category: "tecnica", Score: 60, Weight: 100},
	}, 70))
	assert.Equal(t, ResultFail, g.Result)

	firstFinalizedAt := g.FinalizedAt
	time.Sleep(time.Millisecond)

	require.NoError(t, g.Finalize([]CategoryScore{
		{Category: "tecnica", Score: 85, Weight: 100},
	}, 70))

	assert.Equal(t, ResultPass, g.Result)
	assert.Equal(t, shared.Score(85), g.FinalScore)
	// FinalizedAt is set on the first finalize only.
	assert.Equal(t, firstFinalizedAt, g.FinalizedAt)
}

func TestGrade_Finalize_ReviewedIsImmutable(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)

	require.NoError(t, g.Finalize([]CategoryScore{
		{Category: "tecnica", Score: 80, Weight: 100},
	}, 70))
	require.NoError(t, g.Review("staff:sabonim"))

	err = g.Finalize([]CategoryScore{
		{Category: "tecnica", Score: 95, Weight: 100},
	}, 70)
	assert.ErrorIs(t, err, shared.ErrGradeReviewed)
	assert.Equal(t, shared.Score(80), g.FinalScore)
}

func TestGrade_Review_RequiresFinalized(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)

	err = g.Review("staff:sabonim")
	assert.ErrorIs(t, err, shared.ErrGradeNotFinalized)
}

func TestGrade_Review_RequiresReviewer(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)

	require.NoError(t, g.Finalize([]CategoryScore{
		{Category: "tecnica", Score: 80, Weight: 100},
	}, 70))

	err = g.Review("  ")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestGrade_Review(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)

	require.NoError(t, g.Finalize([]CategoryScore{
		{Category: "tecnica", Score: 80, Weight: 100},
	}, 70))
	require.NoError(t, g.Review("staff:sabonim"))

	assert.Equal(t, StateReviewed, g.State)
	assert.Equal(t, shared.StaffID("staff:sabonim"), g.ReviewedBy)
	assert.True(t, g.Passed())
}

func TestGrade_Clone(t *testing.T) {
	g, err := NewGrade("grade-1", testExamID, testStudentID)
	require.NoError(t, err)
	require.NoError(t, g.Finalize([]CategoryScore{
		{Category: "tecnica", Score: 80, Weight: 100},
	}, 70))

	clone := g.Clone()
	clone.Scores[0].Score = 10
	clone.FinalScore = 10

	assert.Equal(t, shared.Score(80), g.Scores[0].Score)
	assert.Equal(t, shared.Score(80), g.FinalScore)
}
