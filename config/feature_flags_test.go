package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFeatureFlagsDefaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureEnrollWaivers, nil))
	assert.True(t, ff.IsEnabled(FeatureGraduationReconciliation, nil))
	assert.False(t, ff.IsEnabled(FeatureEnrollStrictPolicy, nil))
	assert.False(t, ff.IsEnabled(FeatureExperimentalRosterLive, nil))
	assert.False(t, ff.IsEnabled("no.such.feature", nil))
}

func TestEnvOverrideBooleanAndPercent(t *testing.T) {
	t.Setenv("FEATURE_ENROLL_STRICT_POLICY", "true")
	t.Setenv("FEATURE_GRADING_REVIEW", "25")

	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureEnrollStrictPolicy, nil))

	review := ff.GetAllFeatures()[FeatureGradingReview]
	require.NotNil(t, review)
	assert.Equal(t, 25, review.RolloutPercent)
	assert.True(t, review.Enabled)
}

func TestStaffBypassesDisabledFeature(t *testing.T) {
	ff := LoadFeatureFlags()
	staff := &FeatureContext{StudentID: "stu-1", IsStaff: true}

	assert.True(t, ff.IsEnabled(FeatureEnrollStrictPolicy, staff))
}

func TestStudentOverrideWinsOverEverything(t *testing.T) {
	ff := LoadFeatureFlags()

	ff.SetStudentOverride("stu-7", FeatureEnrollWaivers, false)
	assert.False(t, ff.IsEnabled(FeatureEnrollWaivers, &FeatureContext{StudentID: "stu-7"}))

	ff.ClearStudentOverrides("stu-7")
	assert.True(t, ff.IsEnabled(FeatureEnrollWaivers, &FeatureContext{StudentID: "stu-7"}))
}

func TestRolloutBucketIsStable(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureGradingReview, 50))

	ctx := &FeatureContext{StudentID: "stu-42"}
	first := ff.IsEnabled(FeatureGradingReview, ctx)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureGradingReview, ctx))
	}
}

func TestSetRolloutPercentValidation(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureGradingReview, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent("no.such.feature", 10), ErrFeatureNotFound)

	require.NoError(t, ff.DisableFeature(FeatureGradingReview))
	assert.False(t, ff.IsEnabled(FeatureGradingReview, nil))

	require.NoError(t, ff.EnableFeature(FeatureGradingReview))
	assert.True(t, ff.IsEnabled(FeatureGradingReview, nil))
}

func TestBranchTargeting(t *testing.T) {
	ff := LoadFeatureFlags()

	features := ff.features
	features[FeatureGradingReview].TargetBranches = []string{"centro"}
	features[FeatureGradingReview].RolloutPercent = 100
	features[FeatureGradingReview].Enabled = true

	assert.True(t, ff.IsEnabled(FeatureGradingReview, &FeatureContext{Branch: "centro"}))
	assert.False(t, ff.IsEnabled(FeatureGradingReview, &FeatureContext{Branch: "norte"}))
	// No branch in context means no targeting restriction.
	assert.True(t, ff.IsEnabled(FeatureGradingReview, &FeatureContext{}))
}
