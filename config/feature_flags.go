package config

import (
	"errors"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles for gradual rollout across dojang
// branches. Supports per-branch targeting, time-based activation and
// per-student overrides for debugging.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// studentID -> feature -> enabled, checked before everything else
	studentOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent buckets students 0-100 by a hash of their ID.
	RolloutPercent int

	// TargetBranches limits the flag to named branches ("centro", "norte").
	// Empty means all branches.
	TargetBranches []string

	// Optional activation window.
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	StudentID string // Student identifier
	Branch    string // Dojang branch (e.g., "centro")
	IsStaff   bool   // Is instructor or admin
}

// Predefined feature flag names.
const (
	// === Enrollment Features ===
	FeatureEnrollStrictPolicy     = "enroll.strict_policy"     // Block ineligible enrollments
	FeatureEnrollEligibilityCache = "enroll.eligibility_cache" // Cache eligibility snapshots
	FeatureEnrollWaivers          = "enroll.waivers"           // Fee waivers at the front desk

	// === Grading Features ===
	FeatureGradingNormalization = "grading.normalization" // Auto-normalize category weights
	FeatureGradingRefinalize    = "grading.refinalize"    // Allow re-finalizing a grade
	FeatureGradingReview        = "grading.review"        // Second-instructor grade review

	// === Graduation Features ===
	FeatureGraduationAutoApprove    = "graduation.auto_approve"   // Approve passing candidates in batch
	FeatureGraduationReconciliation = "graduation.reconciliation" // Background cascade reconciliation
	FeatureGraduationCertificates   = "graduation.certificates"   // Certificate issuing

	// === Experimental Features ===
	FeatureExperimentalRosterLive = "experimental.roster_live" // Live roster updates over pub/sub
)

// defaultFeatures is the shipped configuration. Environment variables may
// override each entry at startup.
func defaultFeatures() []Feature {
	return []Feature{
		{
			Name:        FeatureEnrollStrictPolicy,
			Description: "Reject enrollment of ineligible students",
			// Advisory by default, front desk decides
			Enabled: false,
		},
		{
			Name:           FeatureEnrollEligibilityCache,
			Description:    "Serve eligibility checks from Redis",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureEnrollWaivers,
			Description:    "Allow fee waivers with a reason",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureGradingNormalization,
			Description:    "Normalize category weights that drift from 1.0",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureGradingRefinalize,
			Description:    "Allow correcting an already finalized grade",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureGradingReview,
			Description:    "Second instructor reviews finalized grades",
			Enabled:        true,
			RolloutPercent: 50, // gradual rollout
		},
		{
			Name:           FeatureGraduationAutoApprove,
			Description:    "Auto-approve passing candidates during batch processing",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureGraduationReconciliation,
			Description:    "Re-drive pending belt cascades in the background",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureGraduationCertificates,
			Description:    "Issue numbered certificates on certification",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:        FeatureExperimentalRosterLive,
			Description: "Push roster changes over Redis pub/sub",
			Enabled:     false,
		},
	}
}

// LoadFeatureFlags builds the flag set from defaults plus environment
// overrides of the form FEATURE_<NAME>=true|false|<percent>.
// Example: FEATURE_ENROLL_STRICT_POLICY=true
// Example: FEATURE_GRADING_REVIEW=50 (50% rollout)
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		studentOverrides: make(map[string]map[string]bool),
	}

	for _, f := range defaultFeatures() {
		feature := f
		applyEnvOverride(&feature)
		ff.features[feature.Name] = &feature
	}

	return ff
}

// applyEnvOverride mutates the feature if its FEATURE_* variable is set.
// Booleans flip the flag entirely; an integer 0-100 sets the rollout.
func applyEnvOverride(f *Feature) {
	val := os.Getenv(featureNameToEnvKey(f.Name))
	if val == "" {
		return
	}

	if b, err := strconv.ParseBool(val); err == nil {
		f.Enabled = b
		f.RolloutPercent = 0
		if b {
			f.RolloutPercent = 100
		}
		return
	}

	if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
		f.Enabled = p > 0
		f.RolloutPercent = p
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "enroll.strict_policy" -> "FEATURE_ENROLL_STRICT_POLICY"
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ReplaceAll(strings.ToUpper(name), ".", "_")
}

// IsEnabled checks if a feature is enabled for the given context.
// Evaluation order: student override, staff bypass, enabled bit, activation
// window, branch targeting, rollout bucket.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.StudentID != "" {
		if enabled, ok := ff.studentOverrides[ctx.StudentID][featureName]; ok {
			return enabled
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if ctx != nil && ctx.IsStaff {
		return true
	}
	if !feature.Enabled || !feature.activeAt(time.Now()) {
		return false
	}
	if ctx != nil && !feature.targetsBranch(ctx.Branch) {
		return false
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.StudentID != "" {
		return inRolloutBucket(ctx.StudentID, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// activeAt reports whether t falls inside the activation window.
func (f *Feature) activeAt(t time.Time) bool {
	if f.EnabledFrom != nil && t.Before(*f.EnabledFrom) {
		return false
	}
	if f.EnabledUntil != nil && t.After(*f.EnabledUntil) {
		return false
	}
	return true
}

// targetsBranch reports whether the flag applies to the given branch.
func (f *Feature) targetsBranch(branch string) bool {
	if len(f.TargetBranches) == 0 || branch == "" {
		return true
	}
	for _, b := range f.TargetBranches {
		if b == branch {
			return true
		}
	}
	return false
}

// inRolloutBucket hashes (feature, student) into a stable 0-99 bucket so a
// student stays on the same side of the rollout between requests.
func inRolloutBucket(studentID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	return int(h.Sum32()%100) < percent
}

// SetStudentOverride sets a feature override for a specific student.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetStudentOverride(studentID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.studentOverrides[studentID] == nil {
		ff.studentOverrides[studentID] = make(map[string]bool)
	}
	ff.studentOverrides[studentID][featureName] = enabled
}

// ClearStudentOverrides removes all overrides for a student.
func (ff *FeatureFlags) ClearStudentOverrides(studentID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.studentOverrides, studentID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for name, f := range ff.features {
		cp := *f
		result[name] = &cp
	}
	return result
}

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)
