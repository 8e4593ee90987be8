package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with per-student gradual rollout.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	studentOverrides map[string]map[string]bool // studentID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100).
	// Students are assigned based on a hash of their ID.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// === Notification Features ===
	FeatureNotifyRequestReceived   = "notify.request_received" // "X wants to be your friend"
	FeatureNotifyRequestAccepted   = "notify.request_accepted" // "X accepted your request"
	FeatureNotifyRequestRejected   = "notify.request_rejected" // "X declined your request"
	FeatureNotifyFriendshipRemoved = "notify.friendship_removed"

	// === Read Side ===
	FeatureRankingCache    = "ranking.cache"    // Serve the ranking from Redis
	FeatureEnrichNames     = "enrich.names"     // Resolve display names
	FeatureEnrichSchedules = "enrich.schedules" // Attach friends' schedules
)

// eventFeatures maps notification event types to the flag gating them.
var eventFeatures = map[string]string{
	"friend_request.received": FeatureNotifyRequestReceived,
	"friend_request.accepted": FeatureNotifyRequestAccepted,
	"friend_request.rejected": FeatureNotifyRequestRejected,
	"friendship.removed":      FeatureNotifyFriendshipRemoved,
}

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// NewFeatureFlags returns the default flag set without environment overrides.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		studentOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	on := func(name, description string) {
		ff.features[name] = &Feature{Name: name, Description: description, Enabled: true, RolloutPercent: 100}
	}
	off := func(name, description string) {
		ff.features[name] = &Feature{Name: name, Description: description}
	}

	on(FeatureNotifyRequestReceived, "Notify the receiver of a new friend request")
	on(FeatureNotifyRequestAccepted, "Notify the sender when a request is accepted")
	off(FeatureNotifyRequestRejected, "Notify the sender when a request is rejected")
	on(FeatureNotifyFriendshipRemoved, "Notify both students when a friendship is removed")

	on(FeatureRankingCache, "Cache the global ranking in Redis")
	on(FeatureEnrichNames, "Resolve display names through the users service")
	on(FeatureEnrichSchedules, "Attach the friend's current schedule to the friends overview")
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_RANKING_CACHE=false
// Example: FEATURE_NOTIFY_REQUEST_REJECTED=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "ranking.cache" -> "FEATURE_RANKING_CACHE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled globally.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	return ff.IsEnabledFor(featureName, "")
}

// IsEnabledFor checks if a feature is enabled for a student. An empty
// studentID only passes fully rolled out features.
func (ff *FeatureFlags) IsEnabledFor(featureName, studentID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check student overrides first
	if studentID != "" {
		if overrides, ok := ff.studentOverrides[studentID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 {
		if studentID == "" {
			return false
		}
		return isInRollout(studentID, featureName, feature.RolloutPercent)
	}
	return true
}

// AllowsEvent reports whether a notification of eventType may be delivered
// to recipient. Event types without a flag are always allowed.
func (ff *FeatureFlags) AllowsEvent(eventType, recipient string) bool {
	name, ok := eventFeatures[eventType]
	if !ok {
		return true
	}
	return ff.IsEnabledFor(name, recipient)
}

// isInRollout determines if a student is in the rollout percentage.
// Uses consistent hashing so students stay in their bucket.
func isInRollout(studentID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	return int(h.Sum32()%100) < percent
}

// SetStudentOverride forces a feature on or off for one student.
func (ff *FeatureFlags) SetStudentOverride(studentID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.studentOverrides[studentID] == nil {
		ff.studentOverrides[studentID] = make(map[string]bool)
	}
	ff.studentOverrides[studentID][featureName] = enabled
}

// SetRolloutPercent changes the rollout of a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return &FeatureFlagError{Feature: featureName, Message: "rollout percent must be 0-100"}
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return &FeatureFlagError{Feature: featureName, Message: "unknown feature"}
	}
	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature fully enables a feature.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// Names returns all feature names, sorted.
func (ff *FeatureFlags) Names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	names := make([]string, 0, len(ff.features))
	for name := range ff.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FeatureFlagError is returned by flag mutations.
type FeatureFlagError struct {
	Feature string
	Message string
}

func (e *FeatureFlagError) Error() string {
	return "feature " + e.Feature + ": " + e.Message
}
