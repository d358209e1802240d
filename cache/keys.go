package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// =============================================================================
// NAMESPACES
// =============================================================================

const (
	NSCourse    = "course"
	NSCourses   = "courses"
	NSEnrolled  = "enrolled"
	NSPurchases = "purchases"
	NSEarnings  = "earnings"
	NSLock      = "lock"

	// PlatformSubject is the earnings subject for platform-wide reports.
	PlatformSubject = "platform"

	// GenerationKey changes on every invalidation. Readers compare it
	// before and after computing to avoid storing values that went stale
	// while they were being built.
	GenerationKey = "cache:generation"
)

// Hash returns a short stable digest of the parts. Used for the variable
// tail of cache keys so keys never contain separator characters.
func Hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:8])
}

func CourseKey(courseID string) string {
	return NSCourse + ":" + courseID
}

func CoursesKey(view string, parts ...string) string {
	return NSCourses + ":" + view + ":" + Hash(parts...)
}

func EnrolledKey(payerID string, parts ...string) string {
	return NSEnrolled + ":" + payerID + ":" + Hash(parts...)
}

func PurchasesKey(payerID string, parts ...string) string {
	return NSPurchases + ":" + payerID + ":" + Hash(parts...)
}

// EarningsKey builds an earnings report key. subject is an owner id or PlatformSubject.
func EarningsKey(subject string, parts ...string) string {
	return NSEarnings + ":" + subject + ":" + Hash(parts...)
}

// EnrollLockKey is the lock guarding enrollment of payer in course.
func EnrollLockKey(payerID, courseID string) string {
	return NSLock + ":enroll:" + payerID + ":" + courseID
}

// EnrollmentPatterns lists every key and pattern made stale when payer
// enrolls in a course owned by owner.
func EnrollmentPatterns(courseID, payerID, ownerID string) []string {
	patterns := []string{
		CourseKey(courseID),
		NSCourses + ":*",
		NSPurchases + ":" + payerID + ":*",
		NSEnrolled + ":" + payerID + ":*",
		NSEarnings + ":" + PlatformSubject + ":*",
	}
	if ownerID != "" {
		patterns = append(patterns, NSEarnings+":"+ownerID+":*")
	}
	return patterns
}

// IsPattern reports whether s contains glob metacharacters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
