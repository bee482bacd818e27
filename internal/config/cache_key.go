package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LearnerSessionKey returns the cache key holding the JTI of a learner's
// active login.
func (r *CacheKeyStruct) LearnerSessionKey(learnerID int) string {
	return fmt.Sprintf("login:%d", learnerID)
}

// SectionStartKey returns the cache key for the unix start time of a section.
func (r *CacheKeyStruct) SectionStartKey(attemptID, sectionID uuid.UUID) string {
	return fmt.Sprintf("attempt:%s:section:%s:started_at", attemptID, sectionID)
}

// AttemptEventsChannel returns the Redis PubSub channel for an attempt's events.
func (r *CacheKeyStruct) AttemptEventsChannel(attemptID uuid.UUID) string {
	return fmt.Sprintf("attempt:%s:events", attemptID)
}

var CacheKey = NewCacheKeyStruct()
