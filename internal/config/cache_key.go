package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuestionsKey returns the cache key for a test's upstream questions
func (r *CacheKeyStruct) QuestionsKey(token string) string {
	return fmt.Sprintf("test:%s:questions", token)
}

// SessionKey returns the cache key for a quiz session's metadata hash
func (r *CacheKeyStruct) SessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// SessionAnswersKey returns the cache key for a quiz session's answers
func (r *CacheKeyStruct) SessionAnswersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:answers", sessionID)
}

// CheatCountKey returns the cache key for per-student cheat counts of a test
func (r *CacheKeyStruct) CheatCountKey(token string) string {
	return fmt.Sprintf("test:%s:cheat_counts", token)
}

// ProctorChannel returns the Redis PubSub channel name for a test's proctor feed
func (r *CacheKeyStruct) ProctorChannel(token string) string {
	return fmt.Sprintf("test:%s:monitor", token)
}

var CacheKey = NewCacheKeyStruct()
