package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable reports that the underlying store could not be reached.
// Callers must treat it as fatal for the current turn; interview state is
// never mutated without the store.
var ErrUnavailable = errors.New("session store unavailable")

// ErrConversationBusy reports a lock wait-budget timeout.
var ErrConversationBusy = errors.New("conversation busy")

// InterviewState is the persisted progress of a resume-bound mock interview.
type InterviewState struct {
	SourceID              string   `json:"source_id"`
	Topic                 string   `json:"topic,omitempty"`
	AskedQuestionIDs      []string `json:"asked_question_ids,omitempty"`
	CurrentQuestionID     string   `json:"current_question_id,omitempty"`
	CurrentQuestion       string   `json:"current_question,omitempty"`
	CurrentStandardAnswer string   `json:"current_standard_answer,omitempty"`
	CurrentKeyPoints      []string `json:"current_key_points,omitempty"`
	CurrentContextID      string   `json:"current_context_id,omitempty"`
}

// RequestCacheEntry is the compact per-request result used for idempotent
// retries. Citations are stored as bare ids; used context is rehydrated from
// the evidence store on a cache hit.
type RequestCacheEntry struct {
	Answer      string   `json:"answer"`
	CitationIDs []string `json:"citation_ids"`
}

// Client is the slice of the go-redis API the store depends on. *redis.Client
// satisfies it; tests supply an in-memory fake.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

var _ Client = (*redis.Client)(nil)

// Atomic compare-and-delete: only the owner that wrote the lock value may
// release it. A plain GET+DEL would race with TTL expiry.
const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`

const (
	stateField   = "resume_interview_state"
	pollInterval = 50 * time.Millisecond
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9:_-]`)

// Options carries the lock tuning knobs.
type Options struct {
	LockTTL  time.Duration
	LockWait time.Duration
}

// Store keeps per-conversation interview state, the monotonic asked-question
// set, the per-request result cache and the conversation lock in four
// independent Redis slots.
type Store struct {
	client Client
	opts   Options
}

func NewStore(client Client, opts Options) *Store {
	if opts.LockTTL < time.Second {
		opts.LockTTL = 15 * time.Second
	}
	if opts.LockWait < 0 {
		opts.LockWait = 0
	}
	return &Store{client: client, opts: opts}
}

func sanitizeConversationID(conversationID string) string {
	cid := strings.TrimSpace(conversationID)
	return unsafeKeyChars.ReplaceAllString(cid, "_")
}

func stateKey(cid string) string   { return fmt.Sprintf("jc:{%s}:state", cid) }
func askedKey(cid string) string   { return fmt.Sprintf("jc:{%s}:asked", cid) }
func requestKey(cid string) string { return fmt.Sprintf("jc:{%s}:req", cid) }
func lockKey(cid string) string    { return fmt.Sprintf("jc:{%s}:lock", cid) }

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// GetInterviewState loads the conversation's interview state, merging the
// separately tracked asked-question set into the result.
func (s *Store) GetInterviewState(ctx context.Context, conversationID string) (InterviewState, error) {
	var state InterviewState
	cid := sanitizeConversationID(conversationID)
	if cid == "" {
		return state, nil
	}

	raw, err := s.client.HGet(ctx, stateKey(cid), stateField).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return state, unavailable("read state", err)
	}
	if raw != "" {
		// Corrupt payloads fall back to empty defaults rather than failing
		// the turn.
		_ = json.Unmarshal([]byte(raw), &state)
	}

	asked, err := s.client.SMembers(ctx, askedKey(cid)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return state, unavailable("read asked set", err)
	}
	if len(asked) > 0 {
		state.AskedQuestionIDs = asked
	}
	return state, nil
}

// SetInterviewState persists the state body and unions any new asked ids into
// the persistent set. The union (SADD, never an overwrite) keeps the asked
// set monotonic under concurrent writers.
func (s *Store) SetInterviewState(ctx context.Context, conversationID string, state InterviewState) error {
	cid := sanitizeConversationID(conversationID)
	if cid == "" {
		return nil
	}

	var asked []interface{}
	for _, id := range state.AskedQuestionIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			asked = append(asked, trimmed)
		}
	}

	body := state
	body.AskedQuestionIDs = nil
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal interview state: %w", err)
	}

	if err := s.client.HSet(ctx, stateKey(cid),
		stateField, string(payload),
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	).Err(); err != nil {
		return unavailable("write state", err)
	}
	if len(asked) > 0 {
		if err := s.client.SAdd(ctx, askedKey(cid), asked...).Err(); err != nil {
			return unavailable("write asked set", err)
		}
	}
	return nil
}

// GetRequestResult returns the cached compact result for a request id, or
// (nil, nil) when absent.
func (s *Store) GetRequestResult(ctx context.Context, conversationID, requestID string) (*RequestCacheEntry, error) {
	cid := sanitizeConversationID(conversationID)
	rid := strings.TrimSpace(requestID)
	if cid == "" || rid == "" {
		return nil, nil
	}

	raw, err := s.client.HGet(ctx, requestKey(cid), rid).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("read request result", err)
	}

	var entry RequestCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, nil
	}
	return &entry, nil
}

// SetRequestResult caches the compact result for a request id. Callers check
// existence before recomputing, so a write here is effectively write-once.
func (s *Store) SetRequestResult(ctx context.Context, conversationID, requestID string, entry RequestCacheEntry) error {
	cid := sanitizeConversationID(conversationID)
	rid := strings.TrimSpace(requestID)
	if cid == "" || rid == "" {
		return nil
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal request result: %w", err)
	}
	if err := s.client.HSet(ctx, requestKey(cid), rid, string(payload)).Err(); err != nil {
		return unavailable("write request result", err)
	}
	return nil
}

// AcquireLock attempts a SET NX PX in a 50ms polling loop until the wait
// budget elapses. Returns false on timeout.
func (s *Store) AcquireLock(ctx context.Context, conversationID, ownerToken string) (bool, error) {
	cid := sanitizeConversationID(conversationID)
	owner := strings.TrimSpace(ownerToken)
	if cid == "" || owner == "" {
		return false, nil
	}

	deadline := time.Now().Add(s.opts.LockWait)
	for {
		ok, err := s.client.SetNX(ctx, lockKey(cid), owner, s.opts.LockTTL).Result()
		if err != nil {
			return false, unavailable("acquire lock", err)
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// ReleaseLock deletes the lock only if it still holds ownerToken. A holder
// that outlived its TTL finds its token replaced and releases nothing.
func (s *Store) ReleaseLock(ctx context.Context, conversationID, ownerToken string) error {
	cid := sanitizeConversationID(conversationID)
	owner := strings.TrimSpace(ownerToken)
	if cid == "" || owner == "" {
		return nil
	}

	if err := s.client.Eval(ctx, lockReleaseScript, []string{lockKey(cid)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return unavailable("release lock", err)
	}
	return nil
}
