package discord

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sales-voice-lab/internal/logging"
)

// Speakers maps voice SSRCs to users and decides whose audio is captured.
type Speakers struct {
	resolver *Resolver

	mu        sync.Mutex
	ssrcMap   map[uint32]string
	allowlist map[string]struct{}
}

func NewSpeakers(resolver *Resolver) *Speakers {
	return &Speakers{resolver: resolver, ssrcMap: make(map[uint32]string)}
}

// SetAllowedUsers restricts capture to ids. An empty list accepts everyone.
func (s *Speakers) SetAllowedUsers(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowlist = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		s.allowlist[id] = struct{}{}
	}
	logging.Infow("discord: allowed users configured", "count", len(s.allowlist))
}

// HandleSpeakingUpdate records which user an SSRC belongs to. Register it
// on the voice connection with AddHandler.
func (s *Speakers) HandleSpeakingUpdate(vc *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	s.mu.Lock()
	s.ssrcMap[uint32(su.SSRC)] = su.UserID
	s.mu.Unlock()
	logging.Debugw("discord: mapped ssrc to user", "ssrc", su.SSRC, "user_id", su.UserID,
		"user_name", s.resolver.UserName(su.UserID))
}

// User is the user id mapped to ssrc, or "".
func (s *Speakers) User(ssrc uint32) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssrcMap[ssrc]
}

// Allowed reports whether audio from ssrc should be captured. Unmapped
// SSRCs are accepted until a speaking update says otherwise.
func (s *Speakers) Allowed(ssrc uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.allowlist) == 0 {
		return true
	}
	uid := s.ssrcMap[ssrc]
	if uid == "" {
		return true
	}
	_, ok := s.allowlist[uid]
	return ok
}
