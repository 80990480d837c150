// Package service sequences the registration and authentication ceremonies
// over the codec, resolver, stores and mirror queue.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/portalis-labs/keygate/core"
	"github.com/portalis-labs/keygate/ports"
)

// Config carries every threshold and TTL explicitly so the service is
// deterministic and testable without process-level state.
type Config struct {
	RelyingPartyID   string        `env:"KEYGATE_RP_ID" envDefault:"localhost"`
	RelyingPartyName string        `env:"KEYGATE_RP_NAME" envDefault:"keygate"`
	Origins          []string      `env:"KEYGATE_ORIGINS" envSeparator:","`
	ChallengeTTL     time.Duration `env:"KEYGATE_CHALLENGE_TTL" envDefault:"300s"`
	SessionTTL       time.Duration `env:"KEYGATE_SESSION_TTL" envDefault:"24h"`
	CeremonyTimeout  time.Duration `env:"KEYGATE_CEREMONY_TIMEOUT" envDefault:"60s"`

	// MaxActiveCredentials caps active passkeys per identity.
	MaxActiveCredentials int `env:"KEYGATE_MAX_ACTIVE_CREDENTIALS" envDefault:"10"`

	// RequireUserVerification demands the authenticator's user-verification
	// flag (biometric/PIN) in addition to user presence.
	RequireUserVerification bool `env:"KEYGATE_REQUIRE_USER_VERIFICATION" envDefault:"true"`
}

// Deps are the collaborators the orchestrator sequences.
type Deps struct {
	KV         ports.KV
	Identities ports.IdentityStore
	Sessions   ports.SessionStore
	Audits     ports.AuditStore
	Tokenizer  ports.Tokenizer
	Resolver   ports.WalletResolver
	Mirror     ports.MirrorQueue
	Logger     *slog.Logger
}

// Service implements the registration, authentication and session flows.
type Service struct {
	cfg Config

	kv         ports.KV
	identities ports.IdentityStore
	sessions   ports.SessionStore
	audits     ports.AuditStore
	tokenizer  ports.Tokenizer
	resolver   ports.WalletResolver
	mirror     ports.MirrorQueue

	log *slog.Logger
	now func() time.Time
}

// New creates the service. Zero Config fields get their defaults.
func New(cfg Config, deps Deps) *Service {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 300 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.CeremonyTimeout <= 0 {
		cfg.CeremonyTimeout = 60 * time.Second
	}
	if cfg.MaxActiveCredentials <= 0 {
		cfg.MaxActiveCredentials = 10
	}
	if cfg.RelyingPartyID == "" {
		cfg.RelyingPartyID = "localhost"
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		kv:         deps.KV,
		identities: deps.Identities,
		sessions:   deps.Sessions,
		audits:     deps.Audits,
		tokenizer:  deps.Tokenizer,
		resolver:   deps.Resolver,
		mirror:     deps.Mirror,
		log:        log,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// audit appends a record and swallows any failure so a logging outage never
// becomes an authentication outage.
func (s *Service) audit(ctx context.Context, action, identityID, resourceType, resourceID string,
	status core.AuditStatus, metadata map[string]string) {
	if s.audits == nil {
		return
	}
	record := core.AuditRecord{
		Action:       action,
		IdentityID:   identityID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       status,
		Metadata:     metadata,
		CreatedAt:    s.now(),
	}
	if err := s.audits.Append(ctx, record); err != nil {
		s.log.Warn("audit write failed", "action", action, "err", err)
	}
}
