package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/portalis-labs/keygate/core"
	"github.com/portalis-labs/keygate/ports"
)

// MirrorWorker consumes mirror jobs and replicates credential bindings to
// the ledger. It absorbs every failure: the registration that produced a
// job has long since returned by the time the job runs.
type MirrorWorker struct {
	subscriber message.Subscriber
	mirror     ports.ChainMirror
	identities ports.IdentityStore
	audits     ports.AuditStore
	log        *slog.Logger
}

// NewMirrorWorker wires the worker. audits may be nil.
func NewMirrorWorker(subscriber message.Subscriber, mirror ports.ChainMirror,
	identities ports.IdentityStore, audits ports.AuditStore, log *slog.Logger) *MirrorWorker {
	if log == nil {
		log = slog.Default()
	}
	return &MirrorWorker{
		subscriber: subscriber,
		mirror:     mirror,
		identities: identities,
		audits:     audits,
		log:        log,
	}
}

// Run consumes jobs until ctx is done or the subscription closes.
func (w *MirrorWorker) Run(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, MirrorTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", MirrorTopic, err)
	}
	for msg := range messages {
		w.handle(ctx, msg)
		msg.Ack()
	}
	return nil
}

func (w *MirrorWorker) handle(ctx context.Context, msg *message.Message) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("mirror job panicked", "message", msg.UUID, "panic", r)
		}
	}()

	job, err := DecodeMirrorJob(msg)
	if err != nil {
		mirrorAttemptCount.WithLabelValues("malformed").Inc()
		w.log.Error("dropping malformed mirror job", "message", msg.UUID, "err", err)
		return
	}

	info, err := w.mirror.Register(ctx, job)
	switch {
	case err == nil:
		mirrorAttemptCount.WithLabelValues("submitted").Inc()
		if err := w.identities.SetChainInfo(ctx, job.CredentialID, info); err != nil {
			w.log.Warn("chain info write-back failed", "credential", job.CredentialID, "err", err)
		}
		w.audit(ctx, job, core.AuditSuccess, info.TxHash)
	case errors.Is(err, ports.ErrAlreadyRegistered):
		// Benign: the ledger already holds this binding.
		mirrorAttemptCount.WithLabelValues("duplicate").Inc()
		w.log.Info("credential already mirrored", "credential", job.CredentialID)
	case errors.Is(err, ports.ErrMirrorSkipped):
		mirrorAttemptCount.WithLabelValues("skipped").Inc()
		w.log.Info("mirror attempt skipped", "credential", job.CredentialID)
	default:
		mirrorAttemptCount.WithLabelValues("failed").Inc()
		w.log.Error("mirror attempt failed", "credential", job.CredentialID, "err", err)
		w.audit(ctx, job, core.AuditFailure, err.Error())
	}
}

// audit records the mirror outcome and swallows write failures.
func (w *MirrorWorker) audit(ctx context.Context, job ports.MirrorJob, status core.AuditStatus, detail string) {
	if w.audits == nil {
		return
	}
	record := core.AuditRecord{
		Action:       "passkey.mirror",
		IdentityID:   job.IdentityID,
		ResourceType: "credential",
		ResourceID:   job.CredentialID,
		Status:       status,
		Metadata:     map[string]string{"detail": detail},
	}
	if err := w.audits.Append(ctx, record); err != nil {
		w.log.Warn("mirror audit write failed", "credential", job.CredentialID, "err", err)
	}
}
