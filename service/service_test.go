package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalis-labs/keygate/adapters/chain"
	"github.com/portalis-labs/keygate/adapters/kv"
	"github.com/portalis-labs/keygate/adapters/sqlite"
	"github.com/portalis-labs/keygate/adapters/tokenizer"
	"github.com/portalis-labs/keygate/core"
	"github.com/portalis-labs/keygate/internal/cose"
	"github.com/portalis-labs/keygate/internal/webauthn"
	"github.com/portalis-labs/keygate/ports"
)

type recordingQueue struct {
	jobs []ports.MirrorJob
}

func (q *recordingQueue) Enqueue(ctx context.Context, job ports.MirrorJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type testEnv struct {
	svc    *Service
	store  *sqlite.Store
	kv     *kv.MemoryKV
	mirror *recordingQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.Open(t.TempDir() + "/keygate.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	memory := kv.NewMemoryKV()
	mirror := &recordingQueue{}

	svc := New(Config{}, Deps{
		KV:         memory,
		Identities: store,
		Sessions:   store,
		Audits:     store,
		Tokenizer:  tokenizer.NewJWTTokenizer(signKey),
		Resolver:   chain.NewResolver(nil, common.Address{}, nil),
		Mirror:     mirror,
	})

	return &testEnv{svc: svc, store: store, kv: memory, mirror: mirror}
}

// fakeAuthenticator plays the platform authenticator's part of both
// ceremonies with a real P-256 key.
type fakeAuthenticator struct {
	key    *ecdsa.PrivateKey
	credID []byte
}

func newAuthenticator(t *testing.T) *fakeAuthenticator {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	credID := make([]byte, 16)
	_, err = rand.Read(credID)
	require.NoError(t, err)

	return &fakeAuthenticator{key: key, credID: credID}
}

func (a *fakeAuthenticator) identifier() string {
	return base64.RawURLEncoding.EncodeToString(a.credID)
}

func (a *fakeAuthenticator) publicKeyWire() []byte {
	var x, y [cose.CoordinateSize]byte
	a.key.X.FillBytes(x[:])
	a.key.Y.FillBytes(y[:])
	return cose.EncodeEC2PublicKey(x, y)
}

func (a *fakeAuthenticator) authData(flags byte, counter uint32, attested bool) []byte {
	rpIDHash := sha256.Sum256([]byte("localhost"))
	out := append([]byte{}, rpIDHash[:]...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, counter)

	if attested {
		out = append(out, make([]byte, 16)...) // AAGUID
		out = binary.BigEndian.AppendUint16(out, uint16(len(a.credID)))
		out = append(out, a.credID...)
		out = append(out, a.publicKeyWire()...)
	}
	return out
}

func clientDataJSON(t *testing.T, ceremony, challenge string) []byte {
	t.Helper()
	raw, err := json.Marshal(webauthn.ClientData{
		Type:      ceremony,
		Challenge: challenge,
		Origin:    "http://localhost",
	})
	require.NoError(t, err)
	return raw
}

func (a *fakeAuthenticator) attest(t *testing.T, options core.CeremonyOptions) core.AttestationResponse {
	t.Helper()

	authData := a.authData(
		webauthn.FlagUserPresent|webauthn.FlagUserVerified|webauthn.FlagAttestedCredential, 0, true)

	envelope := []byte{0xa3}
	envelope = append(envelope, 0x63, 'f', 'm', 't', 0x64, 'n', 'o', 'n', 'e')
	envelope = append(envelope, 0x67, 'a', 't', 't', 'S', 't', 'm', 't', 0xa0)
	envelope = append(envelope, 0x68, 'a', 'u', 't', 'h', 'D', 'a', 't', 'a', 0x59)
	envelope = binary.BigEndian.AppendUint16(envelope, uint16(len(authData)))
	envelope = append(envelope, authData...)

	return core.AttestationResponse{
		CredentialID:      a.identifier(),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON(t, webauthn.CeremonyCreate, options.Challenge)),
		AttestationObject: base64.RawURLEncoding.EncodeToString(envelope),
		Transports:        []string{"internal"},
	}
}

func (a *fakeAuthenticator) assert(t *testing.T, options core.CeremonyOptions, counter uint32) core.AssertionResponse {
	t.Helper()

	authData := a.authData(webauthn.FlagUserPresent|webauthn.FlagUserVerified, counter, false)
	clientData := clientDataJSON(t, webauthn.CeremonyGet, options.Challenge)

	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	signature, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	require.NoError(t, err)

	return core.AssertionResponse{
		CredentialID:      a.identifier(),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientData),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		Signature:         base64.RawURLEncoding.EncodeToString(signature),
	}
}

func register(t *testing.T, env *testEnv, authenticator *fakeAuthenticator, email string) RegistrationResult {
	t.Helper()

	options, err := env.svc.BeginRegistration(context.Background(), email, "Test User")
	require.NoError(t, err)

	result, err := env.svc.CompleteRegistration(context.Background(), options.ChallengeID,
		authenticator.attest(t, options))
	require.NoError(t, err)
	return result
}

func TestRegistrationFlow(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)

	result := register(t, env, authenticator, "a@example.com")
	assert.Equal(t, "a@example.com", result.Identity.Email)
	assert.NotEmpty(t, result.Identity.WalletAddress)
	assert.Equal(t, authenticator.identifier(), result.Credential.CredentialIdentifier)

	// The mirror job carries the same coordinates the credential stores.
	require.Len(t, env.mirror.jobs, 1)
	job := env.mirror.jobs[0]
	assert.Equal(t, result.Credential.ID, job.CredentialID)
	assert.Equal(t, result.Identity.WalletAddress, job.WalletAddress)
}

func TestRegistrationChallengeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)

	options, err := env.svc.BeginRegistration(context.Background(), "a@example.com", "Test User")
	require.NoError(t, err)

	resp := authenticator.attest(t, options)
	_, err = env.svc.CompleteRegistration(context.Background(), options.ChallengeID, resp)
	require.NoError(t, err)

	_, err = env.svc.CompleteRegistration(context.Background(), options.ChallengeID, resp)
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestRegistrationRejectsStaleChallenge(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)

	options, err := env.svc.BeginRegistration(context.Background(), "a@example.com", "Test User")
	require.NoError(t, err)

	// Response signed over a different challenge than the one issued.
	forged := options
	forged.Challenge = base64.RawURLEncoding.EncodeToString([]byte("stale-challenge-value"))

	_, err = env.svc.CompleteRegistration(context.Background(), options.ChallengeID,
		authenticator.attest(t, forged))
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
}

func TestRegistrationRejectsMalformedPublicKey(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)

	options, err := env.svc.BeginRegistration(context.Background(), "a@example.com", "Test User")
	require.NoError(t, err)

	resp := authenticator.attest(t, options)

	// Rebuild the attestation with a key whose curve tag is wrong.
	raw, err := base64.RawURLEncoding.DecodeString(resp.AttestationObject)
	require.NoError(t, err)
	wire := authenticator.publicKeyWire()
	idx := len(raw) - len(wire)
	raw[idx+6] = 0x02 // crv: P-384
	resp.AttestationObject = base64.RawURLEncoding.EncodeToString(raw)

	_, err = env.svc.CompleteRegistration(context.Background(), options.ChallengeID, resp)
	assert.ErrorIs(t, err, cose.ErrUnsupportedCurve)
}

func TestSecondPasskeyLinksToSameIdentity(t *testing.T) {
	env := newTestEnv(t)

	first := register(t, env, newAuthenticator(t), "a@example.com")
	second := register(t, env, newAuthenticator(t), "a@example.com")

	assert.Equal(t, first.Identity.ID, second.Identity.ID)

	credentials, err := env.store.ListActiveCredentials(context.Background(), first.Identity.ID)
	require.NoError(t, err)
	assert.Len(t, credentials, 2)
}

func TestDiscoverableAuthentication(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)
	registered := register(t, env, authenticator, "a@example.com")

	options, err := env.svc.BeginAuthentication(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, options.UserName)

	result, err := env.svc.CompleteAuthentication(context.Background(), options.ChallengeID,
		authenticator.assert(t, options, 1))
	require.NoError(t, err)
	assert.Equal(t, registered.Identity.ID, result.Identity.ID)
	assert.NotEmpty(t, result.Token)

	claims, err := env.svc.ValidateSession(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.Identity.ID, claims.IdentityID)
	assert.Equal(t, registered.Identity.WalletAddress, claims.WalletAddress)

	// The counter moved durably.
	credential, err := env.store.GetCredentialByIdentifier(context.Background(), authenticator.identifier())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), credential.UsageCounter)
}

func TestEmailScopedAuthentication(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)
	register(t, env, authenticator, "a@example.com")

	options, err := env.svc.BeginAuthentication(context.Background(), "a@example.com")
	require.NoError(t, err)

	_, err = env.svc.CompleteAuthentication(context.Background(), options.ChallengeID,
		authenticator.assert(t, options, 1))
	assert.NoError(t, err)
}

func TestAuthenticationUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)
	register(t, env, authenticator, "a@example.com")

	// The ceremony is issued anyway and fails only at completion.
	options, err := env.svc.BeginAuthentication(context.Background(), "nobody@example.com")
	require.NoError(t, err)

	_, err = env.svc.CompleteAuthentication(context.Background(), options.ChallengeID,
		authenticator.assert(t, options, 1))
	assert.ErrorIs(t, err, core.ErrCredentialNotFound)
}

func TestAuthenticationCounterRegression(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)
	register(t, env, authenticator, "a@example.com")

	options, err := env.svc.BeginAuthentication(context.Background(), "")
	require.NoError(t, err)
	_, err = env.svc.CompleteAuthentication(context.Background(), options.ChallengeID,
		authenticator.assert(t, options, 5))
	require.NoError(t, err)

	// Same counter again is a replay signal.
	options, err = env.svc.BeginAuthentication(context.Background(), "")
	require.NoError(t, err)
	_, err = env.svc.CompleteAuthentication(context.Background(), options.ChallengeID,
		authenticator.assert(t, options, 5))
	assert.ErrorIs(t, err, core.ErrCounterRegression)
}

func TestAuthenticationCounterlessAuthenticator(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)
	register(t, env, authenticator, "a@example.com")

	// A counter stuck at zero is accepted every time.
	for i := 0; i < 2; i++ {
		options, err := env.svc.BeginAuthentication(context.Background(), "")
		require.NoError(t, err)
		_, err = env.svc.CompleteAuthentication(context.Background(), options.ChallengeID,
			authenticator.assert(t, options, 0))
		require.NoError(t, err)
	}
}

func TestAuthenticationRejectsWrongKey(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)
	register(t, env, authenticator, "a@example.com")

	// Same credential id, different private key.
	impostor := &fakeAuthenticator{credID: authenticator.credID}
	var err error
	impostor.key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	options, err := env.svc.BeginAuthentication(context.Background(), "")
	require.NoError(t, err)

	_, err = env.svc.CompleteAuthentication(context.Background(), options.ChallengeID,
		impostor.assert(t, options, 1))
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
}

func TestSessionInvalidate(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)
	register(t, env, authenticator, "a@example.com")

	options, err := env.svc.BeginAuthentication(context.Background(), "")
	require.NoError(t, err)
	result, err := env.svc.CompleteAuthentication(context.Background(), options.ChallengeID,
		authenticator.assert(t, options, 1))
	require.NoError(t, err)

	_, err = env.svc.ValidateSession(context.Background(), result.Token)
	require.NoError(t, err)

	require.NoError(t, env.svc.InvalidateSession(context.Background(), result.Token))

	_, err = env.svc.ValidateSession(context.Background(), result.Token)
	assert.ErrorIs(t, err, core.ErrSessionInvalid)

	// Invalidating again stays a no-op.
	assert.NoError(t, env.svc.InvalidateSession(context.Background(), result.Token))
}

func TestValidateSessionSurvivesCacheLoss(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)
	register(t, env, authenticator, "a@example.com")

	options, err := env.svc.BeginAuthentication(context.Background(), "")
	require.NoError(t, err)
	result, err := env.svc.CompleteAuthentication(context.Background(), options.ChallengeID,
		authenticator.assert(t, options, 1))
	require.NoError(t, err)

	// Simulate a cache restart: the durable record still validates.
	hash := sha256.Sum256([]byte(result.Token))
	require.NoError(t, env.kv.Delete(context.Background(), sessionPrefix+hex.EncodeToString(hash[:])))

	claims, err := env.svc.ValidateSession(context.Background(), result.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.IdentityID)
}

func TestChallengeExpiry(t *testing.T) {
	env := newTestEnv(t)
	authenticator := newAuthenticator(t)

	now := time.Now()
	env.kv.SetClock(func() time.Time { return now })

	options, err := env.svc.BeginRegistration(context.Background(), "a@example.com", "Test User")
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)

	_, err = env.svc.CompleteRegistration(context.Background(), options.ChallengeID,
		authenticator.attest(t, options))
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}
