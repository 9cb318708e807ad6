package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/keikakun/authcore"
	"github.com/keikakun/authcore/password"
	"github.com/keikakun/authcore/secretbox"
)

var testMFAKey = []byte("abcdefghijklmnopqrstuvwxyz012345")

// fakeDirectory is an in-memory DirectoryProvider with injectable state.
type fakeDirectory struct {
	mu         sync.Mutex
	byID       map[string]*authcore.PrincipalRecord
	byEmail    map[string]string
	recovery   map[string]map[[32]byte]bool
	history    map[string][]authcore.PasswordHistoryEntry
	nextNumber int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byID:     make(map[string]*authcore.PrincipalRecord),
		byEmail:  make(map[string]string),
		recovery: make(map[string]map[[32]byte]bool),
		history:  make(map[string][]authcore.PasswordHistoryEntry),
	}
}

func (d *fakeDirectory) put(record authcore.PrincipalRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := record
	d.byID[record.ID] = &copied
	d.byEmail[record.Email] = record.ID
}

func (d *fakeDirectory) get(id string) authcore.PrincipalRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.byID[id]
}

func (d *fakeDirectory) GetPrincipalByEmail(_ context.Context, email string) (authcore.PrincipalRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byEmail[email]
	if !ok {
		return authcore.PrincipalRecord{}, authcore.ErrPrincipalNotFound
	}
	return *d.byID[id], nil
}

func (d *fakeDirectory) GetPrincipalByID(_ context.Context, id string) (authcore.PrincipalRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	record, ok := d.byID[id]
	if !ok {
		return authcore.PrincipalRecord{}, authcore.ErrPrincipalNotFound
	}
	return *record, nil
}

func (d *fakeDirectory) CreatePrincipal(_ context.Context, input authcore.CreatePrincipalInput) (authcore.PrincipalRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byEmail[input.Email]; exists {
		return authcore.PrincipalRecord{}, authcore.ErrDuplicateEmail
	}
	d.nextNumber++
	record := authcore.PrincipalRecord{
		ID:             fmt.Sprintf("principal-%d", d.nextNumber),
		Email:          input.Email,
		Name:           input.Name,
		Role:           input.Role,
		PasswordHash:   input.PasswordHash,
		PassphraseHash: input.PassphraseHash,
	}
	d.byID[record.ID] = &record
	d.byEmail[record.Email] = record.ID
	return record, nil
}

func (d *fakeDirectory) UpdatePasswordHash(_ context.Context, id, newHash string) error {
	return d.mutate(id, func(p *authcore.PrincipalRecord) {
		p.PasswordHash = newHash
		p.PasswordChangedAt = time.Now()
	})
}

func (d *fakeDirectory) MarkEmailVerified(_ context.Context, id string) error {
	return d.mutate(id, func(p *authcore.PrincipalRecord) { p.EmailVerified = true })
}

func (d *fakeDirectory) RecordFailedPassword(_ context.Context, id string) (int, error) {
	var count int
	err := d.mutate(id, func(p *authcore.PrincipalRecord) {
		p.FailedPasswordAttempts++
		count = p.FailedPasswordAttempts
	})
	return count, err
}

func (d *fakeDirectory) ResetFailedPassword(_ context.Context, id string) error {
	return d.mutate(id, func(p *authcore.PrincipalRecord) { p.FailedPasswordAttempts = 0 })
}

func (d *fakeDirectory) SetLocked(_ context.Context, id string, locked bool) error {
	return d.mutate(id, func(p *authcore.PrincipalRecord) {
		p.Locked = locked
		if locked {
			p.LockedAt = time.Now()
		}
	})
}

func (d *fakeDirectory) UpdateMFASecret(_ context.Context, id string, encryptedSecret []byte) error {
	return d.mutate(id, func(p *authcore.PrincipalRecord) { p.EncryptedMFASecret = encryptedSecret })
}

func (d *fakeDirectory) SetMFAState(_ context.Context, id string, enabled, verifiedByUser bool) error {
	return d.mutate(id, func(p *authcore.PrincipalRecord) {
		p.MFAEnabled = enabled
		p.MFAVerifiedByUser = verifiedByUser
	})
}

func (d *fakeDirectory) ClearMFA(_ context.Context, id string) error {
	d.mu.Lock()
	delete(d.recovery, id)
	d.mu.Unlock()
	return d.mutate(id, func(p *authcore.PrincipalRecord) {
		p.MFAEnabled = false
		p.MFAVerifiedByUser = false
		p.EncryptedMFASecret = nil
	})
}

func (d *fakeDirectory) ReplaceRecoveryCodes(_ context.Context, id string, codes []authcore.RecoveryCodeRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := make(map[[32]byte]bool, len(codes))
	for _, c := range codes {
		set[c.Hash] = true
	}
	d.recovery[id] = set
	return nil
}

func (d *fakeDirectory) ConsumeRecoveryCode(_ context.Context, id string, codeHash [32]byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.recovery[id]
	if !set[codeHash] {
		return false, nil
	}
	delete(set, codeHash)
	return true, nil
}

func (d *fakeDirectory) PasswordHistory(_ context.Context, id string, limit int) ([]authcore.PasswordHistoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.history[id]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]authcore.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (d *fakeDirectory) AppendPasswordHistory(_ context.Context, id, hash string, keep int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := append(d.history[id], authcore.PasswordHistoryEntry{Hash: hash, ChangedAt: time.Now()})
	if len(entries) > keep {
		entries = entries[len(entries)-keep:]
	}
	d.history[id] = entries
	return nil
}

func (d *fakeDirectory) mutate(id string, fn func(*authcore.PrincipalRecord)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	record, ok := d.byID[id]
	if !ok {
		return authcore.ErrPrincipalNotFound
	}
	fn(record)
	return nil
}

// fakeSender captures transactional mail so tests can pull challenge tokens
// out of the "mailbox".
type fakeSender struct {
	mu    sync.Mutex
	mails []capturedMail
}

type capturedMail struct {
	Recipient string
	Template  string
	Data      map[string]string
}

func (s *fakeSender) Send(_ context.Context, recipient, template string, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	s.mails = append(s.mails, capturedMail{Recipient: recipient, Template: template, Data: copied})
	return nil
}

// waitForMail polls for an asynchronously delivered template.
func (s *fakeSender) waitForMail(t *testing.T, template string) capturedMail {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for i := len(s.mails) - 1; i >= 0; i-- {
			if s.mails[i].Template == template {
				mail := s.mails[i]
				s.mu.Unlock()
				return mail
			}
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s mail delivered", template)
	return capturedMail{}
}

type testAPI struct {
	api       *API
	server    *httptest.Server
	engine    *authcore.Engine
	directory *fakeDirectory
	sender    *fakeSender
	hasher    *password.Argon2
	secrets   *secretbox.Box
}

func testConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Security.MFAEncryptionKey = testMFAKey
	cfg.Breach.Enabled = false
	cfg.Metrics.Enabled = true
	// Cheap hashing keeps the suite fast; production parameters are covered
	// by the password package tests.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	return cfg
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	directory := newFakeDirectory()
	sender := &fakeSender{}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(directory).
		WithEmailSender(sender).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	api, err := New(engine, Config{})
	require.NoError(t, err)

	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	require.NoError(t, err)

	secrets, err := secretbox.New(testMFAKey)
	require.NoError(t, err)

	return &testAPI{
		api:       api,
		server:    server,
		engine:    engine,
		directory: directory,
		sender:    sender,
		hasher:    hasher,
		secrets:   secrets,
	}
}

// seedPrincipal inserts a verified, unlocked account and returns its ID.
func (ta *testAPI) seedPrincipal(t *testing.T, email, plaintext string, mutate func(*authcore.PrincipalRecord)) string {
	t.Helper()

	hash, err := ta.hasher.Hash(plaintext)
	require.NoError(t, err)

	record := authcore.PrincipalRecord{
		ID:            "seed-" + email,
		Email:         email,
		Name:          "Test Person",
		Role:          authcore.RoleEmployee,
		PasswordHash:  hash,
		EmailVerified: true,
	}
	if mutate != nil {
		mutate(&record)
	}
	ta.directory.put(record)
	return record.ID
}

// seedMFASecret encrypts and installs a TOTP secret on an existing account.
func (ta *testAPI) seedMFASecret(t *testing.T, principalID string, secret []byte, verified bool) {
	t.Helper()

	encrypted, err := ta.secrets.Encrypt(secret)
	require.NoError(t, err)
	require.NoError(t, ta.directory.UpdateMFASecret(context.Background(), principalID, encrypted))
	require.NoError(t, ta.directory.SetMFAState(context.Background(), principalID, true, verified))
}

// totpCode computes the RFC 6238 code for the default 30s/6-digit/SHA-1
// parameters.
func totpCode(secret []byte, at time.Time) string {
	counter := uint64(at.Unix() / 30)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", code%1000000)
}

// challengeToken digs the mailed challenge token out of a captured mail.
func challengeToken(t *testing.T, mail capturedMail) string {
	t.Helper()
	token, ok := mail.Data["token"]
	if !ok || token == "" {
		t.Fatalf("mail %q carries no token", mail.Template)
	}
	return token
}
