package authcore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct horse 1"

var testEncryptionKey = []byte("abcdefghijklmnopqrstuvwxyz012345")

// testConfig returns the baseline test configuration: cheap argon2id cost,
// breach screening off, metrics and audit on.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Security.MFAEncryptionKey = testEncryptionKey
	cfg.Breach.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = true
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	return cfg
}

type testEnv struct {
	engine    *Engine
	directory *memDirectory
	sender    *captureSender
	sink      *ChannelSink
	mini      *miniredis.Miniredis
}

// newTestEnv builds an engine against miniredis. mutate may adjust the config
// before Build.
func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	directory := newMemDirectory()
	sender := newCaptureSender()
	sink := NewChannelSink(256)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(directory).
		WithEmailSender(sender).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:    engine,
		directory: directory,
		sender:    sender,
		sink:      sink,
		mini:      mr,
	}
}

// seed inserts a verified employee with the standard test password and
// returns the stored record. mutate may adjust the record before insertion.
func (env *testEnv) seed(t *testing.T, email string, mutate func(*PrincipalRecord)) PrincipalRecord {
	t.Helper()

	hash, err := env.engine.passwordHash.Hash(testPassword)
	if err != nil {
		t.Fatalf("seed hash: %v", err)
	}
	record := PrincipalRecord{
		ID:            "seed-" + email,
		Email:         email,
		Name:          "Seeded Account",
		Role:          RoleEmployee,
		PasswordHash:  hash,
		EmailVerified: true,
	}
	if mutate != nil {
		mutate(&record)
	}
	env.directory.put(record)
	return record
}

// seedAdmin inserts a verified admin whose passphrase is also the test
// password.
func (env *testEnv) seedAdmin(t *testing.T, email string) PrincipalRecord {
	t.Helper()

	passHash, err := env.engine.passwordHash.Hash(testPassword)
	if err != nil {
		t.Fatalf("seed passphrase hash: %v", err)
	}
	return env.seed(t, email, func(p *PrincipalRecord) {
		p.Role = RoleAdmin
		p.PassphraseHash = passHash
	})
}

// enableMFA installs a known TOTP secret on the principal and sets the MFA
// flag pair. The raw secret is returned for code generation.
func (env *testEnv) enableMFA(t *testing.T, principalID string, verified bool) []byte {
	t.Helper()

	secret := []byte("12345678901234567890")
	sealed, err := env.engine.secrets.Encrypt(secret)
	if err != nil {
		t.Fatalf("seal mfa secret: %v", err)
	}
	ctx := context.Background()
	if err := env.directory.UpdateMFASecret(ctx, principalID, sealed); err != nil {
		t.Fatalf("store mfa secret: %v", err)
	}
	if err := env.directory.SetMFAState(ctx, principalID, true, verified); err != nil {
		t.Fatalf("set mfa state: %v", err)
	}
	return secret
}

// record fetches the current directory state for the principal.
func (env *testEnv) record(t *testing.T, principalID string) PrincipalRecord {
	t.Helper()

	record, err := env.directory.GetPrincipalByID(context.Background(), principalID)
	if err != nil {
		t.Fatalf("directory lookup for %s: %v", principalID, err)
	}
	return record
}

// waitAudit drains the audit channel until an event of the wanted type
// arrives.
func (env *testEnv) waitAudit(t *testing.T, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-env.sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("no %q audit event within deadline", eventType)
			return AuditEvent{}
		}
	}
}

func (env *testEnv) metric(id MetricID) uint64 {
	return env.engine.metrics.Value(id)
}

// totpCodeNow computes the current TOTP code for a raw secret using the
// default 30-second period and six digits.
func totpCodeNow(t *testing.T, secret []byte) string {
	t.Helper()

	code, err := hotpCode(secret, time.Now().Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return code
}

// memDirectory is an in-memory DirectoryProvider for engine tests.
type memDirectory struct {
	mu         sync.Mutex
	byID       map[string]*PrincipalRecord
	byEmail    map[string]string
	recovery   map[string]map[[32]byte]bool
	history    map[string][]PasswordHistoryEntry
	nextNumber int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		byID:     make(map[string]*PrincipalRecord),
		byEmail:  make(map[string]string),
		recovery: make(map[string]map[[32]byte]bool),
		history:  make(map[string][]PasswordHistoryEntry),
	}
}

func (d *memDirectory) put(record PrincipalRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := record
	d.byID[record.ID] = &copied
	d.byEmail[record.Email] = record.ID
}

func (d *memDirectory) mutate(id string, fn func(*PrincipalRecord)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	record, ok := d.byID[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	fn(record)
	return nil
}

func (d *memDirectory) GetPrincipalByEmail(_ context.Context, email string) (PrincipalRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byEmail[email]
	if !ok {
		return PrincipalRecord{}, ErrPrincipalNotFound
	}
	return *d.byID[id], nil
}

func (d *memDirectory) GetPrincipalByID(_ context.Context, id string) (PrincipalRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	record, ok := d.byID[id]
	if !ok {
		return PrincipalRecord{}, ErrPrincipalNotFound
	}
	return *record, nil
}

func (d *memDirectory) CreatePrincipal(_ context.Context, input CreatePrincipalInput) (PrincipalRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byEmail[input.Email]; exists {
		return PrincipalRecord{}, ErrDuplicateEmail
	}
	d.nextNumber++
	record := PrincipalRecord{
		ID:             fmt.Sprintf("created-%d", d.nextNumber),
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

func (d *memDirectory) UpdatePasswordHash(_ context.Context, id, newHash string) error {
	return d.mutate(id, func(p *PrincipalRecord) {
		p.PasswordHash = newHash
		p.PasswordChangedAt = time.Now()
	})
}

func (d *memDirectory) MarkEmailVerified(_ context.Context, id string) error {
	return d.mutate(id, func(p *PrincipalRecord) { p.EmailVerified = true })
}

func (d *memDirectory) RecordFailedPassword(_ context.Context, id string) (int, error) {
	var count int
	err := d.mutate(id, func(p *PrincipalRecord) {
		p.FailedPasswordAttempts++
		count = p.FailedPasswordAttempts
	})
	return count, err
}

func (d *memDirectory) ResetFailedPassword(_ context.Context, id string) error {
	return d.mutate(id, func(p *PrincipalRecord) { p.FailedPasswordAttempts = 0 })
}

func (d *memDirectory) SetLocked(_ context.Context, id string, locked bool) error {
	return d.mutate(id, func(p *PrincipalRecord) {
		p.Locked = locked
		if locked {
			p.LockedAt = time.Now()
		}
	})
}

func (d *memDirectory) UpdateMFASecret(_ context.Context, id string, encryptedSecret []byte) error {
	return d.mutate(id, func(p *PrincipalRecord) { p.EncryptedMFASecret = encryptedSecret })
}

func (d *memDirectory) SetMFAState(_ context.Context, id string, enabled, verifiedByUser bool) error {
	return d.mutate(id, func(p *PrincipalRecord) {
		p.MFAEnabled = enabled
		p.MFAVerifiedByUser = verifiedByUser
	})
}

func (d *memDirectory) ClearMFA(_ context.Context, id string) error {
	d.mu.Lock()
	delete(d.recovery, id)
	d.mu.Unlock()
	return d.mutate(id, func(p *PrincipalRecord) {
		p.MFAEnabled = false
		p.MFAVerifiedByUser = false
		p.EncryptedMFASecret = nil
	})
}

func (d *memDirectory) ReplaceRecoveryCodes(_ context.Context, id string, codes []RecoveryCodeRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := make(map[[32]byte]bool, len(codes))
	for _, c := range codes {
		set[c.Hash] = true
	}
	d.recovery[id] = set
	return nil
}

func (d *memDirectory) ConsumeRecoveryCode(_ context.Context, id string, codeHash [32]byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.recovery[id]
	if !set[codeHash] {
		return false, nil
	}
	delete(set, codeHash)
	return true, nil
}

func (d *memDirectory) PasswordHistory(_ context.Context, id string, limit int) ([]PasswordHistoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.history[id]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (d *memDirectory) AppendPasswordHistory(_ context.Context, id, hash string, keep int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := append(d.history[id], PasswordHistoryEntry{Hash: hash, ChangedAt: time.Now()})
	if len(entries) > keep {
		entries = entries[len(entries)-keep:]
	}
	d.history[id] = entries
	return nil
}

func (d *memDirectory) historyLen(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history[id])
}

// haltingDirectory cancels the request context as soon as the principal is
// looked up, simulating a caller that gives up mid-operation.
type haltingDirectory struct {
	*memDirectory
	cancel context.CancelFunc
}

func (d *haltingDirectory) GetPrincipalByEmail(ctx context.Context, email string) (PrincipalRecord, error) {
	d.cancel()
	return d.memDirectory.GetPrincipalByEmail(ctx, email)
}

func (d *haltingDirectory) GetPrincipalByID(ctx context.Context, id string) (PrincipalRecord, error) {
	d.cancel()
	return d.memDirectory.GetPrincipalByID(ctx, id)
}

type sentMail struct {
	Recipient string
	Template  string
	Data      map[string]string
}

// captureSender records transactional mail for assertions. Sends happen on a
// background goroutine, so reads poll.
type captureSender struct {
	mu    sync.Mutex
	mails []sentMail
}

func newCaptureSender() *captureSender {
	return &captureSender{}
}

func (s *captureSender) Send(_ context.Context, recipient, template string, data map[string]string) error {
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mails = append(s.mails, sentMail{Recipient: recipient, Template: template, Data: copied})
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mails)
}

// waitFor blocks until a mail with the wanted template arrives, skipping over
// any already consumed entries.
func (s *captureSender) waitFor(t *testing.T, template string) sentMail {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	seen := 0
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for ; seen < len(s.mails); seen++ {
			if s.mails[seen].Template == template {
				mail := s.mails[seen]
				s.mu.Unlock()
				return mail
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q mail within deadline", template)
	return sentMail{}
}

// challengeToken extracts the challenge token carried in a mail payload.
func challengeToken(t *testing.T, mail sentMail) string {
	t.Helper()

	token := mail.Data["token"]
	if token == "" {
		t.Fatalf("mail %q carries no token", mail.Template)
	}
	return token
}
