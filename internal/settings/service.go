// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/testinsight/testinsight/internal/probe"
	"github.com/testinsight/testinsight/internal/secrets"
)

// DefaultProbeTimeout bounds a single connection test.
const DefaultProbeTimeout = 10 * time.Second

// Service is the settings facade. All mutations (Update, Reset, Restore)
// serialize on one mutex plus the store's cross-process lock, so concurrent
// writers cannot lose updates. Reads and connection tests take a snapshot
// and run lock-free; a test never blocks a settings save.
type Service struct {
	store     *Store
	keys      *secrets.KeyManager
	backupDir string
	logger    *slog.Logger

	jenkins probe.JenkinsProber
	github  probe.GitHubProber
	ai      probe.AIProber

	probeTimeout time.Duration

	mu sync.Mutex

	cacheMu sync.RWMutex
	cached  *Document
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithProbeTimeout bounds each connection test.
func WithProbeTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.probeTimeout = d }
}

// WithProbers overrides the connection probers, for tests.
func WithProbers(jenkins probe.JenkinsProber, github probe.GitHubProber, ai probe.AIProber) ServiceOption {
	return func(s *Service) {
		s.jenkins = jenkins
		s.github = github
		s.ai = ai
	}
}

// NewService creates the settings service. backupDir receives automatic and
// requested backup files; it is created on first use.
func NewService(store *Store, keys *secrets.KeyManager, backupDir string, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		keys:         keys,
		backupDir:    backupDir,
		logger:       logger,
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.jenkins == nil {
		s.jenkins = probe.NewJenkinsClient(s.probeTimeout, logger)
	}
	if s.github == nil {
		s.github = probe.NewGitHubClient(s.probeTimeout, logger)
	}
	if s.ai == nil {
		s.ai = probe.NewGeminiClient(s.probeTimeout, logger)
	}

	return s
}

// load returns the current document, via the cache when warm. Callers must
// not mutate the result; mutation paths clone it.
func (s *Service) load() (*Document, error) {
	s.cacheMu.RLock()
	cached := s.cached
	s.cacheMu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	doc, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.cached = doc
	s.cacheMu.Unlock()
	return doc, nil
}

func (s *Service) setCache(doc *Document) {
	s.cacheMu.Lock()
	s.cached = doc
	s.cacheMu.Unlock()
}

// InvalidateCache drops the cached document so the next read hits disk.
// Called by the file watcher when the settings file changes underneath us.
func (s *Service) InvalidateCache() {
	s.cacheMu.Lock()
	s.cached = nil
	s.cacheMu.Unlock()
}

// Get returns the current settings with secrets redacted. Safe to serialize
// straight into an API response or log.
func (s *Service) Get() (*Document, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return Redact(doc), nil
}

// Update applies a partial update: merge over current, validate the merged
// result, encrypt any newly supplied secrets, then persist atomically.
// Nothing touches disk when validation fails. Returns the redacted result.
func (s *Service) Update(upd *Update) (*Document, error) {
	if verrs := validateUpdate(upd); verrs != nil {
		recordValidationFailures(verrs)
		return nil, verrs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var merged *Document
	err := s.store.WithLock(func() error {
		current, err := s.store.Load()
		if err != nil {
			return err
		}

		merged = merge(current, upd)
		if verrs := Validate(merged); verrs != nil {
			recordValidationFailures(verrs)
			return verrs
		}

		if err := s.encryptNewSecrets(merged); err != nil {
			return err
		}

		merged.SchemaVersion = SchemaVersion
		merged.LastUpdated = time.Now().UTC()

		return s.store.Save(merged)
	})
	recordMutation("update", err)
	if err != nil {
		return nil, err
	}

	s.setCache(merged)
	s.logger.Info("settings updated")
	return Redact(merged), nil
}

// Reset writes an automatic backup of the current settings, then replaces
// them with factory defaults. If the backup cannot be written the reset is
// aborted; credentials are never destroyed without a recovery path.
// Returns the backup file path and the redacted defaults.
func (s *Service) Reset() (string, *Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		backupPath string
		fresh      *Document
	)
	err := s.store.WithLock(func() error {
		current, err := s.store.Load()
		if err != nil {
			return err
		}

		backupPath, err = s.writeBackupFile(current)
		if err != nil {
			return fmt.Errorf("refusing to reset, backup failed: %w", err)
		}

		fresh = Defaults()
		fresh.LastUpdated = time.Now().UTC()
		return s.store.Save(fresh)
	})
	recordMutation("reset", err)
	if err != nil {
		return "", nil, err
	}

	s.setCache(fresh)
	s.logger.Info("settings reset to defaults", "backup", backupPath)
	return backupPath, Redact(fresh), nil
}

// ValidateCurrent runs pure validation against the stored document and
// returns the problems found. A nil map means valid.
func (s *Service) ValidateCurrent() (ValidationErrors, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return Validate(doc), nil
}

// SecretStatus reports which credentials are configured, grouped by
// section, without decrypting anything.
func (s *Service) SecretStatus() (map[string]map[string]bool, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return SecretStatus(doc), nil
}

// Backup serializes the current settings (secrets still encrypted) into a
// portable payload.
func (s *Service) Backup() ([]byte, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return encodeBackup(doc, time.Now())
}

// WriteBackup writes a timestamped backup file into the backup directory
// and returns its path.
func (s *Service) WriteBackup() (string, error) {
	doc, err := s.load()
	if err != nil {
		return "", err
	}
	path, err := s.writeBackupFile(doc)
	if err != nil {
		return "", err
	}
	s.logger.Info("settings backup written", "path", path)
	return path, nil
}

func (s *Service) writeBackupFile(doc *Document) (string, error) {
	if err := os.MkdirAll(s.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	data, err := encodeBackup(doc, time.Now())
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.backupDir, backupFilename(time.Now()))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write backup file: %w", err)
	}

	backupsCreated.Inc()
	return path, nil
}

// Restore replaces the current settings with a backup payload. The payload
// is parsed and shape-checked before anything is written; a malformed
// payload yields *RestoreFormatError and leaves the store untouched.
// Restore is a full overwrite, not a merge.
func (s *Service) Restore(payload []byte) (*Document, error) {
	doc, err := decodeBackup(payload)
	if err != nil {
		recordMutation("restore", err)
		return nil, err
	}

	if verrs := Validate(doc); verrs != nil {
		recordMutation("restore", verrs)
		return nil, &RestoreFormatError{Reason: "backup contains invalid settings", Cause: verrs}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.store.WithLock(func() error {
		doc.LastUpdated = time.Now().UTC()
		return s.store.Save(doc)
	})
	recordMutation("restore", err)
	if err != nil {
		return nil, err
	}

	s.setCache(doc)
	s.logger.Info("settings restored from backup")
	return Redact(doc), nil
}

// encryptNewSecrets seals any plaintext secret on the document. Values that
// already carry the ciphertext marker pass through untouched, so unchanged
// fields are never re-encrypted.
func (s *Service) encryptNewSecrets(doc *Document) error {
	cipher, err := s.cipher()
	if err != nil {
		return err
	}

	for _, f := range secretFields {
		v := f.get(doc)
		if v == "" || secrets.IsEncrypted(v) {
			continue
		}
		sealed, err := cipher.Encrypt(v)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", f.key, err)
		}
		f.set(doc, sealed)
	}

	return nil
}

func (s *Service) cipher() (*secrets.Cipher, error) {
	key, err := s.keys.Load()
	if err != nil {
		return nil, err
	}
	return secrets.NewCipher(key)
}

// TestConnection checks one service with the stored settings, optionally
// overlaid with unsaved form values from override. It never returns an
// error for a failed connection; failures come back inside the Result. It
// runs on a point-in-time snapshot and holds no locks, so a slow server
// cannot block settings mutations.
func (s *Service) TestConnection(ctx context.Context, service string, override *Update) probe.Result {
	doc, err := s.load()
	if err != nil {
		return probe.Result{
			Service:      service,
			Success:      false,
			Message:      "could not load settings",
			ErrorDetails: err.Error(),
		}
	}
	snapshot := merge(doc, override)

	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	var result probe.Result
	switch service {
	case probe.ServiceJenkins:
		result = s.testJenkins(ctx, snapshot)
	case probe.ServiceGitHub:
		result = s.testGitHub(ctx, snapshot)
	case probe.ServiceAI:
		result = s.testAI(ctx, snapshot)
	default:
		result = probe.Result{
			Service: service,
			Success: false,
			Message: fmt.Sprintf("unknown service %q", service),
		}
	}

	recordConnectionTest(service, result.Success)
	return result
}

// TestAll probes every service concurrently and returns the results sorted
// by service name.
func (s *Service) TestAll(ctx context.Context) []probe.Result {
	services := []string{probe.ServiceJenkins, probe.ServiceGitHub, probe.ServiceAI}
	results := make([]probe.Result, len(services))

	g, ctx := errgroup.WithContext(ctx)
	for i, svc := range services {
		g.Go(func() error {
			results[i] = s.TestConnection(ctx, svc, nil)
			return nil
		})
	}
	g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Service < results[j].Service })
	return results
}

// ListModels returns the generation models available to the configured (or
// overridden) API key.
func (s *Service) ListModels(ctx context.Context, override *Update) ([]probe.ModelInfo, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	snapshot := merge(doc, override)

	apiKey, perr := s.resolveSecret(snapshot.AI.APIKey)
	if perr != nil {
		return nil, perr
	}
	if apiKey == "" {
		return nil, &probe.Error{Kind: probe.KindMisconfigured, Message: "AI API key is not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	return s.ai.ListModels(ctx, probe.AIConfig{APIKey: apiKey, Model: snapshot.AI.Model})
}

func (s *Service) testJenkins(ctx context.Context, doc *Document) probe.Result {
	token, err := s.resolveSecret(doc.Jenkins.APIToken)
	if err != nil {
		return credentialFailure(probe.ServiceJenkins, err)
	}

	perr := s.jenkins.Probe(ctx, probe.JenkinsConfig{
		URL:       doc.Jenkins.URL,
		Username:  doc.Jenkins.Username,
		APIToken:  token,
		VerifySSL: doc.Jenkins.VerifySSL,
	})
	return toResult(probe.ServiceJenkins, "Jenkins connection successful", perr)
}

func (s *Service) testGitHub(ctx context.Context, doc *Document) probe.Result {
	token, err := s.resolveSecret(doc.GitHub.Token)
	if err != nil {
		return credentialFailure(probe.ServiceGitHub, err)
	}

	perr := s.github.Probe(ctx, probe.GitHubConfig{Token: token})
	return toResult(probe.ServiceGitHub, "GitHub token is valid", perr)
}

func (s *Service) testAI(ctx context.Context, doc *Document) probe.Result {
	apiKey, err := s.resolveSecret(doc.AI.APIKey)
	if err != nil {
		return credentialFailure(probe.ServiceAI, err)
	}

	perr := s.ai.Probe(ctx, probe.AIConfig{APIKey: apiKey, Model: doc.AI.Model})
	return toResult(probe.ServiceAI, "Gemini API key is valid", perr)
}

// resolveSecret turns a stored field value into usable plaintext: empty
// stays empty, ciphertext is decrypted, and fresh plaintext from an
// override passes through.
func (s *Service) resolveSecret(value string) (string, error) {
	if value == "" || !secrets.IsEncrypted(value) {
		return value, nil
	}

	cipher, err := s.cipher()
	if err != nil {
		return "", err
	}
	return cipher.Decrypt(value)
}

// credentialFailure reports a stored credential that cannot be decrypted.
// The message points at the key, since that is the usual culprit.
func credentialFailure(service string, err error) probe.Result {
	return probe.Result{
		Service:      service,
		Success:      false,
		Message:      "stored credential could not be decrypted (encryption key changed or data corrupted)",
		ErrorDetails: err.Error(),
	}
}

func toResult(service, successMsg string, err error) probe.Result {
	if err == nil {
		return probe.Result{Service: service, Success: true, Message: successMsg}
	}

	var perr *probe.Error
	if errors.As(err, &perr) {
		return probe.Result{
			Service:      service,
			Success:      false,
			Message:      perr.Message,
			ErrorDetails: string(perr.Kind),
		}
	}

	return probe.Result{
		Service:      service,
		Success:      false,
		Message:      "connection test failed",
		ErrorDetails: err.Error(),
	}
}
