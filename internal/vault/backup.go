// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/keyplane-btc/keyplane/internal/crypto"
)

// Backup envelope versions. Version 2 derives the backup key with Argon2id;
// version 1 is the legacy PBKDF2-SHA512 format, still accepted on import so
// old backups remain restorable.
const (
	backupVersionV1 = 1
	backupVersionV2 = 2

	backupKDFArgon2id = "argon2id"
	backupKDFPBKDF2   = "pbkdf2-sha512"

	gcmTagSize = 16
)

// backupEnvelope is the portable backup blob. All binary fields are base64.
// The GCM tag is carried separately from the ciphertext so the envelope
// shape is explicit about what authenticates the payload: the tag check on
// import is the only arbiter of password correctness.
type backupEnvelope struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Salt       string `json:"salt"`
	Time       uint32 `json:"kdf_time,omitempty"`
	MemoryKB   uint32 `json:"kdf_memory_kb,omitempty"`
	Threads    uint8  `json:"kdf_threads,omitempty"`
	Iterations int    `json:"kdf_iterations,omitempty"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	AuthTag    string `json:"auth_tag"`
	Created    string `json:"created,omitempty"`
}

// backupPayload is the plaintext inside the envelope: every record in the
// store, keyed by identifier. The PIN credential is a verifier, not a
// secret, and is deliberately excluded; the restoring device sets its own.
type backupPayload struct {
	Records map[string][]byte `json:"records"`
}

// BackupInfo describes a backup blob without decrypting it.
type BackupInfo struct {
	Version       int
	KDF           string
	Created       string
	CiphertextLen int
}

// ExportBackup collects every record, encrypts the set under a key derived
// from password, and returns the portable envelope. Each export uses a
// fresh salt and nonce, so exporting twice yields different blobs for the
// same contents.
func (s *Store) ExportBackup(password []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("vault: backup password is empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.listRecordsLocked()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: store has no records", ErrNotFound)
	}

	payload := backupPayload{Records: make(map[string][]byte, len(ids))}
	for _, id := range ids {
		plaintext, err := s.loadRecordLocked(id)
		if err != nil {
			return nil, err
		}
		payload.Records[id] = plaintext
	}
	defer func() {
		for _, plaintext := range payload.Records {
			crypto.ZeroBytes(plaintext)
		}
	}()

	plain, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup payload: %w", err)
	}
	defer crypto.ZeroBytes(plain)

	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup salt: %w", err)
	}
	key := crypto.DeriveKey(password, salt, s.kdf)
	defer crypto.ZeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plain, nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	env := backupEnvelope{
		Version:    backupVersionV2,
		KDF:        backupKDFArgon2id,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Time:       s.kdf.Time,
		MemoryKB:   s.kdf.MemoryKB,
		Threads:    s.kdf.Threads,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Created:    time.Now().UTC().Format(time.RFC3339),
	}
	blob, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup envelope: %w", err)
	}
	return blob, nil
}

// ImportBackup decrypts blob under password and replaces the store's record
// set with the backup's contents. The swap is staged: nothing in the store
// changes until every record has been decrypted and resealed, so a wrong
// password or corrupt blob leaves the store exactly as it was. The PIN
// credential, if any, is untouched.
func (s *Store) ImportBackup(blob, password []byte) error {
	records, err := decryptBackup(blob, password)
	if err != nil {
		return err
	}
	defer func() {
		for _, plaintext := range records {
			crypto.ZeroBytes(plaintext)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage every incoming record sealed under the store key.
	staged := make(map[string][]byte, len(records))
	for id, plaintext := range records {
		if _, err := s.recordPath(id); err != nil {
			return fmt.Errorf("%w: record id %q", ErrInvalidBackup, id)
		}
		sealed, err := s.sealer.Seal(plaintext, []byte(id))
		if err != nil {
			return fmt.Errorf("failed to seal imported record %s: %w", id, err)
		}
		staged[id] = sealed
	}

	// Drop records not present in the backup, then write the new set.
	existing, err := s.listRecordsLocked()
	if err != nil {
		return err
	}
	for _, id := range existing {
		if _, ok := staged[id]; ok {
			continue
		}
		path, err := s.recordPath(id)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove record %s: %w", id, err)
		}
	}
	for id, sealed := range staged {
		path, err := s.recordPath(id)
		if err != nil {
			return err
		}
		if err := atomicWrite(path, sealed); err != nil {
			return err
		}
	}
	return nil
}

// VerifyBackup parses blob and reports its structure without decrypting.
// It proves the blob is a well-formed envelope, not that any particular
// password opens it.
func VerifyBackup(blob []byte) (*BackupInfo, error) {
	env, err := parseEnvelope(blob)
	if err != nil {
		return nil, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding", ErrInvalidBackup)
	}
	return &BackupInfo{
		Version:       env.Version,
		KDF:           env.KDF,
		Created:       env.Created,
		CiphertextLen: len(ciphertext),
	}, nil
}

// decryptBackup opens the envelope and returns the contained records.
// Structural problems map to ErrInvalidBackup; a tag mismatch maps to
// ErrAuthenticationFailed.
func decryptBackup(blob, password []byte) (map[string][]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("vault: backup password is empty")
	}

	env, err := parseEnvelope(blob)
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt encoding", ErrInvalidBackup)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce encoding", ErrInvalidBackup)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding", ErrInvalidBackup)
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("%w: bad auth tag encoding", ErrInvalidBackup)
	}
	if len(tag) != gcmTagSize {
		return nil, fmt.Errorf("%w: auth tag must be %d bytes", ErrInvalidBackup, gcmTagSize)
	}

	var key []byte
	switch env.Version {
	case backupVersionV2:
		if env.KDF != backupKDFArgon2id {
			return nil, fmt.Errorf("%w: version 2 requires %s", ErrInvalidBackup, backupKDFArgon2id)
		}
		params := crypto.KDFParams{
			Time:     env.Time,
			MemoryKB: env.MemoryKB,
			Threads:  env.Threads,
		}
		if params.Validate() != nil {
			return nil, fmt.Errorf("%w: bad KDF parameters", ErrInvalidBackup)
		}
		key = crypto.DeriveKey(password, salt, params)
	case backupVersionV1:
		if env.KDF != backupKDFPBKDF2 {
			return nil, fmt.Errorf("%w: version 1 requires %s", ErrInvalidBackup, backupKDFPBKDF2)
		}
		if env.Iterations <= 0 {
			return nil, fmt.Errorf("%w: bad iteration count", ErrInvalidBackup)
		}
		key = pbkdf2.Key(password, salt, env.Iterations, crypto.KeyLen, sha512.New)
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidBackup, env.Version)
	}
	defer crypto.ZeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", ErrInvalidBackup, gcm.NonceSize())
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	defer crypto.ZeroBytes(plain)

	var payload backupPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("%w: bad payload", ErrInvalidBackup)
	}
	if len(payload.Records) == 0 {
		return nil, fmt.Errorf("%w: payload has no records", ErrInvalidBackup)
	}
	return payload.Records, nil
}

func parseEnvelope(blob []byte) (*backupEnvelope, error) {
	var env backupEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	switch env.KDF {
	case backupKDFArgon2id, backupKDFPBKDF2:
	default:
		return nil, fmt.Errorf("%w: unknown KDF %q", ErrInvalidBackup, env.KDF)
	}
	if env.Salt == "" || env.Nonce == "" || env.Ciphertext == "" || env.AuthTag == "" {
		return nil, fmt.Errorf("%w: missing fields", ErrInvalidBackup)
	}
	return &env, nil
}
