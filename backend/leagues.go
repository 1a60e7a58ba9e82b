// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	leagueCacheSize   = 256
	settingsCacheSize = 1024

	resetCodeTTL = time.Hour
)

// League is the per-tenant document stored at <id>/info.json. Secret
// signs session tokens and ownership tags; it never leaves the server.
type League struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Icon        string         `json:"icon,omitempty"`
	AccessCode  string         `json:"accessCode"`
	AdminCode   string         `json:"adminCode,omitempty"`
	OwnerEmail  string         `json:"ownerEmail"`
	Secret      string         `json:"secret"`
	Settings    *SettingsPatch `json:"settings,omitempty"`
	CreatedAt   string         `json:"createdAt"`

	// Pending access-code reset, set by BeginReset and consumed by
	// CompleteReset. The code itself is only ever emailed.
	ResetCodeHash   string `json:"resetCodeHash,omitempty"`
	ResetCodeExpiry string `json:"resetCodeExpiry,omitempty"`
}

// LeagueProfile is the public view of a league returned to clients.
type LeagueProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Icon        string `json:"icon,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

func (l *League) Profile() LeagueProfile {
	return LeagueProfile{
		ID:          l.ID,
		DisplayName: l.DisplayName,
		Icon:        l.Icon,
		CreatedAt:   l.CreatedAt,
	}
}

// Mailer delivers access-code reset links. The default implementation
// only logs; real delivery is deployment-specific.
type Mailer interface {
	SendAccessCodeReset(league *League, email, code string) error
}

type logMailer struct {
	appURL string
}

func (m *logMailer) SendAccessCodeReset(league *League, email, code string) error {
	log.Printf("mailer: league %s reset code for %s: %s/reset?league=%s&code=%s",
		league.ID, maskEmail(email), m.appURL, league.ID, code)
	return nil
}

// LeagueStore is the league directory: creation, lookup, access-code
// lifecycle. League documents and resolved settings are cached in LRUs
// invalidated on every write. Every read-modify-write of a league doc
// holds the info.json mutex from the existence check or load through
// the save.
type LeagueStore struct {
	store    *DocStore
	mailer   Mailer
	cache    *lru.Cache[string, *League]
	settings *lru.Cache[string, Settings]
}

// NewLeagueStore creates the directory over an existing DocStore.
func NewLeagueStore(store *DocStore, mailer Mailer) *LeagueStore {
	cache, _ := lru.New[string, *League](leagueCacheSize)
	settings, _ := lru.New[string, Settings](settingsCacheSize)
	if mailer == nil {
		mailer = &logMailer{appURL: "http://localhost:8080"}
	}
	return &LeagueStore{
		store:    store,
		mailer:   mailer,
		cache:    cache,
		settings: settings,
	}
}

// Rebuild scans the data root on startup, warming the league cache.
func (ls *LeagueStore) Rebuild() error {
	entries, err := os.ReadDir(ls.store.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("LeagueStore: Rebuild complete. Indexed 0 leagues.")
			return nil
		}
		return fmt.Errorf("os.ReadDir: %w", err)
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		league, err := ls.Load(e.Name())
		if err != nil {
			continue
		}
		count++
		ls.cache.Add(league.ID, league)
	}
	log.Printf("LeagueStore: Rebuild complete. Indexed %d leagues.", count)
	return nil
}

// Count returns the number of league directories on disk.
func (ls *LeagueStore) Count() int {
	entries, err := os.ReadDir(ls.store.DataDir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() && ls.store.Exists(infoPath(e.Name())) {
			n++
		}
	}
	return n
}

// Load returns the league document for id, from cache when possible.
// Unknown leagues map to ErrNotFound.
func (ls *LeagueStore) Load(id string) (*League, error) {
	if league, ok := ls.cache.Get(id); ok {
		return league, nil
	}
	var league League
	if err := ls.store.Load(infoPath(id), &league); err != nil {
		return nil, err
	}
	ls.cache.Add(id, &league)
	return &league, nil
}

// loadLocked is Load for callers already holding the info.json mutex.
// Writers update the cache before releasing the lock, so a cache hit
// here is never stale.
func (ls *LeagueStore) loadLocked(id string) (*League, error) {
	if league, ok := ls.cache.Get(id); ok {
		return league, nil
	}
	var league League
	if err := ls.store.loadLocked(infoPath(id), &league); err != nil {
		return nil, err
	}
	ls.cache.Add(id, &league)
	return &league, nil
}

// CreateParams carries the caller-supplied fields of a new league.
type CreateParams struct {
	ID          string
	DisplayName string
	Icon        string
	OwnerEmail  string
	AdminCode   string
}

// Create registers a new league: validated id, fresh access code and
// secret. An existing league with the same id is a conflict.
func (ls *LeagueStore) Create(p CreateParams, now time.Time) (*League, error) {
	if err := validateLeagueID(p.ID); err != nil {
		return nil, err
	}
	if !isValidEmail(p.OwnerEmail) {
		return nil, fmt.Errorf("%w: invalid owner email", ErrValidation)
	}
	code, err := newAccessCode()
	if err != nil {
		return nil, err
	}
	secret, err := newLeagueSecret()
	if err != nil {
		return nil, err
	}
	defer ls.store.Lock(infoPath(p.ID))()
	if ls.store.Exists(infoPath(p.ID)) {
		return nil, fmt.Errorf("%w: league %q already exists", ErrConflict, p.ID)
	}
	league := &League{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Icon:        p.Icon,
		AccessCode:  code,
		AdminCode:   p.AdminCode,
		OwnerEmail:  p.OwnerEmail,
		Secret:      secret,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	}
	if err := ls.saveLocked(league); err != nil {
		return nil, err
	}
	log.Printf("LeagueStore: created league %s (owner %s)", league.ID, maskEmail(p.OwnerEmail))
	return league, nil
}

// BeginReset issues a single-use access-code reset code for the league
// owner: stored hashed with a one hour expiry, delivered via the
// Mailer. The email must match the registered owner.
func (ls *LeagueStore) BeginReset(id, email string, now time.Time) error {
	defer ls.store.Lock(infoPath(id))()
	league, err := ls.loadLocked(id)
	if err != nil {
		return err
	}
	if normalizeEmail(email) != normalizeEmail(league.OwnerEmail) {
		return fmt.Errorf("%w: email does not match league owner", ErrForbidden)
	}
	code := uuid.NewString()
	updated := *league
	updated.ResetCodeHash = hashResetCode(code)
	updated.ResetCodeExpiry = now.UTC().Add(resetCodeTTL).Format(time.RFC3339)
	if err := ls.saveLocked(&updated); err != nil {
		return err
	}
	if err := ls.mailer.SendAccessCodeReset(&updated, email, code); err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	return nil
}

// CompleteReset consumes a valid reset code and rotates the access
// code, returning the new one.
func (ls *LeagueStore) CompleteReset(id, email, code string, now time.Time) (string, error) {
	defer ls.store.Lock(infoPath(id))()
	league, err := ls.loadLocked(id)
	if err != nil {
		return "", err
	}
	if normalizeEmail(email) != normalizeEmail(league.OwnerEmail) {
		return "", fmt.Errorf("%w: email does not match league owner", ErrForbidden)
	}
	if league.ResetCodeHash == "" || league.ResetCodeExpiry == "" {
		return "", fmt.Errorf("%w: no reset pending", ErrForbidden)
	}
	expiry, err := time.Parse(time.RFC3339, league.ResetCodeExpiry)
	if err != nil || now.After(expiry) {
		return "", fmt.Errorf("%w: reset code expired", ErrForbidden)
	}
	if hashResetCode(code) != league.ResetCodeHash {
		return "", fmt.Errorf("%w: invalid reset code", ErrForbidden)
	}
	newCode, err := newAccessCode()
	if err != nil {
		return "", err
	}
	updated := *league
	updated.AccessCode = newCode
	updated.ResetCodeHash = ""
	updated.ResetCodeExpiry = ""
	if err := ls.saveLocked(&updated); err != nil {
		return "", err
	}
	log.Printf("LeagueStore: access code rotated for league %s", id)
	return newCode, nil
}

// UpdateSettings replaces the league-level default settings block.
func (ls *LeagueStore) UpdateSettings(id string, patch *SettingsPatch) error {
	defer ls.store.Lock(infoPath(id))()
	league, err := ls.loadLocked(id)
	if err != nil {
		return err
	}
	updated := *league
	updated.Settings = patch
	if err := ls.saveLocked(&updated); err != nil {
		return err
	}
	ls.invalidateLeagueSettings(id)
	return nil
}

// saveLocked persists a league doc and refreshes the cache. The caller
// holds the info.json mutex.
func (ls *LeagueStore) saveLocked(league *League) error {
	if err := ls.store.saveLocked(infoPath(league.ID), league); err != nil {
		return err
	}
	ls.cache.Add(league.ID, league)
	return nil
}

// ResolveSettings returns the effective settings for a session date:
// built-in defaults, overlaid by league defaults, overlaid by the
// session's own settings key.
func (ls *LeagueStore) ResolveSettings(league *League, date string) (Settings, error) {
	cacheKey := league.ID + "|" + date
	if s, ok := ls.settings.Get(cacheKey); ok {
		return s, nil
	}
	resolved := defaultSettings().apply(league.Settings)
	var patch *SettingsPatch
	err := ls.store.GetKey(sessionPath(league.ID, date), docKeySettings, &patch)
	if err == nil {
		resolved = resolved.apply(patch)
	} else if !isNotFound(err) {
		return Settings{}, err
	}
	ls.settings.Add(cacheKey, resolved)
	return resolved, nil
}

// InvalidateSettings drops the cached resolution for one session.
func (ls *LeagueStore) InvalidateSettings(leagueID, date string) {
	ls.settings.Remove(leagueID + "|" + date)
}

func (ls *LeagueStore) invalidateLeagueSettings(leagueID string) {
	prefix := leagueID + "|"
	for _, key := range ls.settings.Keys() {
		if strings.HasPrefix(key, prefix) {
			ls.settings.Remove(key)
		}
	}
}

func hashResetCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// newAccessCode returns a fresh XXXX-XXXX-XXXX code drawn from the
// uppercase alphanumeric alphabet with crypto/rand.
func newAccessCode() (string, error) {
	var b strings.Builder
	for g := 0; g < accessCodeGroups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < accessCodeGroupLen; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(accessCodeAlphabet))))
			if err != nil {
				return "", fmt.Errorf("rand.Int: %w", err)
			}
			b.WriteByte(accessCodeAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// newLeagueSecret returns 32 random bytes hex-encoded.
func newLeagueSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
