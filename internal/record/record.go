package record

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/core"
)

// Record size budgets in bytes. Field bounds keep well clear of these;
// an oversized record means a bug, not big data.
const (
	MaxProjectRecordLen = 512
	MaxAPIKeyRecordLen  = 1024
	MaxUsageRecordLen   = 256
)

// Type discriminators stored in every record.
const (
	typeProject = "project"
	typeAPIKey  = "api_key"
	typeUsage   = "usage"
)

// Sentinel errors for record encoding and decoding.
var (
	// ErrRecordTooLarge indicates an encoded record over its budget.
	ErrRecordTooLarge = errors.New("record exceeds size budget")

	// ErrWrongRecordType indicates a record decoded as the wrong type.
	ErrWrongRecordType = errors.New("wrong record type")
)

type projectRecord struct {
	Record           string         `json:"record"`
	Authority        core.Principal `json:"authority"`
	ProjectID        core.ProjectID `json:"project_id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	DefaultRateLimit uint32         `json:"default_rate_limit"`
	TotalKeys        uint16         `json:"total_keys"`
	ActiveKeys       uint16         `json:"active_keys"`
	CreatedAt        clock.Slot     `json:"created_at"`
}

func (r *projectRecord) recordType() string { return r.Record }

type apiKeyRecord struct {
	Record              string         `json:"record"`
	Project             core.Ref       `json:"project"`
	IssuedBy            core.Principal `json:"issued_by"`
	KeyIndex            uint16         `json:"key_index"`
	Name                string         `json:"name"`
	KeyHash             core.Digest    `json:"key_hash"`
	Scopes              []string       `json:"scopes,omitempty"`
	Status              core.Status    `json:"status"`
	ExpiresAt           *clock.Slot    `json:"expires_at,omitempty"`
	RateLimit           uint32         `json:"rate_limit"`
	CreatedAt           clock.Slot     `json:"created_at"`
	LastVerifiedAt      *clock.Slot    `json:"last_verified_at,omitempty"`
	TotalVerifications  uint64         `json:"total_verifications"`
	FailedVerifications uint8          `json:"failed_verifications"`
}

func (r *apiKeyRecord) recordType() string { return r.Record }

type usageRecord struct {
	Record       string     `json:"record"`
	APIKey       core.Ref   `json:"api_key"`
	WindowStart  clock.Slot `json:"window_start"`
	RequestCount uint32     `json:"request_count"`
	LastUsedAt   clock.Slot `json:"last_used_at"`
}

func (r *usageRecord) recordType() string { return r.Record }

type typedRecord interface {
	recordType() string
}

// EncodeProject serializes a project for storage.
func EncodeProject(p *core.Project) ([]byte, error) {
	return encode(projectRecord{
		Record:           typeProject,
		Authority:        p.Authority,
		ProjectID:        p.ProjectID,
		Name:             p.Name,
		Description:      p.Description,
		DefaultRateLimit: p.DefaultRateLimit,
		TotalKeys:        p.TotalKeys,
		ActiveKeys:       p.ActiveKeys,
		CreatedAt:        p.CreatedAt,
	}, typeProject, MaxProjectRecordLen)
}

// DecodeProject parses a stored project. The record's own address is
// not persisted, so the caller supplies it.
func DecodeProject(addr Address, data []byte) (*core.Project, error) {
	var rec projectRecord
	if err := decode(data, &rec, typeProject); err != nil {
		return nil, err
	}
	return &core.Project{
		Addr:             addr.Ref(),
		Authority:        rec.Authority,
		ProjectID:        rec.ProjectID,
		Name:             rec.Name,
		Description:      rec.Description,
		DefaultRateLimit: rec.DefaultRateLimit,
		TotalKeys:        rec.TotalKeys,
		ActiveKeys:       rec.ActiveKeys,
		CreatedAt:        rec.CreatedAt,
	}, nil
}

// EncodeAPIKey serializes a key for storage.
func EncodeAPIKey(k *core.APIKey) ([]byte, error) {
	return encode(apiKeyRecord{
		Record:              typeAPIKey,
		Project:             k.Project,
		IssuedBy:            k.IssuedBy,
		KeyIndex:            k.KeyIndex,
		Name:                k.Name,
		KeyHash:             k.KeyHash,
		Scopes:              k.Scopes,
		Status:              k.Status,
		ExpiresAt:           k.ExpiresAt,
		RateLimit:           k.RateLimit,
		CreatedAt:           k.CreatedAt,
		LastVerifiedAt:      k.LastVerifiedAt,
		TotalVerifications:  k.TotalVerifications,
		FailedVerifications: k.FailedVerifications,
	}, typeAPIKey, MaxAPIKeyRecordLen)
}

// DecodeAPIKey parses a stored key.
func DecodeAPIKey(addr Address, data []byte) (*core.APIKey, error) {
	var rec apiKeyRecord
	if err := decode(data, &rec, typeAPIKey); err != nil {
		return nil, err
	}
	return &core.APIKey{
		Addr:                addr.Ref(),
		Project:             rec.Project,
		IssuedBy:            rec.IssuedBy,
		KeyIndex:            rec.KeyIndex,
		Name:                rec.Name,
		KeyHash:             rec.KeyHash,
		Scopes:              rec.Scopes,
		Status:              rec.Status,
		ExpiresAt:           rec.ExpiresAt,
		RateLimit:           rec.RateLimit,
		CreatedAt:           rec.CreatedAt,
		LastVerifiedAt:      rec.LastVerifiedAt,
		TotalVerifications:  rec.TotalVerifications,
		FailedVerifications: rec.FailedVerifications,
	}, nil
}

// EncodeUsage serializes a usage window for storage.
func EncodeUsage(u *core.UsageWindow) ([]byte, error) {
	return encode(usageRecord{
		Record:       typeUsage,
		APIKey:       u.APIKey,
		WindowStart:  u.WindowStart,
		RequestCount: u.RequestCount,
		LastUsedAt:   u.LastUsedAt,
	}, typeUsage, MaxUsageRecordLen)
}

// DecodeUsage parses a stored usage window.
func DecodeUsage(addr Address, data []byte) (*core.UsageWindow, error) {
	var rec usageRecord
	if err := decode(data, &rec, typeUsage); err != nil {
		return nil, err
	}
	return &core.UsageWindow{
		Addr:         addr.Ref(),
		APIKey:       rec.APIKey,
		WindowStart:  rec.WindowStart,
		RequestCount: rec.RequestCount,
		LastUsedAt:   rec.LastUsedAt,
	}, nil
}

func encode(rec any, typ string, budget int) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", typ, err)
	}
	if len(data) > budget {
		return nil, fmt.Errorf("%w: %s record is %d bytes, budget %d", ErrRecordTooLarge, typ, len(data), budget)
	}
	return data, nil
}

func decode(data []byte, rec typedRecord, want string) error {
	if err := json.Unmarshal(data, rec); err != nil {
		return fmt.Errorf("decode %s record: %w", want, err)
	}
	if got := rec.recordType(); got != want {
		return fmt.Errorf("%w: got %q, want %q", ErrWrongRecordType, got, want)
	}
	return nil
}
