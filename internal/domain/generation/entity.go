package generation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/domain/asset"
	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/domain/planner"
	"github.com/bannerforge/bannerforge-api/internal/domain/ratelimit"
)

// Canvas bounds for the custom platform.
const (
	MinSide = 200
	MaxSide = 4096
)

// Presets maps a platform to its canvas size.
var Presets = map[string][2]int{
	"youtube":   {1280, 720},
	"instagram": {1080, 1080},
	"twitter":   {1600, 900},
	"linkedin":  {1200, 627},
	"facebook":  {1200, 630},
}

// Identity is who is asking. UserID is uuid.Nil for anonymous callers.
type Identity struct {
	UserID uuid.UUID
	Tier   credit.Tier
	IP     string
	Device string
}

// Request is the body of POST /generations.
type Request struct {
	Prompt         string   `json:"prompt" validate:"required,min=3,max=1000"`
	Platform       string   `json:"platform" validate:"required,platform"`
	Width          int      `json:"width" validate:"omitempty,gte=200,lte=4096"`
	Height         int      `json:"height" validate:"omitempty,gte=200,lte=4096"`
	BrandColors    []string `json:"brand_colors" validate:"omitempty,max=5,dive,hexcolor"`
	ForceSynthetic bool     `json:"force_synthetic"`
}

// Canvas resolves the output size for the request's platform.
func (r *Request) Canvas() (int, int, error) {
	if size, ok := Presets[r.Platform]; ok {
		return size[0], size[1], nil
	}
	if r.Width == 0 || r.Height == 0 {
		return 0, 0, fmt.Errorf("width and height are required for platform %q", r.Platform)
	}
	return r.Width, r.Height, nil
}

func (r *Request) normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Platform = strings.ToLower(strings.TrimSpace(r.Platform))
}

// Result is what a successful generation returns.
type Result struct {
	ID               uuid.UUID     `json:"id"`
	Platform         string        `json:"platform"`
	Width            int           `json:"width"`
	Height           int           `json:"height"`
	Plan             *planner.Plan `json:"plan"`
	Asset            asset.Result  `json:"asset"`
	CreditsRemaining int           `json:"credits_remaining"`
	ElapsedMS        int64         `json:"elapsed_ms"`

	// Admission is the limiter decision, for rate-limit headers.
	Admission ratelimit.Decision `json:"-"`
}

// Record is a persisted successful generation.
type Record struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	UserID        uuid.UUID   `db:"user_id" json:"user_id"`
	TransactionID uuid.UUID   `db:"transaction_id" json:"transaction_id"`
	Prompt        string      `db:"prompt" json:"prompt"`
	Platform      string      `db:"platform" json:"platform"`
	Width         int         `db:"width" json:"width"`
	Height        int         `db:"height" json:"height"`
	Plan          PlanJSON    `db:"plan" json:"plan"`
	AssetURL      string      `db:"asset_url" json:"asset_url"`
	AssetProvider string      `db:"asset_provider" json:"asset_provider"`
	Attribution   Attribution `db:"attribution" json:"attribution,omitempty"`
	ElapsedMS     int64       `db:"elapsed_ms" json:"elapsed_ms"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// PlanJSON stores a plan in a JSONB column.
type PlanJSON planner.Plan

// Value implements driver.Valuer so sqlx can serialize PlanJSON → JSONB.
func (p PlanJSON) Value() (driver.Value, error) {
	b, err := json.Marshal(planner.Plan(p))
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *PlanJSON) Scan(src interface{}) error {
	b, err := scanBytes(src)
	if err != nil || b == nil {
		return err
	}
	return json.Unmarshal(b, (*planner.Plan)(p))
}

// Attribution stores optional photo credits in a nullable JSONB column.
type Attribution struct {
	*asset.Attribution
}

func (a Attribution) Value() (driver.Value, error) {
	if a.Attribution == nil {
		return nil, nil
	}
	b, err := json.Marshal(a.Attribution)
	if err != nil {
		return nil, fmt.Errorf("marshal attribution: %w", err)
	}
	return string(b), nil
}

func (a *Attribution) Scan(src interface{}) error {
	b, err := scanBytes(src)
	if err != nil || b == nil {
		a.Attribution = nil
		return err
	}
	a.Attribution = &asset.Attribution{}
	return json.Unmarshal(b, a.Attribution)
}

func (a Attribution) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Attribution)
}

func (a *Attribution) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		a.Attribution = nil
		return nil
	}
	a.Attribution = &asset.Attribution{}
	return json.Unmarshal(b, a.Attribution)
}

func scanBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected type for json column: %T", src)
	}
}
