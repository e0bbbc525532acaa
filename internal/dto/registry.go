package dto

import (
	"time"

	"github.com/millflow/millflow/internal/entity"
)

// PartyResponse represents a customer.
type PartyResponse struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contactPerson,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MillResponse represents a processing mill.
type MillResponse struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contactPerson,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// QualityResponse represents a fabric quality.
type QualityResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProcessResponse represents a named mill process.
type ProcessResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromParty maps a party entity.
func FromParty(p *entity.Party) *PartyResponse {
	if p == nil {
		return nil
	}
	return &PartyResponse{
		ID:            p.ID,
		Name:          p.Name,
		ContactPerson: p.ContactPerson,
		Phone:         p.Phone,
		Address:       p.Address,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// FromParties maps a slice of parties.
func FromParties(parties []*entity.Party) []*PartyResponse {
	out := make([]*PartyResponse, 0, len(parties))
	for _, p := range parties {
		out = append(out, FromParty(p))
	}
	return out
}

// FromMill maps a mill entity.
func FromMill(m *entity.Mill) *MillResponse {
	if m == nil {
		return nil
	}
	return &MillResponse{
		ID:            m.ID,
		Name:          m.Name,
		ContactPerson: m.ContactPerson,
		Phone:         m.Phone,
		Address:       m.Address,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromMills maps a slice of mills.
func FromMills(mills []*entity.Mill) []*MillResponse {
	out := make([]*MillResponse, 0, len(mills))
	for _, m := range mills {
		out = append(out, FromMill(m))
	}
	return out
}

// FromQuality maps a quality entity.
func FromQuality(q *entity.Quality) *QualityResponse {
	if q == nil {
		return nil
	}
	return &QualityResponse{
		ID:          q.ID,
		Name:        q.Name,
		Description: q.Description,
		CreatedAt:   q.CreatedAt,
		UpdatedAt:   q.UpdatedAt,
	}
}

// FromQualities maps a slice of qualities.
func FromQualities(qualities []*entity.Quality) []*QualityResponse {
	out := make([]*QualityResponse, 0, len(qualities))
	for _, q := range qualities {
		out = append(out, FromQuality(q))
	}
	return out
}

// FromProcess maps a process entity.
func FromProcess(p *entity.Process) *ProcessResponse {
	if p == nil {
		return nil
	}
	return &ProcessResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// FromProcesses maps a slice of processes.
func FromProcesses(processes []*entity.Process) []*ProcessResponse {
	out := make([]*ProcessResponse, 0, len(processes))
	for _, p := range processes {
		out = append(out, FromProcess(p))
	}
	return out
}
