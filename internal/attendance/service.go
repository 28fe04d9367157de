package attendance

import (
	"context"
	"strings"
)

// Service sequences identity resolution and ledger writes for one owner.
type Service struct {
	ownerID    string
	identities *IdentityResolver
	ledger     *Ledger
}

// NewService creates a service. An empty ownerID is accepted so the server
// can start; every detection then fails with a ConfigurationError.
func NewService(ownerID string, identities *IdentityResolver, ledger *Ledger) *Service {
	return &Service{ownerID: strings.TrimSpace(ownerID), identities: identities, ledger: ledger}
}

// MarkAttendance resolves the device address to a student in class and
// records (or reuses) their pending verification.
func (s *Service) MarkAttendance(ctx context.Context, address string) (Detection, error) {
	if NormalizeAddress(address) == "" {
		return Detection{}, &ValidationError{Field: "macAddress", Message: "macAddress is required"}
	}
	if s.ownerID == "" {
		return Detection{}, &ConfigurationError{Message: "owner id is not configured"}
	}

	mc, err := s.identities.FindMemberByHardwareAddress(ctx, s.ownerID, address)
	if err != nil {
		return Detection{}, err
	}
	id, err := s.ledger.RecordDetection(ctx, mc, address)
	if err != nil {
		return Detection{}, err
	}
	return Detection{VerificationID: id, Member: mc, ExpiresIn: s.ledger.TTL()}, nil
}

// ExpireStale runs the ledger's expiry sweep.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	return s.ledger.ExpireStale(ctx)
}
