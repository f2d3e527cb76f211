package domain

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/torresgol10/movie-club/internal/club/storage"
)

// CreateMemberInput describes one new member.
type CreateMemberInput struct {
	Name string
	PIN  string
}

// CreateMember registers a club member. Names are unique; the PIN is the
// member's login secret and must be exactly four digits.
func (s *Service) CreateMember(ctx context.Context, input CreateMemberInput) (storage.MemberRecord, error) {
	if s == nil || s.store == nil {
		return storage.MemberRecord{}, ErrStoreNotConfigured
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return storage.MemberRecord{}, ErrNameRequired
	}
	if !validPIN(input.PIN) {
		return storage.MemberRecord{}, ErrInvalidPIN
	}

	memberID, err := s.newID()
	if err != nil {
		return storage.MemberRecord{}, err
	}
	record := storage.MemberRecord{
		ID:        memberID,
		Name:      name,
		PIN:       input.PIN,
		CreatedAt: s.clock(),
	}
	if err := s.store.PutMember(ctx, record); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.MemberRecord{}, ErrNameTaken
		}
		return storage.MemberRecord{}, err
	}
	return record, nil
}

// Authenticate checks a name and PIN pair and returns the member. Lookup
// and comparison failures collapse into one error so callers cannot tell
// which half was wrong.
func (s *Service) Authenticate(ctx context.Context, name, pin string) (storage.MemberRecord, error) {
	if s == nil || s.store == nil {
		return storage.MemberRecord{}, ErrStoreNotConfigured
	}
	member, err := s.store.GetMemberByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, storage.ErrNotFound) {
		return storage.MemberRecord{}, ErrInvalidCredentials
	}
	if err != nil {
		return storage.MemberRecord{}, err
	}
	if subtle.ConstantTimeCompare([]byte(member.PIN), []byte(pin)) != 1 {
		return storage.MemberRecord{}, ErrInvalidCredentials
	}
	return member, nil
}

// Member returns one member by id.
func (s *Service) Member(ctx context.Context, memberID string) (storage.MemberRecord, error) {
	if s == nil || s.store == nil {
		return storage.MemberRecord{}, ErrStoreNotConfigured
	}
	member, err := s.store.GetMember(ctx, strings.TrimSpace(memberID))
	if errors.Is(err, storage.ErrNotFound) {
		return storage.MemberRecord{}, ErrMemberNotFound
	}
	if err != nil {
		return storage.MemberRecord{}, err
	}
	return member, nil
}

// Members lists every club member.
func (s *Service) Members(ctx context.Context) ([]storage.MemberRecord, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	return s.store.ListMembers(ctx)
}

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
