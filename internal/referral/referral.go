// Package referral validates W3D- referral codes and credits referrers.
package referral

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/metrics"
	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/store"
	"github.com/sirupsen/logrus"
)

// CodePrefix starts every referral code.
const CodePrefix = "W3D-"

// FIDs are canonical decimals: no sign, no leading zeros.
var (
	codePattern = regexp.MustCompile(`^(?i:W3D)-(0|[1-9]\d{0,19})$`)
	fidPattern  = regexp.MustCompile(`^(0|[1-9]\d{0,19})$`)
)

var (
	ErrInvalidCode        = errors.New("invalid referral code format")
	ErrReferrerIneligible = errors.New("referrer has not deployed a contract yet")
	ErrDuplicateReferral  = errors.New("this user was already referred by this referrer")
	ErrAlreadyReferred    = errors.New("user already has a referrer")
	ErrSelfReferral       = errors.New("cannot use your own referral code")
	ErrInvalidFID         = errors.New("invalid fid")
)

// ValidFID reports whether fid is a canonical FID.
func ValidFID(fid string) bool {
	return fidPattern.MatchString(fid)
}

// ParseCode returns the FID embedded in code.
func ParseCode(code string) (string, error) {
	m := codePattern.FindStringSubmatch(strings.TrimSpace(code))
	if m == nil {
		return "", ErrInvalidCode
	}
	return m[1], nil
}

// CodeFor returns the referral code for fid.
func CodeFor(fid string) string {
	return CodePrefix + fid
}

// Validation is the result of checking a code.
type Validation struct {
	Valid bool   `json:"valid"`
	FID   string `json:"fid,omitempty"`
	Error string `json:"error,omitempty"`
}

// Service validates codes and records attributions.
type Service struct {
	users     store.Store
	referrals store.ReferralStore
	log       logrus.FieldLogger
	now       func() time.Time

	// Serialises attributions within this process. Cross-process writers
	// are not coordinated.
	mu sync.Mutex
}

// NewService creates a Service.
func NewService(users store.Store, referrals store.ReferralStore, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{users: users, referrals: referrals, log: log, now: time.Now}
}

// Validate checks the code format and the referrer's eligibility. The error
// return is only for store failures; a bad code yields Valid: false.
func (s *Service) Validate(ctx context.Context, code string) (Validation, error) {
	fid, err := ParseCode(code)
	if err != nil {
		return Validation{Error: err.Error()}, nil
	}
	ok, _, err := s.eligible(ctx, fid)
	if err != nil {
		return Validation{}, err
	}
	if !ok {
		return Validation{FID: fid, Error: ErrReferrerIneligible.Error()}, nil
	}
	return Validation{Valid: true, FID: fid}, nil
}

// eligible reports whether fid has deployed at least one contract. The cached
// flag on the referral record is trusted when set; otherwise every user
// record is scanned and a positive result is cached.
func (s *Service) eligible(ctx context.Context, fid string) (bool, *records.ReferralRecord, error) {
	rec, err := s.referrals.GetReferral(ctx, fid)
	if err != nil {
		return false, nil, fmt.Errorf("reading referral %s: %w", fid, err)
	}
	if rec != nil && rec.HasDeployedContract {
		return true, rec, nil
	}

	all, err := s.users.All(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("scanning user records: %w", err)
	}
	wallet := ""
	for w, u := range all {
		if u.FID == fid && !u.IsEmpty() {
			wallet = w
			break
		}
	}
	if wallet == "" {
		return false, rec, nil
	}

	if rec == nil {
		rec = &records.ReferralRecord{FID: fid, ReferredUsers: []string{}}
	}
	rec.HasDeployedContract = true
	rec.Wallet = wallet
	rec.LastUpdated = s.now().UnixMilli()
	if err := s.referrals.PutReferral(ctx, rec); err != nil {
		s.log.WithField("fid", fid).WithError(err).Warn("caching referral eligibility failed")
	}
	return true, rec, nil
}

// Attribute credits the owner of code with referring memberFID, whose wallet
// is memberWallet. A member can be credited to one referrer only, once.
func (s *Service) Attribute(ctx context.Context, code, memberFID, memberWallet string) (rec *records.ReferralRecord, err error) {
	defer func() {
		metrics.ReferralAttributions.WithLabelValues(attributionResult(err)).Inc()
	}()

	fid, err := ParseCode(code)
	if err != nil {
		return nil, err
	}
	if !ValidFID(memberFID) {
		return nil, ErrInvalidFID
	}
	if fid == memberFID {
		return nil, ErrSelfReferral
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, rec, err := s.eligible(ctx, fid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReferrerIneligible
	}
	if rec.HasReferred(memberFID) {
		return nil, ErrDuplicateReferral
	}

	w := records.NormalizeWallet(memberWallet)
	var member *records.UserRecord
	if w != "" {
		if member, err = s.users.Get(ctx, w); err != nil {
			return nil, fmt.Errorf("reading member record: %w", err)
		}
		if member.ReferredBy != "" {
			return nil, ErrAlreadyReferred
		}
	}

	now := s.now().UnixMilli()
	rec.ReferralCount++
	rec.TotalPoints += config.ReferralPoints
	rec.ReferredUsers = append(rec.ReferredUsers, memberFID)
	rec.LastUpdated = now
	if err := s.referrals.PutReferral(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving referral: %w", err)
	}

	log := s.log.WithFields(logrus.Fields{"fid": fid, "member": memberFID})
	if w != "" {
		p := records.Patch{ReferredBy: &fid, LastUpdated: now}
		if member.FID == "" {
			p.FID = &memberFID
		}
		if err := s.users.Merge(ctx, w, p); err != nil {
			log.WithError(err).Warn("recording referredBy failed")
		}
	}
	if rec.Wallet != "" {
		points := rec.TotalPoints
		if err := s.users.Merge(ctx, rec.Wallet, records.Patch{ReferralPoints: &points, LastUpdated: now}); err != nil {
			log.WithError(err).Warn("mirroring referral points failed")
		}
	}
	log.WithField("count", rec.ReferralCount).Info("referral attributed")
	return rec, nil
}

func attributionResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrInvalidFID):
		return "invalid"
	case errors.Is(err, ErrReferrerIneligible):
		return "ineligible"
	case errors.Is(err, ErrDuplicateReferral):
		return "duplicate"
	case errors.Is(err, ErrAlreadyReferred):
		return "already_referred"
	case errors.Is(err, ErrSelfReferral):
		return "self"
	}
	return metrics.ResultError
}
