package patient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/nin"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/validation"
)

type RegisterInput struct {
	NIN       string `json:"nin" validate:"notblank"`
	FirstName string `json:"first_name" validate:"notblank,max=100"`
	LastName  string `json:"last_name" validate:"notblank,max=100"`
	Email     string `json:"email" validate:"omitempty,email,max=254"`
	Phone     string `json:"phone" validate:"max=32"`
	Address   string `json:"address" validate:"max=300"`
}

func (in RegisterInput) trimmed() RegisterInput {
	return RegisterInput{
		NIN:       strings.TrimSpace(in.NIN),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   strings.TrimSpace(in.Address),
	}
}

// Registrar admits new patients. Checks run in a fixed order: required
// fields, checksum, birth date, uniqueness.
type Registrar struct {
	repo    Repository
	locker  redisclient.Locker
	audit   *audit.Recorder
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewRegistrar(repo Repository, locker redisclient.Locker, recorder *audit.Recorder, m *metrics.Metrics, logger zerolog.Logger) *Registrar {
	return &Registrar{
		repo:    repo,
		locker:  locker,
		audit:   recorder,
		metrics: m,
		logger:  logger.With().Str("component", "registrar").Logger(),
	}
}

func (r *Registrar) Register(ctx context.Context, actor auth.Actor, in RegisterInput) (*Patient, error) {
	p, err := r.register(ctx, actor, in)
	if err != nil {
		r.metrics.IncRegistrationRejected(string(apperr.CodeOf(err)))
		return nil, err
	}
	r.metrics.IncPatientsRegistered()
	return p, nil
}

func (r *Registrar) register(ctx context.Context, actor auth.Actor, in RegisterInput) (*Patient, error) {
	in = in.trimmed()
	if err := validation.Validate(in); err != nil {
		return nil, err
	}

	number := nin.Normalize(in.NIN)
	if !nin.Validate(number) {
		return nil, apperr.New(apperr.CodeInvalidIdentity, "identity number is not valid")
	}

	digest := ninDigest(number)
	birth, ok := nin.DecodeBirthDate(number)
	if !ok {
		// A matching checksum with an impossible date points at corrupted input.
		r.logger.Error().
			Str("nin_digest", digest[:16]).
			Msg("identity number passed checksum but does not encode a real birth date")
		return nil, apperr.New(apperr.CodeDecode, "identity number does not encode a real birth date")
	}

	candidate := Patient{
		NIN:       number,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		BirthDate: birth,
		Sex:       nin.DecodeSex(number),
		Email:     optional(in.Email),
		Phone:     optional(in.Phone),
		Address:   optional(in.Address),
	}

	var created *Patient
	err := r.locker.WithLock(ctx, "nin:"+digest, func(lockCtx context.Context) error {
		exists, err := r.repo.ExistsByNIN(lockCtx, number)
		if err != nil {
			return fmt.Errorf("check identity number: %w", err)
		}
		if exists {
			return ErrDuplicateNIN
		}

		created, err = r.repo.CreatePatient(lockCtx, candidate)
		if err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateNIN):
			return nil, apperr.Wrap(err, apperr.CodeDuplicateIdentity, ErrDuplicateNIN.Error())
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, apperr.Wrap(err, apperr.CodeDuplicateIdentity, "a registration for this identity number is already in progress")
		}
		return nil, err
	}

	r.audit.Record(ctx, actor.UserID, audit.ActionPatientRegistered, audit.EntityPatient, strconv.FormatInt(created.ID, 10),
		fmt.Sprintf("Patient #%d registered: %s", created.ID, created.FullName()))

	return created, nil
}

// ninDigest keys locks and log fields without exposing the number.
func ninDigest(number string) string {
	sum := sha256.Sum256([]byte(number))
	return hex.EncodeToString(sum[:])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
