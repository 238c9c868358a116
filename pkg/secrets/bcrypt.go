package secrets

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "keystone/pkg/domain-errors"
)

// BcryptKey is the registry key of the bcrypt strategy.
const BcryptKey = "bcrypt"

// BcryptStrategy stores the standard bcrypt string as its payload; the
// salt and cost already travel inside it.
type BcryptStrategy struct {
	cost int
}

// NewBcryptStrategy builds the strategy; cost <= 0 selects
// bcrypt.DefaultCost.
func NewBcryptStrategy(cost int) *BcryptStrategy {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptStrategy{cost: cost}
}

func (s *BcryptStrategy) Key() string { return BcryptKey }

func (s *BcryptStrategy) Hash(plain string) (Password, error) {
	if plain == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, dErrors.New(dErrors.CodeValidation, "secret is too long")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not hash secret")
	}
	return &bcryptPassword{hash: hashed}, nil
}

func (s *BcryptStrategy) Decode(payload string) (Password, error) {
	if _, err := bcrypt.Cost([]byte(payload)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed bcrypt payload")
	}
	return &bcryptPassword{hash: []byte(payload)}, nil
}

type bcryptPassword struct {
	hash []byte
}

func (p *bcryptPassword) StrategyKey() string { return BcryptKey }

func (p *bcryptPassword) Encode() string { return encode(BcryptKey, string(p.hash)) }

func (p *bcryptPassword) Matches(plain string) bool {
	return bcrypt.CompareHashAndPassword(p.hash, []byte(plain)) == nil
}
