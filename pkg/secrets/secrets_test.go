package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "keystone/pkg/domain-errors"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(PlainKey,
		NewPBKDF2Strategy(1_000),
		NewBcryptStrategy(4),
		NewPlainStrategy(),
	)
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return registry
}

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.registry = testRegistry(s.T())
}

func (s *RegistrySuite) TestStrategyDispatchRoundTrip() {
	// decode(hash(p).encode()) must reproduce a matching password for
	// every registered strategy.
	for _, key := range s.registry.Keys() {
		s.Run(key, func() {
			strategy, err := s.registry.Strategy(key)
			s.Require().NoError(err)

			hashed, err := strategy.Hash("correct horse battery")
			s.Require().NoError(err)
			s.Equal(key, hashed.StrategyKey())
			s.True(strings.HasPrefix(hashed.Encode(), key+Separator))

			decoded, err := s.registry.Decode(hashed.Encode())
			s.Require().NoError(err)
			s.True(decoded.Matches("correct horse battery"))
			s.False(decoded.Matches("wrong password"))
		})
	}
}

func (s *RegistrySuite) TestHashUsesDefaultStrategy() {
	hashed, err := s.registry.Hash("some value")
	s.Require().NoError(err)
	s.Equal(PlainKey, hashed.StrategyKey())
}

func (s *RegistrySuite) TestDecodeUnknownStrategyIsFatal() {
	_, err := s.registry.Decode("argon2$whatever")
	s.Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStrategyNotSupported))
}

func (s *RegistrySuite) TestDecodeMissingSeparator() {
	_, err := s.registry.Decode("no-separator-here")
	s.Error(err)
}

func (s *RegistrySuite) TestUnknownDefaultStrategyRejected() {
	_, err := NewRegistry("argon2", NewPlainStrategy())
	s.Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStrategyNotSupported))
}

type GenerateSuite struct {
	suite.Suite
	registry *Registry
}

func TestGenerateSuite(t *testing.T) {
	suite.Run(t, new(GenerateSuite))
}

func (s *GenerateSuite) SetupTest() {
	s.registry = testRegistry(s.T())
}

func (s *GenerateSuite) TestGenerateDigits() {
	password, plain, err := s.registry.Generate(AlphabetDigits, 6)
	s.Require().NoError(err)
	s.Len(plain, 6)
	for _, r := range plain {
		s.Contains(AlphabetDigits, string(r))
	}
	s.True(password.Matches(plain))
}

func (s *GenerateSuite) TestGenerateRejectsBadInputs() {
	_, _, err := s.registry.Generate("x", 6)
	s.Error(err)

	_, _, err = s.registry.Generate(AlphabetDigits, 0)
	s.Error(err)
}

func (s *GenerateSuite) TestGenerateURLSafeBytes() {
	password, plain, err := s.registry.GenerateURLSafeBytes(32)
	s.Require().NoError(err)
	s.NotEmpty(plain)
	s.True(password.Matches(plain))

	_, other, err := s.registry.GenerateURLSafeBytes(32)
	s.Require().NoError(err)
	s.NotEqual(plain, other)
}

type PolicySuite struct {
	suite.Suite
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicySuite))
}

func (s *PolicySuite) TestDefaultPolicyAcceptsStrongPassword() {
	s.NoError(DefaultPolicy().Validate("Tr0ub4dor&3x"))
}

func (s *PolicySuite) TestEnumeratesAllUnmetRules() {
	err := DefaultPolicy().Validate("aaa")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	var domainErr *dErrors.Error
	s.Require().ErrorAs(err, &domainErr)
	// One failure message covering length, case, digit, and uniqueness.
	s.Contains(domainErr.Message, "characters")
}
